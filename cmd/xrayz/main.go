// Command xrayz inspects trace headers, emits test subsegments and runs a
// local daemon stand-in.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
