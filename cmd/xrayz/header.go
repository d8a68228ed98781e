package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zoobzio/xrayz"
)

func newHeaderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "header <raw>",
		Short: "Parse a trace header and print its fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := xrayz.ParseHeader(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "trace_id:  %s\n", h.TraceID())
			fmt.Fprintf(out, "parent_id: %s\n", h.ParentID())
			fmt.Fprintf(out, "sampled:   %s\n", samplingLabel(h.Sampling()))
			fmt.Fprintf(out, "header:    %s\n", h.String())
			return nil
		},
	}
}

func samplingLabel(d xrayz.SamplingDecision) string {
	switch d {
	case xrayz.Sampled:
		return "yes"
	case xrayz.NotSampled:
		return "no"
	case xrayz.SamplingRequested:
		return "requested"
	default:
		return "unknown"
	}
}
