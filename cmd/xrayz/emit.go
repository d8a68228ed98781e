package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zoobzio/clockz"

	"github.com/zoobzio/xrayz"
	"github.com/zoobzio/xrayz/lambdaenv"
)

type emitOptions struct {
	name     string
	address  string
	header   string
	duration time.Duration
	fault    bool
}

func newEmitCmd(root *rootOptions) *cobra.Command {
	opts := &emitOptions{}
	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Send one custom subsegment to the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEmit(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.name, "name", "xrayz.emit", "subsegment name")
	cmd.Flags().StringVar(&opts.address, "address", "", "daemon address (default "+lambdaenv.DaemonAddressEnv+")")
	cmd.Flags().StringVar(&opts.header, "trace-header", "", "trace header (default "+lambdaenv.TraceIDEnv+", or a new trace)")
	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "recorded subsegment duration")
	cmd.Flags().BoolVar(&opts.fault, "fault", false, "mark the subsegment as a fault")
	return cmd
}

func runEmit(cmd *cobra.Command, root *rootOptions, opts *emitOptions) error {
	logger := root.logger()
	defer logger.Sync() //nolint:errcheck // Best effort flush.

	cfg, err := lambdaenv.Load()
	if err != nil {
		return err
	}
	if opts.address != "" {
		cfg.DaemonAddress = opts.address
	}
	if opts.header != "" {
		cfg.TraceHeader = opts.header
	}
	if cfg.TraceHeader == "" {
		cfg.TraceHeader = "Root=" + xrayz.NewTraceID(time.Now()) + ";Sampled=1"
	}

	client, err := cfg.NewDaemonClient(xrayz.WithClientLogger(logger))
	if err != nil {
		return err
	}
	defer client.Close()

	xctx, err := cfg.NewContext(client)
	if err != nil {
		return err
	}

	// A fake clock lets the recorded duration be set without sleeping.
	clock := clockz.NewFakeClockAt(time.Now())
	session := xctx.WithClock(clock).WithLogger(logger).Enter(xrayz.NewCustomNamespace(opts.name))
	if opts.fault {
		session.SetFault()
	}
	clock.Advance(opts.duration)
	session.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "sent %s (trace %s) to %s\n", session.ID(), session.TraceID(), client.Addr())
	return nil
}
