package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zoobzio/xrayz/lambdaenv"
	"github.com/zoobzio/xrayz/xrayztest"
)

func newListenCmd(root *rootOptions) *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Run a local daemon stand-in that prints received documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := root.logger()
			defer logger.Sync() //nolint:errcheck // Best effort flush.

			daemon, err := xrayztest.Listen(address)
			if err != nil {
				return err
			}
			logger.Info("listening", zap.String("address", daemon.Addr()))

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			out := cmd.OutOrStdout()
			return daemon.Serve(ctx, func(p xrayztest.Packet) {
				if p.Err != nil {
					logger.Warn("bad packet", zap.Error(p.Err), zap.ByteString("body", p.Body))
					return
				}
				fmt.Fprintf(out, "%s\n", p.Body)
			})
		},
	}
	cmd.Flags().StringVar(&address, "address", lambdaenv.DefaultAddress, "UDP address to listen on")
	return cmd
}

