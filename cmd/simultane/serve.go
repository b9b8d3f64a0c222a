package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/kappaborg/Simultane-Translate/pkg/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(gf *globalFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := gf.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer cleanup()

			if listen != "" {
				a.Config.Listen = listen
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.Log.Info("starting simultane server",
				zap.String("config", gf.configPath),
				zap.String("version", version),
			)
			return server.New(a).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides config)")
	return cmd
}
