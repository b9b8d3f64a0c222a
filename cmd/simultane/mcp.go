package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kappaborg/Simultane-Translate/pkg/app"
	"github.com/kappaborg/Simultane-Translate/pkg/mcp"
	"github.com/spf13/cobra"
)

func newMCPCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve translation tools over MCP (stdio)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := gf.openApp(cmd, true)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := mcp.New(mcpDeps(a), version, a.Log)
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}
}

func mcpDeps(a *app.App) mcp.Deps {
	deps := mcp.Deps{
		Translator:   a.Splitter,
		Limits:       a.Limits,
		Keys:         []mcp.KeyLister{a.TranslateKeys, a.TranscribeKeys},
		Sessions:     a.Sessions,
		Usage:        a.Usage,
		HistoryLimit: a.Config.Session.HistoryLimit,
	}
	if a.Cache != nil {
		deps.Cache = a.Cache
	}
	if a.Budget != nil {
		deps.Budget = a.Budget
	}
	if a.Detector != nil {
		deps.Detector = a.Detector
	}
	return deps
}
