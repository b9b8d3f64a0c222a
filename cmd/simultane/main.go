package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fatih/color"
	"github.com/kappaborg/Simultane-Translate/pkg/app"
	"github.com/kappaborg/Simultane-Translate/pkg/config"
	"github.com/kappaborg/Simultane-Translate/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "simultane.yaml"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	ephemeral  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var gf globalFlags

	root := &cobra.Command{
		Use:           "simultane",
		Short:         "Simultane: resilient speech transcription and translation",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&gf.configPath, "config", "c", defaultConfigPath, "path to config file (.yaml or .toml)")
	root.PersistentFlags().StringVar(&gf.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&gf.ephemeral, "ephemeral", false, "keep rate-limit and key usage state in memory only")

	root.AddCommand(
		newServeCmd(&gf),
		newTranslateCmd(&gf),
		newDetectCmd(&gf),
		newTranscribeCmd(&gf),
		newCacheCmd(&gf),
		newLimitsCmd(&gf),
		newKeysCmd(&gf),
		newUsageCmd(&gf),
		newSessionsCmd(&gf),
		newMCPCmd(&gf),
	)
	return root
}

// loadConfig reads the config file. A missing file at the default path
// falls back to built-in defaults; an explicitly named file must exist.
func (gf *globalFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(gf.configPath)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		color.New(color.FgYellow).Fprintf(os.Stderr, "%s not found, using defaults\n", gf.configPath)
		return config.Default(), nil
	}
	return nil, err
}

// newLogger builds a logger at level unless --log-level overrides it.
func (gf *globalFlags) newLogger(level string) (*zap.Logger, error) {
	if gf.logLevel != "" {
		level = gf.logLevel
	}
	return logger.New(level)
}

// openApp loads configuration and builds every component. Short-lived
// commands log at warn unless --log-level says otherwise. The returned
// cleanup closes the app and flushes the logger.
func (gf *globalFlags) openApp(cmd *cobra.Command, quiet bool) (*app.App, func(), error) {
	cfg, err := gf.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if gf.ephemeral {
		cfg.EphemeralState = true
	}
	level := cfg.Log.Level
	if quiet {
		level = "warn"
	}
	log, err := gf.newLogger(level)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, fmt.Errorf("init: %w", err)
	}
	return a, func() {
		if err := a.Close(); err != nil {
			log.Warn("close", zap.Error(err))
		}
		_ = log.Sync()
	}, nil
}
