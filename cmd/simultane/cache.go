package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd(gf *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the translation cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache size and limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := gf.openApp(cmd, true)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			if a.Cache == nil {
				warnf(out, "Cache is disabled.")
				return nil
			}
			stats, err := a.Cache.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Entries:  %d / %d\nTTL:      %s\nDatabase: %s\n",
				stats.Size, a.Config.Cache.MaxSize, a.Config.Cache.TTL, a.Config.DBPath)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cache entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := gf.openApp(cmd, true)
			if err != nil {
				return err
			}
			defer cleanup()

			if a.Cache == nil {
				warnf(cmd.OutOrStdout(), "Cache is disabled.")
				return nil
			}
			if err := a.Cache.Clear(cmd.Context()); err != nil {
				return err
			}
			okf(cmd.OutOrStdout(), "All cache entries cleared.")
			return nil
		},
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Drop expired entries and evict the oldest beyond the size limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := gf.openApp(cmd, true)
			if err != nil {
				return err
			}
			defer cleanup()

			if a.Cache == nil {
				warnf(cmd.OutOrStdout(), "Cache is disabled.")
				return nil
			}
			removed, err := a.Cache.CleanExpired(cmd.Context())
			if err != nil {
				return err
			}
			okf(cmd.OutOrStdout(), "Removed %d cache entries.", removed)
			return nil
		},
	}

	cmd.AddCommand(statsCmd, clearCmd, sweepCmd)
	return cmd
}
