package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLimitsCmd(gf *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "limits",
		Short: "Inspect or reset the shared rate-limit state",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show remaining quota and cooldown",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := gf.openApp(cmd, true)
			if err != nil {
				return err
			}
			defer cleanup()

			st := a.Limits.Status(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Remaining requests: %d\n", st.State.RemainingRequests)
			fmt.Fprintf(out, "Resets at:          %s\n", fmtTime(st.State.ResetTime))
			fmt.Fprintf(out, "Strategy:           %s (x%.2f)\n", st.State.CooldownStrategy, st.State.CooldownMultiplier)
			fmt.Fprintf(out, "Consecutive errors: %d\n", st.State.ConsecutiveErrors)
			if le := st.State.LastError; le != nil {
				fmt.Fprintf(out, "Last error:         %d %s (%s)\n", le.StatusCode, le.Message, fmtTime(le.Timestamp))
			}
			if st.CanProceed {
				okf(out, "Requests allowed.")
			} else {
				warnf(out, "Rate limited: %s", st.RemainingDisplay)
			}
			return nil
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Restore the full quota and clear the cooldown",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := gf.openApp(cmd, true)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.Limits.Reset(cmd.Context()); err != nil {
				return err
			}
			okf(cmd.OutOrStdout(), "Rate-limit state reset.")
			return nil
		},
	}

	cmd.AddCommand(statusCmd, resetCmd)
	return cmd
}
