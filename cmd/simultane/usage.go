package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newUsageCmd(gf *globalFlags) *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show remote call statistics and budget status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := gf.openApp(cmd, true)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			rows, err := a.Usage.Summary(ctx)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No usage data found.")
			} else {
				t := newTable(out, table.Row{"Provider", "Operation", "Requests", "Errors", "Items", "Avg Latency"})
				for _, r := range rows {
					t.AppendRow(table.Row{r.Provider, r.Operation, r.RequestCount, r.ErrorCount, r.TotalItems, fmt.Sprintf("%.0fms", r.AvgLatencyMs)})
				}
				t.Render()
			}

			if recent > 0 {
				records, err := a.Usage.Recent(ctx, recent)
				if err != nil {
					return err
				}
				t := newTable(out, table.Row{"Time", "Provider", "Operation", "Key", "Items", "Status", "Latency"})
				t.SetTitle("Recent calls")
				for _, r := range records {
					status := fmt.Sprint(r.StatusCode)
					if r.ErrorKind != "" {
						status = fmt.Sprintf("%d %s", r.StatusCode, r.ErrorKind)
					}
					t.AppendRow(table.Row{fmtTime(r.CreatedAt), r.Provider, r.Operation, r.KeyFingerprint, r.Items, status, fmt.Sprintf("%dms", r.LatencyMs)})
				}
				t.Render()
			}

			if a.Budget == nil {
				return nil
			}
			statuses, err := a.Budget.Status(ctx)
			if err != nil {
				return err
			}
			t := newTable(out, table.Row{"Provider", "Period", "Max", "Used", "Remaining"})
			t.SetTitle("Budgets")
			for _, s := range statuses {
				remaining := fmt.Sprint(s.Remaining)
				if s.Remaining <= 0 {
					remaining = warnString(remaining)
				}
				t.AppendRow(table.Row{s.Policy.Provider, s.Policy.Period, s.Policy.MaxRequests, s.Used, remaining})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&recent, "recent", 0, "also list this many recent calls")
	return cmd
}
