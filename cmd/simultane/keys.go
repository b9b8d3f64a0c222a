package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/kappaborg/Simultane-Translate/pkg/keys"
	"github.com/spf13/cobra"
)

func newKeysCmd(gf *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Inspect API key rotation pools",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-key usage in the current hour",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := gf.openApp(cmd, true)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			for _, pool := range []*keys.Rotator{a.TranslateKeys, a.TranscribeKeys} {
				statuses := pool.Statuses(cmd.Context())
				if len(statuses) == 0 {
					warnf(out, "%s: no keys configured", pool.Provider())
					continue
				}
				t := newTable(out, table.Row{"#", "Fingerprint", "Uses/h", "Last Used", "Current", "Over Quota"})
				t.SetTitle(pool.Provider())
				for _, k := range statuses {
					t.AppendRow(table.Row{k.Index, k.Fingerprint, k.UsageCount, fmtTime(k.LastUsedAt), yes(k.Current), yes(k.OverQuota)})
				}
				t.Render()
			}
			return nil
		},
	}

	cmd.AddCommand(statusCmd)
	return cmd
}
