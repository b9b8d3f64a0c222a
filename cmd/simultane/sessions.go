package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/kappaborg/Simultane-Translate/pkg/export"
	"github.com/kappaborg/Simultane-Translate/pkg/session"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func newSessionsCmd(gf *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Browse, export and delete translation history",
	}

	cmd.AddCommand(
		newSessionsListCmd(gf),
		newSessionsShowCmd(gf),
		newSessionsExportCmd(gf),
		newSessionsDeleteCmd(gf),
		newSessionsClearCmd(gf),
	)
	return cmd
}

func newSessionsListCmd(gf *globalFlags) *cobra.Command {
	var (
		limit  int
		since  string
		from   string
		to     string
		active bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := gf.openApp(cmd, true)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := session.ListOptions{
				Limit:      limit,
				SourceLang: from,
				TargetLang: to,
				ActiveOnly: active,
			}
			if opts.Limit <= 0 {
				opts.Limit = a.Config.Session.HistoryLimit
			}
			if since != "" {
				t, err := time.ParseInLocation("2006-01-02", since, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			list, err := a.Sessions.List(cmd.Context(), opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No sessions found.")
				return nil
			}
			t := newTable(out, table.Row{"Session ID", "Languages", "Started", "Ended", "Entries"})
			for _, s := range list {
				ended := "active"
				if s.EndedAt != nil {
					ended = fmtTime(*s.EndedAt)
				}
				t.AppendRow(table.Row{s.ID, s.SourceLang + " > " + s.TargetLang, fmtTime(s.StartedAt), ended, s.EntryCount})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum sessions (default: session.history_limit)")
	cmd.Flags().StringVar(&since, "since", "", "only sessions started on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&from, "from", "", "filter by source language")
	cmd.Flags().StringVar(&to, "to", "", "filter by target language")
	cmd.Flags().BoolVar(&active, "active", false, "only sessions that have not ended")
	return cmd
}

func newSessionsShowCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show every translation in a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := gf.openApp(cmd, true)
			if err != nil {
				return err
			}
			defer cleanup()

			sess, err := a.Sessions.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session:   %s\nLanguages: %s > %s\nStarted:   %s\n",
				sess.ID, sess.SourceLang, sess.TargetLang, fmtTime(sess.StartedAt))
			if sess.EndedAt != nil {
				fmt.Fprintf(out, "Ended:     %s\n", fmtTime(*sess.EndedAt))
			}
			if len(sess.Translations) == 0 {
				fmt.Fprintln(out, "No translations.")
				return nil
			}

			t := newTable(out, table.Row{"#", "Time", "Original", "Translation", "Confidence"})
			t.SetColumnConfigs([]table.ColumnConfig{
				{Number: 3, WidthMax: 50},
				{Number: 4, WidthMax: 50},
			})
			for i, e := range sess.Translations {
				conf := "-"
				if e.Confidence != nil {
					conf = fmt.Sprintf("%.2f", *e.Confidence)
				}
				t.AppendRow(table.Row{i + 1, fmtTime(e.CreatedAt), e.OriginalText, e.TranslatedText, conf})
			}
			t.Render()
			return nil
		},
	}
}

func newSessionsExportCmd(gf *globalFlags) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a session as text, CSV or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			a, cleanup, err := gf.openApp(cmd, true)
			if err != nil {
				return err
			}
			defer cleanup()

			sess, err := a.Sessions.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			switch output {
			case "-":
			case "":
				output = export.Filename(sess, f)
				fallthrough
			default:
				file, cerr := os.Create(output)
				if cerr != nil {
					return fmt.Errorf("create %s: %w", output, cerr)
				}
				defer func() { err = multierr.Append(err, file.Close()) }()
				bw := bufio.NewWriter(file)
				defer func() { err = multierr.Append(err, bw.Flush()) }()
				w = bw
			}

			if err := export.Write(w, sess, f); err != nil {
				return err
			}
			if output != "-" {
				okf(cmd.ErrOrStderr(), "Exported %d translations to %s", len(sess.Translations), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(export.Text), "output format: txt, csv or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", `output file; "-" for stdout (default: generated file name)`)
	return cmd
}

func newSessionsDeleteCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its translations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := gf.openApp(cmd, true)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.Sessions.Delete(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, session.ErrNotFound) {
					return fmt.Errorf("session %s not found", args[0])
				}
				return err
			}
			okf(cmd.OutOrStdout(), "Deleted session %s.", args[0])
			return nil
		},
	}
}

func newSessionsClearCmd(gf *globalFlags) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all session history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errors.New("refusing to delete all sessions without --yes")
			}

			a, cleanup, err := gf.openApp(cmd, true)
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := a.Sessions.Clear(cmd.Context())
			if err != nil {
				return err
			}
			okf(cmd.OutOrStdout(), "Deleted %d sessions.", n)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&confirm, "yes", "y", false, "confirm deleting every session")
	return cmd
}
