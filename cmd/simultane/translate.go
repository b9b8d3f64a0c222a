package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kappaborg/Simultane-Translate/pkg/provider"
	"github.com/spf13/cobra"
)

func newTranslateCmd(gf *globalFlags) *cobra.Command {
	var (
		from    string
		to      string
		asJSON  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "translate [text...]",
		Short: "Translate text; reads stdin when no text is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := provider.ValidatePair(from, to); err != nil {
				return err
			}

			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}

			a, cleanup, err := gf.openApp(cmd, true)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := withTimeout(cmd.Context(), timeout)
			defer cancel()

			res, err := a.Splitter.TranslateLarge(ctx, text, from, to)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&from, "from", "f", "auto", "source language")
	cmd.Flags().StringVarP(&to, "to", "t", "", "target language")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout (0 for none)")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// withTimeout bounds parent by d. Zero means no bound.
func withTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}

func readFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
