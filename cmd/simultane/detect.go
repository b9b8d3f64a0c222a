package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newDetectCmd(gf *globalFlags) *cobra.Command {
	var (
		asJSON  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "detect [text...]",
		Short: "Detect the language of text; reads stdin when no text is given",
		RunE: func(cmd *cobra.Command, args []string) error {
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
			if a.Detector == nil {
				return fmt.Errorf("the %s translator cannot detect languages", a.Translator.Name())
			}

			ctx, cancel := withTimeout(cmd.Context(), timeout)
			defer cancel()

			res, err := a.Detector.Detect(ctx, text)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Language)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the language and confidence as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout (0 for none)")
	return cmd
}
