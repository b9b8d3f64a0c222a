package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kappaborg/Simultane-Translate/pkg/provider"
	"github.com/spf13/cobra"
)

type transcribeOutput struct {
	Text        string   `json:"text"`
	Language    string   `json:"language,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Translation string   `json:"translation,omitempty"`
}

func newTranscribeCmd(gf *globalFlags) *cobra.Command {
	var (
		lang    string
		to      string
		asJSON  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file|->",
		Short: "Transcribe an audio file, optionally translating the transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if to != "" {
				if err := provider.ValidatePair(lang, to); err != nil {
					return err
				}
			}

			audio, err := readFile(args[0])
			if err != nil {
				return fmt.Errorf("read audio: %w", err)
			}
			filename := filepath.Base(args[0])
			if args[0] == "-" {
				filename = "audio.webm"
			}

			a, cleanup, err := gf.openApp(cmd, true)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := withTimeout(cmd.Context(), timeout)
			defer cancel()

			tr, err := a.Transcription.Transcribe(ctx, audio, filename, lang)
			if err != nil {
				return err
			}
			out := transcribeOutput{Text: tr.Text, Language: tr.Language, Confidence: tr.Confidence}

			if to != "" {
				res, err := a.Splitter.TranslateLarge(ctx, tr.Text, lang, to)
				if err != nil {
					return err
				}
				out.Translation = res.Text
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Text)
			if out.Translation != "" {
				fmt.Fprintln(cmd.OutOrStdout(), out.Translation)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&lang, "language", "auto", "spoken language, or auto")
	cmd.Flags().StringVarP(&to, "to", "t", "", "also translate the transcript into this language")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall timeout (0 for none)")
	return cmd
}
