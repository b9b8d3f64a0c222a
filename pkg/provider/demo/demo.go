// Package demo provides offline stand-ins used when no credentials are set.
package demo

import (
	"context"
	"strings"

	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/kappaborg/Simultane-Translate/pkg/provider"
)

const confidence = 0.95

// Transcript is returned for every clip by the demo transcriber.
const Transcript = "This is a simulated transcription because no API keys are configured."

// Translator prefixes each text with its target language.
type Translator struct{}

var (
	_ provider.BatchTranslator = Translator{}
	_ provider.Detector        = Translator{}
)

// Language is what the demo translator detects for any text.
const Language = "en"

func (Translator) Name() string { return "demo" }

func (Translator) TranslateBatch(ctx context.Context, _ string, items []models.TranslateItem) ([]models.TranslateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, provider.Classify(err)
	}
	out := make([]models.TranslateResult, len(items))
	for i, it := range items {
		if strings.TrimSpace(it.Text) == "" {
			continue
		}
		out[i] = models.TranslateResult{Text: "[" + it.TargetLang + "] " + it.Text, Confidence: models.Float(confidence)}
	}
	return out, nil
}

func (Translator) Detect(ctx context.Context, _, _ string) (models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return models.Detection{}, provider.Classify(err)
	}
	return models.Detection{Language: Language, Confidence: models.Float(confidence)}, nil
}

// Transcriber returns a fixed transcript.
type Transcriber struct{}

var _ provider.Transcriber = Transcriber{}

func (Transcriber) Name() string { return "demo" }

func (Transcriber) Transcribe(ctx context.Context, _ string, audio []byte, _, language string) (models.Transcription, error) {
	if err := ctx.Err(); err != nil {
		return models.Transcription{}, provider.Classify(err)
	}
	if len(audio) == 0 {
		return models.Transcription{}, provider.Errorf(provider.BadInput, "audio is empty")
	}
	return models.Transcription{Text: Transcript, Language: language, Confidence: models.Float(confidence)}, nil
}
