// Package openai transcribes speech with the Whisper API.
package openai

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/kappaborg/Simultane-Translate/pkg/provider"
	goopenai "github.com/sashabaranov/go-openai"
)

const confidence = 0.9

// Config holds Whisper connection settings.
type Config struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Transcriber implements provider.Transcriber with go-openai.
type Transcriber struct {
	cfg Config
}

var _ provider.Transcriber = (*Transcriber)(nil)

// New creates a Whisper transcriber.
func New(cfg Config) *Transcriber {
	if cfg.Model == "" {
		cfg.Model = goopenai.Whisper1
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Transcriber{cfg: cfg}
}

func (t *Transcriber) Name() string { return "openai" }

// Transcribe sends audio to the transcription endpoint using key.
func (t *Transcriber) Transcribe(ctx context.Context, key string, audio []byte, filename, language string) (models.Transcription, error) {
	if len(audio) == 0 {
		return models.Transcription{}, provider.Errorf(provider.BadInput, "audio is empty")
	}
	if filename == "" {
		filename = "audio.webm"
	}

	cc := goopenai.DefaultConfig(key)
	if t.cfg.BaseURL != "" {
		cc.BaseURL = t.cfg.BaseURL
	}
	cc.HTTPClient = t.cfg.HTTPClient
	client := goopenai.NewClientWithConfig(cc)

	req := goopenai.AudioRequest{
		Model:    t.cfg.Model,
		FilePath: filepath.Base(filename),
		Reader:   bytes.NewReader(audio),
		Format:   goopenai.AudioResponseFormatJSON,
	}
	if language != "" && language != "auto" {
		req.Language = language
	}

	resp, err := client.CreateTranscription(ctx, req)
	if err != nil {
		return models.Transcription{}, classify(err)
	}
	return models.Transcription{
		Text:       resp.Text,
		Language:   language,
		Confidence: models.Float(confidence),
	}, nil
}

func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		pe := provider.FromStatus(apiErr.HTTPStatusCode, apiErr.Message)
		pe.Err = err
		return pe
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		pe := provider.FromStatus(reqErr.HTTPStatusCode, reqErr.Error())
		pe.Err = err
		return pe
	}
	return provider.Classify(err)
}
