// Package factory builds providers from configuration.
package factory

import (
	"fmt"
	"net/http"

	"github.com/kappaborg/Simultane-Translate/pkg/config"
	"github.com/kappaborg/Simultane-Translate/pkg/logger"
	"github.com/kappaborg/Simultane-Translate/pkg/provider"
	"github.com/kappaborg/Simultane-Translate/pkg/provider/demo"
	"github.com/kappaborg/Simultane-Translate/pkg/provider/libre"
	"github.com/kappaborg/Simultane-Translate/pkg/provider/microsoft"
	"github.com/kappaborg/Simultane-Translate/pkg/provider/openai"
	"github.com/kappaborg/Simultane-Translate/pkg/provider/remote"
	"go.uber.org/zap"
)

// NewTranslator returns the translation provider named by cfg.Type.
// Providers that cannot work without a key fall back to demo mode.
func NewTranslator(cfg config.TranslationConfig, log *zap.Logger) (provider.BatchTranslator, error) {
	log = logger.OrNop(log)
	client := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Type {
	case "", "libre":
		return libre.New(cfg.URL, client), nil
	case "microsoft":
		if len(cfg.APIKeys) == 0 {
			log.Warn("no microsoft translator keys configured, using demo translations")
			return demo.Translator{}, nil
		}
		url := cfg.URL
		if url == libre.DefaultURL {
			url = ""
		}
		return microsoft.New(url, cfg.Region, client), nil
	case "remote":
		if cfg.URL == "" {
			return nil, fmt.Errorf("translation.url is required for the remote provider")
		}
		return remote.New(cfg.URL, client), nil
	case "demo":
		return demo.Translator{}, nil
	default:
		return nil, fmt.Errorf("unsupported translation provider: %s", cfg.Type)
	}
}

// NewTranscriber returns the speech-to-text provider named by cfg.Type.
func NewTranscriber(cfg config.TranscriptionConfig, log *zap.Logger) (provider.Transcriber, error) {
	log = logger.OrNop(log)

	switch cfg.Type {
	case "", "openai":
		if len(cfg.APIKeys) == 0 {
			log.Warn("no openai keys configured, using demo transcription")
			return demo.Transcriber{}, nil
		}
		return openai.New(openai.Config{
			BaseURL:    cfg.URL,
			Model:      cfg.Model,
			HTTPClient: &http.Client{Timeout: cfg.Timeout},
		}), nil
	case "demo":
		return demo.Transcriber{}, nil
	default:
		return nil, fmt.Errorf("unsupported transcription provider: %s", cfg.Type)
	}
}
