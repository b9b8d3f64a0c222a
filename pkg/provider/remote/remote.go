// Package remote forwards batches to another simultane server.
package remote

import (
	"context"
	"net/http"
	"strings"

	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/kappaborg/Simultane-Translate/pkg/provider"
)

// Translator implements provider.BatchTranslator against /v1/translate-batch.
type Translator struct {
	url    string
	client *http.Client
}

var _ provider.BatchTranslator = (*Translator)(nil)

// New creates a Translator for the server at baseURL.
func New(baseURL string, client *http.Client) *Translator {
	if client == nil {
		client = &http.Client{}
	}
	return &Translator{url: strings.TrimSuffix(baseURL, "/"), client: client}
}

func (t *Translator) Name() string { return "remote" }

// BatchRequest is the body of POST /v1/translate-batch.
type BatchRequest struct {
	Requests []models.TranslateItem `json:"requests"`
}

// TranslateBatch posts all items in a single request.
func (t *Translator) TranslateBatch(ctx context.Context, key string, items []models.TranslateItem) ([]models.TranslateResult, error) {
	var header http.Header
	if key != "" {
		header = http.Header{}
		header.Set("Authorization", "Bearer "+key)
	}

	var results []models.TranslateResult
	if err := provider.PostJSON(ctx, t.client, t.url+"/v1/translate-batch", header, BatchRequest{Requests: items}, &results); err != nil {
		return nil, err
	}
	if err := provider.CheckBatch(items, results); err != nil {
		return nil, err
	}
	return results, nil
}
