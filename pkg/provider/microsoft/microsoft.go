// Package microsoft translates with the Microsoft Translator v3 API.
package microsoft

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/kappaborg/Simultane-Translate/pkg/provider"
)

// DefaultURL is the global Translator endpoint.
const DefaultURL = "https://api.cognitive.microsofttranslator.com"

const confidence = 0.95

// Translator implements provider.BatchTranslator.
type Translator struct {
	url    string
	region string
	client *http.Client
}

var (
	_ provider.BatchTranslator = (*Translator)(nil)
	_ provider.Detector        = (*Translator)(nil)
)

// New creates a Translator. region may be empty for global resources.
func New(baseURL, region string, client *http.Client) *Translator {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Translator{url: strings.TrimSuffix(baseURL, "/"), region: region, client: client}
}

func (t *Translator) Name() string { return "microsoft" }

type textItem struct {
	Text string `json:"Text"`
}

type translation struct {
	DetectedLanguage *struct {
		Language string  `json:"language"`
		Score    float64 `json:"score"`
	} `json:"detectedLanguage"`
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

func (t *Translator) header(key string) http.Header {
	header := http.Header{}
	header.Set("Ocp-Apim-Subscription-Key", key)
	if t.region != "" {
		header.Set("Ocp-Apim-Subscription-Region", t.region)
	}
	return header
}

// TranslateBatch sends one request per language pair.
func (t *Translator) TranslateBatch(ctx context.Context, key string, items []models.TranslateItem) ([]models.TranslateResult, error) {
	header := t.header(key)

	results := make([]models.TranslateResult, len(items))
	order, groups := provider.GroupByPair(items)
	for _, pair := range order {
		idx := groups[pair]
		first := items[idx[0]]

		q := url.Values{}
		q.Set("api-version", "3.0")
		q.Set("to", first.TargetLang)
		if first.SourceLang != "" && first.SourceLang != "auto" {
			q.Set("from", first.SourceLang)
		}

		body := make([]textItem, len(idx))
		for j, i := range idx {
			body[j] = textItem{Text: items[i].Text}
		}

		var resp []translation
		if err := provider.PostJSON(ctx, t.client, t.url+"/translate?"+q.Encode(), header, body, &resp); err != nil {
			return nil, err
		}
		if len(resp) != len(idx) {
			return nil, provider.Errorf(provider.Unknown, "microsoft returned %d translations for %d texts", len(resp), len(idx))
		}
		for j, i := range idx {
			if len(resp[j].Translations) == 0 {
				return nil, provider.Errorf(provider.Unknown, "microsoft returned no translation for item %d", i)
			}
			results[i] = models.TranslateResult{Text: resp[j].Translations[0].Text, Confidence: models.Float(confidence)}
		}
	}
	return results, nil
}

// Detect translates text to English without a source language and reads
// the language the service detected.
func (t *Translator) Detect(ctx context.Context, key, text string) (models.Detection, error) {
	q := url.Values{}
	q.Set("api-version", "3.0")
	q.Set("to", "en")

	var resp []translation
	if err := provider.PostJSON(ctx, t.client, t.url+"/translate?"+q.Encode(), t.header(key), []textItem{{Text: text}}, &resp); err != nil {
		return models.Detection{}, err
	}
	if len(resp) == 0 || resp[0].DetectedLanguage == nil {
		return models.Detection{}, nil
	}
	d := resp[0].DetectedLanguage
	return models.Detection{Language: d.Language, Confidence: models.Float(d.Score)}, nil
}
