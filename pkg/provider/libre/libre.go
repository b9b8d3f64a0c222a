// Package libre translates through a LibreTranslate server.
package libre

import (
	"context"
	"net/http"
	"strings"

	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/kappaborg/Simultane-Translate/pkg/provider"
)

// DefaultURL is the public LibreTranslate instance.
const DefaultURL = "https://libretranslate.com"

const confidence = 0.85

// Translator implements provider.BatchTranslator. Items sharing a language
// pair go out as one request with q as an array.
type Translator struct {
	url    string
	client *http.Client
}

var (
	_ provider.BatchTranslator = (*Translator)(nil)
	_ provider.Detector        = (*Translator)(nil)
)

// New creates a Translator for the server at url.
func New(url string, client *http.Client) *Translator {
	if url == "" {
		url = DefaultURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Translator{url: strings.TrimSuffix(strings.TrimSuffix(url, "/"), "/translate"), client: client}
}

func (t *Translator) Name() string { return "libre" }

type translateRequest struct {
	Q      []string `json:"q"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Format string   `json:"format"`
	APIKey string   `json:"api_key,omitempty"`
}

type translateResponse struct {
	TranslatedText []string `json:"translatedText"`
}

// TranslateBatch translates items, one request per language pair.
func (t *Translator) TranslateBatch(ctx context.Context, key string, items []models.TranslateItem) ([]models.TranslateResult, error) {
	results := make([]models.TranslateResult, len(items))
	order, groups := provider.GroupByPair(items)
	for _, pair := range order {
		idx := groups[pair]
		first := items[idx[0]]

		req := translateRequest{
			Source: first.SourceLang,
			Target: first.TargetLang,
			Format: "text",
			APIKey: key,
		}
		for _, i := range idx {
			req.Q = append(req.Q, items[i].Text)
		}

		var resp translateResponse
		if err := provider.PostJSON(ctx, t.client, t.url+"/translate", nil, req, &resp); err != nil {
			return nil, err
		}
		if len(resp.TranslatedText) != len(idx) {
			return nil, provider.Errorf(provider.Unknown, "libre returned %d translations for %d texts", len(resp.TranslatedText), len(idx))
		}
		for j, i := range idx {
			results[i] = models.TranslateResult{Text: resp.TranslatedText[j], Confidence: models.Float(confidence)}
		}
	}
	return results, nil
}

type detectRequest struct {
	Q      string `json:"q"`
	APIKey string `json:"api_key,omitempty"`
}

type detectResponse []struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// Detect asks /detect for the language of text. Candidates come back best
// first with confidence on a 0-100 scale.
func (t *Translator) Detect(ctx context.Context, key, text string) (models.Detection, error) {
	var resp detectResponse
	if err := provider.PostJSON(ctx, t.client, t.url+"/detect", nil, detectRequest{Q: text, APIKey: key}, &resp); err != nil {
		return models.Detection{}, err
	}
	if len(resp) == 0 {
		return models.Detection{}, nil
	}
	return models.Detection{Language: resp[0].Language, Confidence: models.Float(resp[0].Confidence / 100)}, nil
}
