package microsoft

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/kappaborg/Simultane-Translate/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate", r.URL.Path)
		assert.Equal(t, "3.0", r.URL.Query().Get("api-version"))
		assert.Equal(t, "en", r.URL.Query().Get("from"))
		assert.Equal(t, "ms-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "westeurope", r.Header.Get("Ocp-Apim-Subscription-Region"))

		var body []textItem
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		to := r.URL.Query().Get("to")
		out := make([]map[string]any, len(body))
		for i, it := range body {
			out[i] = map[string]any{"translations": []map[string]string{{"text": fmt.Sprintf("%s-%s", to, it.Text), "to": to}}}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	tr := New(srv.URL, "westeurope", srv.Client())
	got, err := tr.TranslateBatch(context.Background(), "ms-key", []models.TranslateItem{
		{Text: "one", SourceLang: "en", TargetLang: "tr"},
		{Text: "two", SourceLang: "en", TargetLang: "fr"},
		{Text: "three", SourceLang: "en", TargetLang: "tr"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tr-one", "fr-two", "tr-three"}, []string{got[0].Text, got[1].Text, got[2].Text})
	assert.InDelta(t, 0.95, *got[1].Confidence, 1e-9)
}

func TestTranslateBatchUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":401000,"message":"The request is not authorized"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", srv.Client()).TranslateBatch(context.Background(), "bad", []models.TranslateItem{{Text: "x", SourceLang: "en", TargetLang: "tr"}})
	assert.Equal(t, provider.Unauthorized, provider.KindOf(err))
}

func TestDetect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate", r.URL.Path)
		assert.Equal(t, "en", r.URL.Query().Get("to"))
		assert.Empty(t, r.URL.Query().Get("from"))
		assert.Equal(t, "ms-key", r.Header.Get("Ocp-Apim-Subscription-Key"))

		var body []textItem
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body, 1)
		assert.Equal(t, "Bonjour tout le monde", body[0].Text)
		_, _ = w.Write([]byte(`[{"detectedLanguage":{"language":"fr","score":0.98},"translations":[{"text":"Hello everyone","to":"en"}]}]`))
	}))
	defer srv.Close()

	tr := New(srv.URL, "", srv.Client())
	got, err := tr.Detect(context.Background(), "ms-key", "Bonjour tout le monde")
	require.NoError(t, err)
	assert.Equal(t, "fr", got.Language)
	assert.InDelta(t, 0.98, *got.Confidence, 1e-9)
}

func TestDetectRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", srv.Client()).Detect(context.Background(), "ms-key", "hola")
	assert.Equal(t, provider.RateLimited, provider.KindOf(err))
}
