package libre

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/kappaborg/Simultane-Translate/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateBatchGroupsByPair(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/translate", r.URL.Path)
		var req translateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "libre-key", req.APIKey)

		out := translateResponse{}
		for _, q := range req.Q {
			out.TranslatedText = append(out.TranslatedText, req.Target+":"+strings.ToUpper(q))
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	tr := New(srv.URL+"/translate", srv.Client())
	items := []models.TranslateItem{
		{Text: "hello", SourceLang: "en", TargetLang: "tr"},
		{Text: "world", SourceLang: "en", TargetLang: "de"},
		{Text: "bye", SourceLang: "en", TargetLang: "tr"},
	}
	got, err := tr.TranslateBatch(context.Background(), "libre-key", items)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "tr:HELLO", got[0].Text)
	assert.Equal(t, "de:WORLD", got[1].Text)
	assert.Equal(t, "tr:BYE", got[2].Text)
	assert.InDelta(t, 0.85, *got[0].Confidence, 1e-9)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTranslateBatchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "45")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"Slowdown: 30 per 1 minute"}`))
	}))
	defer srv.Close()

	tr := New(srv.URL, srv.Client())
	_, err := tr.TranslateBatch(context.Background(), "", []models.TranslateItem{{Text: "hi", SourceLang: "en", TargetLang: "tr"}})
	require.Error(t, err)
	assert.Equal(t, provider.RateLimited, provider.KindOf(err))
	assert.Contains(t, err.Error(), "retry after 45 seconds")
}

func TestTranslateBatchShortResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"translatedText":["only one"]}`))
	}))
	defer srv.Close()

	tr := New(srv.URL, srv.Client())
	_, err := tr.TranslateBatch(context.Background(), "", []models.TranslateItem{
		{Text: "a", SourceLang: "en", TargetLang: "tr"},
		{Text: "b", SourceLang: "en", TargetLang: "tr"},
	})
	assert.Equal(t, provider.Unknown, provider.KindOf(err))
}

func TestDetect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detect", r.URL.Path)
		var req detectRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Merhaba dünya", req.Q)
		assert.Equal(t, "libre-key", req.APIKey)
		_, _ = w.Write([]byte(`[{"confidence":92.0,"language":"tr"},{"confidence":4.0,"language":"az"}]`))
	}))
	defer srv.Close()

	tr := New(srv.URL+"/translate", srv.Client())
	got, err := tr.Detect(context.Background(), "libre-key", "Merhaba dünya")
	require.NoError(t, err)
	assert.Equal(t, "tr", got.Language)
	assert.InDelta(t, 0.92, *got.Confidence, 1e-9)
}

func TestDetectNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	got, err := New(srv.URL, srv.Client()).Detect(context.Background(), "", "???")
	require.NoError(t, err)
	assert.Empty(t, got.Language)
}
