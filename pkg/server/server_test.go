package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/kappaborg/Simultane-Translate/pkg/app"
	"github.com/kappaborg/Simultane-Translate/pkg/config"
	"github.com/kappaborg/Simultane-Translate/pkg/live"
	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/kappaborg/Simultane-Translate/pkg/provider/demo"
	"github.com/kappaborg/Simultane-Translate/pkg/provider/remote"
	"github.com/kappaborg/Simultane-Translate/pkg/queue"
	"github.com/kappaborg/Simultane-Translate/pkg/splitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServer(t *testing.T) (*Server, *app.App) {
	t.Helper()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "server.db")
	cfg.Translation.Type = "demo"
	cfg.Transcription.Type = "demo"
	cfg.Queue.Interval = 0

	a, err := app.New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return New(a), a
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestTranslate(t *testing.T) {
	srv, _ := setupServer(t)

	w := do(t, srv, http.MethodPost, "/v1/translate", `{"text":"Hello.","sourceLang":"en","targetLang":"tr"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res splitter.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "[tr] Hello.", res.Text)
	assert.Equal(t, 0.95, res.Confidence)
}

func TestTranslateRejectsBadLanguage(t *testing.T) {
	srv, _ := setupServer(t)

	w := do(t, srv, http.MethodPost, "/v1/translate", `{"text":"Hello.","sourceLang":"en","targetLang":"auto"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "simultane_error")

	w = do(t, srv, http.MethodPost, "/v1/translate", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTranslateBatch(t *testing.T) {
	srv, _ := setupServer(t)

	body, _ := json.Marshal(remote.BatchRequest{Requests: []models.TranslateItem{
		{Text: "One.", SourceLang: "en", TargetLang: "de"},
		{Text: "Two.", SourceLang: "en", TargetLang: "!!"},
		{Text: "Three.", SourceLang: "en", TargetLang: "fr"},
	}})
	w := do(t, srv, http.MethodPost, "/v1/translate-batch", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var results []models.TranslateResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, 3)
	assert.Equal(t, "[de] One.", results[0].Text)
	assert.Equal(t, "", results[1].Text)
	assert.Equal(t, "[fr] Three.", results[2].Text)
}

type orderedTranslator struct {
	mu    sync.Mutex
	texts []string
}

func (o *orderedTranslator) Name() string { return "ordered" }

func (o *orderedTranslator) TranslateBatch(_ context.Context, _ string, items []models.TranslateItem) ([]models.TranslateResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.TranslateResult, len(items))
	for i, it := range items {
		o.texts = append(o.texts, it.Text)
		out[i] = models.TranslateResult{Text: it.Text}
	}
	return out, nil
}

func TestTranslateBatchKeepsRequestOrder(t *testing.T) {
	srv, a := setupServer(t)
	tr := &orderedTranslator{}
	q := queue.New(tr, queue.Deps{Limiter: a.Limits}, queue.Options{BatchSize: 3})
	t.Cleanup(func() { _ = q.Close() })
	a.Queue = q

	var req remote.BatchRequest
	var want []string
	for i := range 10 {
		text := fmt.Sprintf("Sentence %d.", i)
		want = append(want, text)
		req.Requests = append(req.Requests, models.TranslateItem{Text: text, SourceLang: "en", TargetLang: "tr"})
	}
	body, _ := json.Marshal(req)
	w := do(t, srv, http.MethodPost, "/v1/translate-batch", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var results []models.TranslateResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, len(want))
	for i, res := range results {
		assert.Equal(t, want[i], res.Text)
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, want, tr.texts)
}

func TestDetect(t *testing.T) {
	srv, a := setupServer(t)

	w := do(t, srv, http.MethodPost, "/v1/detect", `{"text":"Bonjour tout le monde"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res models.Detection
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, demo.Language, res.Language)

	w = do(t, srv, http.MethodPost, "/v1/detect", `{"text":"  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	a.Limits.ReportError(context.Background(), 429, "Try again in 30 seconds")
	w = do(t, srv, http.MethodPost, "/v1/detect", `{"text":"Hola"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	a.Detector = nil
	w = do(t, srv, http.MethodPost, "/v1/detect", `{"text":"Hola"}`)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRateLimitedReturns429(t *testing.T) {
	srv, a := setupServer(t)
	a.Limits.ReportError(context.Background(), 429, "Try again in 30 seconds")

	w := do(t, srv, http.MethodPost, "/v1/translate", `{"text":"Fresh text.","sourceLang":"en","targetLang":"tr"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "API rate limit exceeded")

	w = do(t, srv, http.MethodGet, "/v1/limits", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st models.LimitStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.False(t, st.CanProceed)

	w = do(t, srv, http.MethodPost, "/v1/limits/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.True(t, st.CanProceed)
}

func TestSessionLifecycle(t *testing.T) {
	srv, _ := setupServer(t)

	w := do(t, srv, http.MethodPost, "/v1/sessions", `{"sourceLang":"en","targetLang":"tr"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sess models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))

	w = do(t, srv, http.MethodPost, "/v1/sessions/"+sess.ID+"/utterances", `{"text":"Good night."}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "utt.wav")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("RIFF"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+sess.ID+"/utterances", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	w = do(t, srv, http.MethodGet, "/v1/sessions/"+sess.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Translations, 2)
	assert.Equal(t, "[tr] Good night.", got.Translations[0].TranslatedText)
	assert.Equal(t, demo.Transcript, got.Translations[1].OriginalText)

	w = do(t, srv, http.MethodGet, "/v1/sessions/"+sess.ID+"/export?format=csv", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")
	assert.Contains(t, w.Body.String(), "Good night.")

	w = do(t, srv, http.MethodGet, "/v1/sessions/"+sess.ID+"/export?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPost, "/v1/sessions/"+sess.ID+"/end", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodGet, "/v1/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = do(t, srv, http.MethodDelete, "/v1/sessions/"+sess.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, srv, http.MethodGet, "/v1/sessions/"+sess.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTranscribe(t *testing.T) {
	srv, _ := setupServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "clip.webm")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("audio"))
	require.NoError(t, mw.WriteField("language", "en"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/transcribe", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var tr models.Transcription
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tr))
	assert.Equal(t, demo.Transcript, tr.Text)

	w = do(t, srv, http.MethodPost, "/v1/transcribe", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCacheAndUsageEndpoints(t *testing.T) {
	srv, _ := setupServer(t)
	do(t, srv, http.MethodPost, "/v1/translate", `{"text":"Hello.","sourceLang":"en","targetLang":"tr"}`)

	w := do(t, srv, http.MethodGet, "/v1/cache", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.CacheStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Size)

	w = do(t, srv, http.MethodPost, "/v1/cache/sweep", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodDelete, "/v1/cache", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, srv, http.MethodGet, "/v1/usage", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"provider":"demo"`)

	w = do(t, srv, http.MethodGet, "/v1/keys", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLiveWebsocket(t *testing.T) {
	srv, a := setupServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	sess, err := a.Sessions.Create(context.Background(), "en", "tr")
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/" + sess.ID + "/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("See you.")))
	var ev live.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, live.EventTranslation, ev.Type)
	require.NotNil(t, ev.Entry)
	assert.Equal(t, "[tr] See you.", ev.Entry.TranslatedText)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("RIFF")))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, live.EventTranscript, ev.Type)
	assert.Equal(t, demo.Transcript, ev.Text)
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, live.EventTranslation, ev.Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("   ")))
	var le liveError
	require.NoError(t, conn.ReadJSON(&le))
	assert.Equal(t, http.StatusBadRequest, le.Code)
}
