// Package server exposes translation, transcription and session history
// over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/kappaborg/Simultane-Translate/pkg/app"
	"github.com/kappaborg/Simultane-Translate/pkg/budget"
	"github.com/kappaborg/Simultane-Translate/pkg/export"
	"github.com/kappaborg/Simultane-Translate/pkg/logger"
	"github.com/kappaborg/Simultane-Translate/pkg/provider"
	"github.com/kappaborg/Simultane-Translate/pkg/queue"
	"github.com/kappaborg/Simultane-Translate/pkg/ratelimit"
	"github.com/kappaborg/Simultane-Translate/pkg/session"
	"go.uber.org/zap"
)

const maxJSONBody = 1 << 20

// Server is the Simultane HTTP API.
type Server struct {
	app *app.App
	log *zap.Logger
	mux *http.ServeMux
}

// New creates a Server backed by a.
func New(a *app.App) *Server {
	s := &Server{
		app: a,
		log: logger.OrNop(a.Log).Named("server"),
		mux: http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /v1/translate", s.handleTranslate)
	s.mux.HandleFunc("POST /v1/translate-batch", s.handleTranslateBatch)
	s.mux.HandleFunc("POST /v1/transcribe", s.handleTranscribe)
	s.mux.HandleFunc("POST /v1/detect", s.handleDetect)

	s.mux.HandleFunc("GET /v1/limits", s.handleLimits)
	s.mux.HandleFunc("POST /v1/limits/reset", s.handleLimitsReset)
	s.mux.HandleFunc("GET /v1/keys", s.handleKeys)
	s.mux.HandleFunc("GET /v1/cache", s.handleCacheStats)
	s.mux.HandleFunc("DELETE /v1/cache", s.handleCacheClear)
	s.mux.HandleFunc("POST /v1/cache/sweep", s.handleCacheSweep)
	s.mux.HandleFunc("GET /v1/usage", s.handleUsage)

	s.mux.HandleFunc("POST /v1/sessions", s.handleSessionCreate)
	s.mux.HandleFunc("GET /v1/sessions", s.handleSessionList)
	s.mux.HandleFunc("GET /v1/sessions/{id}", s.handleSessionGet)
	s.mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleSessionDelete)
	s.mux.HandleFunc("POST /v1/sessions/{id}/end", s.handleSessionEnd)
	s.mux.HandleFunc("POST /v1/sessions/{id}/utterances", s.handleUtterance)
	s.mux.HandleFunc("GET /v1/sessions/{id}/export", s.handleSessionExport)
	s.mux.HandleFunc("GET /v1/sessions/{id}/live", s.handleLive)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.app.Config.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("simultane listening", zap.String("addr", s.app.Config.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"simultane_error","code":%d}}`, message, code)
}

// statusFor maps an error to the HTTP status returned to clients.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ratelimit.ErrRateLimited), errors.Is(err, budget.ErrBudgetExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrClosed):
		return http.StatusServiceUnavailable
	}
	var pe *provider.Error
	if !errors.As(err, &pe) && !errors.Is(err, context.DeadlineExceeded) {
		return http.StatusInternalServerError
	}
	switch provider.KindOf(err) {
	case provider.RateLimited:
		return http.StatusTooManyRequests
	case provider.Unauthorized:
		return http.StatusUnauthorized
	case provider.BadInput:
		return http.StatusBadRequest
	case provider.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// writeError writes err with its mapped status. Rate-limit rejections carry
// a Retry-After header with the tracker's remaining wait.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusTooManyRequests {
		if wait := s.app.Limits.Wait(r.Context()); wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		}
	}
	if code >= 500 {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Int("status", code), zap.Error(err))
	}
	writeJSONError(w, code, err.Error())
}
