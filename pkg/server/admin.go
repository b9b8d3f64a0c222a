package server

import (
	"net/http"
	"strconv"

	"github.com/kappaborg/Simultane-Translate/pkg/models"
)

type keysResponse struct {
	Translation   []models.KeyStatus `json:"translation"`
	Transcription []models.KeyStatus `json:"transcription"`
}

type usageResponse struct {
	Summary []models.UsageSummary `json:"summary"`
	Recent  []models.UsageRecord  `json:"recent"`
	Budgets []models.BudgetStatus `json:"budgets,omitempty"`
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Limits.Status(r.Context()))
}

func (s *Server) handleLimitsReset(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Limits.Reset(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.Limits.Status(r.Context()))
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, keysResponse{
		Translation:   s.app.TranslateKeys.Statuses(r.Context()),
		Transcription: s.app.TranscribeKeys.Statuses(r.Context()),
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if s.app.Cache == nil {
		writeJSONError(w, http.StatusNotFound, "cache is disabled")
		return
	}
	stats, err := s.app.Cache.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if s.app.Cache == nil {
		writeJSONError(w, http.StatusNotFound, "cache is disabled")
		return
	}
	if err := s.app.Cache.Clear(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCacheSweep(w http.ResponseWriter, r *http.Request) {
	if s.app.Cache == nil {
		writeJSONError(w, http.StatusNotFound, "cache is disabled")
		return
	}
	n, err := s.app.Cache.CleanExpired(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	ctx := r.Context()
	summary, err := s.app.Usage.Summary(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recent, err := s.app.Usage.Recent(ctx, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	budgets, err := s.app.Budget.Status(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{Summary: summary, Recent: recent, Budgets: budgets})
}
