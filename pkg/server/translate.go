package server

import (
	"errors"
	"net/http"

	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/kappaborg/Simultane-Translate/pkg/provider"
	"github.com/kappaborg/Simultane-Translate/pkg/provider/remote"
	"github.com/kappaborg/Simultane-Translate/pkg/queue"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"
)

type translateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"sourceLang"`
	TargetLang string `json:"targetLang"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := provider.ValidatePair(req.SourceLang, req.TargetLang); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.app.Splitter.TranslateLarge(r.Context(), req.Text, req.SourceLang, req.TargetLang)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleTranslateBatch answers one result per request in order. A failed
// item gets empty text; the call fails only when every item failed.
func (s *Server) handleTranslateBatch(w http.ResponseWriter, r *http.Request) {
	var req remote.BatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Requests) == 0 {
		writeJSON(w, http.StatusOK, []models.TranslateResult{})
		return
	}

	ctx := r.Context()
	errs := make([]error, len(req.Requests))
	results := make([]models.TranslateResult, len(req.Requests))
	pending := make([]*queue.Pending, len(req.Requests))
	// Enqueue in request order so the items share batches in that order,
	// then wait for them together.
	for i, it := range req.Requests {
		if err := provider.ValidatePair(it.SourceLang, it.TargetLang); err != nil {
			errs[i] = err
			continue
		}
		pending[i], errs[i] = s.app.Queue.Enqueue(ctx, it.Text, it.SourceLang, it.TargetLang)
	}
	iter.ForEachIdx(pending, func(i int, p **queue.Pending) {
		if *p == nil {
			return
		}
		results[i], errs[i] = (*p).Wait(ctx)
	})

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(errs) {
		s.writeError(w, r, errs[0])
		return
	}
	if failed > 0 {
		s.log.Warn("batch items failed", zap.Int("failed", failed), zap.Int("total", len(errs)), zap.Error(errors.Join(errs...)))
	}
	writeJSON(w, http.StatusOK, results)
}

type detectRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	if s.app.Detector == nil {
		writeJSONError(w, http.StatusNotImplemented, s.app.Translator.Name()+" cannot detect languages")
		return
	}
	var req detectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.app.Detector.Detect(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	audio, filename, ok := s.readAudio(w, r)
	if !ok {
		return
	}
	res, err := s.app.Transcription.Transcribe(r.Context(), audio, filename, r.FormValue("language"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
