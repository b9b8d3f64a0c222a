package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/kappaborg/Simultane-Translate/pkg/export"
	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/kappaborg/Simultane-Translate/pkg/provider"
	"github.com/kappaborg/Simultane-Translate/pkg/session"
)

type createSessionRequest struct {
	SourceLang string `json:"sourceLang"`
	TargetLang string `json:"targetLang"`
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := provider.ValidatePair(req.SourceLang, req.TargetLang); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.app.Sessions.Create(r.Context(), req.SourceLang, req.TargetLang)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := session.ListOptions{
		Limit:      s.app.Config.Session.HistoryLimit,
		SourceLang: q.Get("source"),
		TargetLang: q.Get("target"),
		ActiveOnly: q.Get("active") == "true",
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opts.Limit = n
	}
	list, err := s.app.Sessions.List(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Session{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.app.Sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	sess, err := s.app.Sessions.End(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleUtterance accepts either a multipart audio upload in "file" or a
// JSON body {"text": "..."} for typed input.
func (s *Server) handleUtterance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			Text string `json:"text"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		entry, err := s.app.Live.TranslateText(r.Context(), id, req.Text, nil)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
		return
	}

	audio, filename, ok := s.readAudio(w, r)
	if !ok {
		return
	}
	entry, err := s.app.Live.ProcessUtterance(r.Context(), id, audio, filename, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleSessionExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = string(export.JSON)
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.app.Sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, sess, f); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType(f))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(sess, f)))
	_, _ = w.Write(buf.Bytes())
}

// readAudio reads the "file" part of a multipart upload, bounded by the
// configured audio limit.
func (s *Server) readAudio(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	limit := int64(s.app.Config.Transcription.MaxAudioMB)<<20 + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "audio file too large")
			return nil, "", false
		}
		writeJSONError(w, http.StatusBadRequest, "missing audio file")
		return nil, "", false
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read audio file")
		return nil, "", false
	}
	return audio, header.Filename, true
}
