// Package live turns recorded utterances into translated session entries.
package live

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kappaborg/Simultane-Translate/pkg/logger"
	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/kappaborg/Simultane-Translate/pkg/provider"
	"github.com/kappaborg/Simultane-Translate/pkg/splitter"
	"go.uber.org/zap"
)

// ErrNoSpeech is returned when an utterance transcribes to nothing.
var ErrNoSpeech = provider.Errorf(provider.BadInput, "no speech detected")

// ErrSessionEnded is returned when adding to a finished session.
var ErrSessionEnded = provider.Errorf(provider.BadInput, "session has ended")

// Event types emitted while an utterance is processed.
const (
	EventTranscript  = "transcript"
	EventTranslation = "translation"
)

// Event reports progress on one utterance.
type Event struct {
	Type  string               `json:"type"`
	Text  string               `json:"text,omitempty"`
	Entry *models.SessionEntry `json:"entry,omitempty"`
}

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename, language string) (models.Transcription, error)
}

// Translator translates text of any length.
type Translator interface {
	TranslateLarge(ctx context.Context, text, src, dst string) (splitter.Result, error)
}

// Sessions stores session entries.
type Sessions interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	AddEntry(ctx context.Context, sessionID string, e models.SessionEntry) (*models.SessionEntry, error)
}

// Pipeline runs transcribe, translate and store for each utterance.
type Pipeline struct {
	stt      Transcriber
	tr       Translator
	sessions Sessions
	log      *zap.Logger
	// progressive emits the transcript before its translation is ready.
	progressive bool
}

// New creates a Pipeline.
func New(stt Transcriber, tr Translator, sessions Sessions, progressive bool, log *zap.Logger) *Pipeline {
	return &Pipeline{
		stt:         stt,
		tr:          tr,
		sessions:    sessions,
		progressive: progressive,
		log:         logger.OrNop(log).Named("live"),
	}
}

// ProcessUtterance transcribes audio in the session's source language,
// translates the transcript and appends the result to the session. emit,
// when non-nil, receives progress events.
func (p *Pipeline) ProcessUtterance(ctx context.Context, sessionID string, audio []byte, filename string, emit func(Event)) (*models.SessionEntry, error) {
	start := time.Now()
	sess, err := p.openSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	tr, err := p.stt.Transcribe(ctx, audio, filename, sess.SourceLang)
	if err != nil {
		return nil, fmt.Errorf("transcribe utterance: %w", err)
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return nil, ErrNoSpeech
	}
	if p.progressive && emit != nil {
		emit(Event{Type: EventTranscript, Text: text})
	}

	return p.translate(ctx, sess, text, start, emit)
}

// TranslateText translates typed text and appends it to the session.
func (p *Pipeline) TranslateText(ctx context.Context, sessionID, text string, emit func(Event)) (*models.SessionEntry, error) {
	start := time.Now()
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, provider.Errorf(provider.BadInput, "text is empty")
	}
	sess, err := p.openSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return p.translate(ctx, sess, text, start, emit)
}

func (p *Pipeline) openSession(ctx context.Context, id string) (*models.Session, error) {
	sess, err := p.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.EndedAt != nil {
		return nil, ErrSessionEnded
	}
	return sess, nil
}

func (p *Pipeline) translate(ctx context.Context, sess *models.Session, text string, start time.Time, emit func(Event)) (*models.SessionEntry, error) {
	res, err := p.tr.TranslateLarge(ctx, text, sess.SourceLang, sess.TargetLang)
	if err != nil {
		return nil, fmt.Errorf("translate utterance: %w", err)
	}

	entry, err := p.sessions.AddEntry(ctx, sess.ID, models.SessionEntry{
		OriginalText:   text,
		TranslatedText: res.Text,
		SourceLang:     sess.SourceLang,
		TargetLang:     sess.TargetLang,
		Confidence:     models.Float(res.Confidence),
		DurationMs:     time.Since(start).Milliseconds(),
	})
	if err != nil {
		return nil, err
	}

	p.log.Debug("utterance translated",
		zap.String("session_id", sess.ID),
		zap.Int("chunks", res.Chunks),
		zap.Int64("duration_ms", entry.DurationMs),
	)
	if emit != nil {
		emit(Event{Type: EventTranslation, Entry: entry})
	}
	return entry, nil
}
