package live

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/kappaborg/Simultane-Translate/pkg/provider"
	"github.com/kappaborg/Simultane-Translate/pkg/session"
	"github.com/kappaborg/Simultane-Translate/pkg/splitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stt struct {
	text     string
	err      error
	language string
}

func (s *stt) Transcribe(_ context.Context, _ []byte, _, language string) (models.Transcription, error) {
	s.language = language
	if s.err != nil {
		return models.Transcription{}, s.err
	}
	return models.Transcription{Text: s.text}, nil
}

type echo struct{}

func (echo) Translate(_ context.Context, text, _, dst string) (models.TranslateResult, error) {
	return models.TranslateResult{Text: "[" + dst + "] " + text, Confidence: models.Float(0.9)}, nil
}

func setup(t *testing.T, s *stt, progressive bool) (*Pipeline, *session.Store) {
	t.Helper()
	store, err := session.New(filepath.Join(t.TempDir(), "live.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(s, splitter.New(echo{}, 0), store, progressive, nil), store
}

func TestProcessUtterance(t *testing.T) {
	s := &stt{text: " Good morning. "}
	p, store := setup(t, s, true)
	ctx := context.Background()
	sess, err := store.Create(ctx, "en", "tr")
	require.NoError(t, err)

	var events []Event
	entry, err := p.ProcessUtterance(ctx, sess.ID, []byte("RIFF"), "utt.wav", func(e Event) { events = append(events, e) })
	require.NoError(t, err)
	assert.Equal(t, "Good morning.", entry.OriginalText)
	assert.Equal(t, "[tr] Good morning.", entry.TranslatedText)
	assert.Equal(t, "en", s.language)

	require.Len(t, events, 2)
	assert.Equal(t, EventTranscript, events[0].Type)
	assert.Equal(t, "Good morning.", events[0].Text)
	assert.Equal(t, EventTranslation, events[1].Type)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Translations, 1)
	assert.Equal(t, entry.ID, got.Translations[0].ID)
}

func TestProcessUtteranceNotProgressive(t *testing.T) {
	p, store := setup(t, &stt{text: "Hi."}, false)
	ctx := context.Background()
	sess, _ := store.Create(ctx, "en", "de")

	var events []Event
	_, err := p.ProcessUtterance(ctx, sess.ID, []byte("RIFF"), "utt.wav", func(e Event) { events = append(events, e) })
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventTranslation, events[0].Type)
}

func TestProcessUtteranceNoSpeech(t *testing.T) {
	p, store := setup(t, &stt{text: "   "}, true)
	ctx := context.Background()
	sess, _ := store.Create(ctx, "en", "tr")

	_, err := p.ProcessUtterance(ctx, sess.ID, []byte("RIFF"), "utt.wav", nil)
	assert.ErrorIs(t, err, ErrNoSpeech)
	assert.Equal(t, provider.BadInput, provider.KindOf(err))
}

func TestProcessUtteranceTranscribeError(t *testing.T) {
	p, store := setup(t, &stt{err: provider.FromStatus(429, "slow down")}, true)
	ctx := context.Background()
	sess, _ := store.Create(ctx, "en", "tr")

	_, err := p.ProcessUtterance(ctx, sess.ID, []byte("RIFF"), "utt.wav", nil)
	assert.Equal(t, provider.RateLimited, provider.KindOf(err))
}

func TestTranslateText(t *testing.T) {
	p, store := setup(t, &stt{}, true)
	ctx := context.Background()
	sess, _ := store.Create(ctx, "en", "fr")

	entry, err := p.TranslateText(ctx, sess.ID, "Hello there.", nil)
	require.NoError(t, err)
	assert.Equal(t, "[fr] Hello there.", entry.TranslatedText)
	require.NotNil(t, entry.Confidence)
	assert.Equal(t, 0.9, *entry.Confidence)

	_, err = p.TranslateText(ctx, sess.ID, "  ", nil)
	assert.Equal(t, provider.BadInput, provider.KindOf(err))

	_, err = p.TranslateText(ctx, "missing", "hi", nil)
	assert.True(t, errors.Is(err, session.ErrNotFound))
}

func TestEndedSessionRejected(t *testing.T) {
	p, store := setup(t, &stt{text: "hi"}, true)
	ctx := context.Background()
	sess, _ := store.Create(ctx, "en", "tr")
	_, err := store.End(ctx, sess.ID)
	require.NoError(t, err)

	_, err = p.TranslateText(ctx, sess.ID, "hi", nil)
	assert.ErrorIs(t, err, ErrSessionEnded)
}
