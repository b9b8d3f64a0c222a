package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kappaborg/Simultane-Translate/pkg/config"
	"github.com/kappaborg/Simultane-Translate/pkg/provider/demo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func demoConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "simultane.db")
	cfg.Translation.Type = "demo"
	cfg.Transcription.Type = "demo"
	return cfg
}

func TestNewWiresComponents(t *testing.T) {
	a, err := New(demoConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Cache)
	assert.Nil(t, a.Budget)
	assert.Equal(t, "demo", a.Translator.Name())

	ctx := context.Background()
	res, err := a.Queue.Translate(ctx, "Hello.", "en", "tr")
	require.NoError(t, err)
	assert.Equal(t, "[tr] Hello.", res.Text)

	again, err := a.Queue.Translate(ctx, "Hello.", "en", "tr")
	require.NoError(t, err)
	assert.True(t, again.Cached)

	st := a.Limits.State(ctx)
	assert.Equal(t, 99, st.RemainingRequests)

	recs, err := a.Usage.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestLivePipelineEndToEnd(t *testing.T) {
	a, err := New(demoConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	sess, err := a.Sessions.Create(ctx, "en", "de")
	require.NoError(t, err)

	entry, err := a.Live.ProcessUtterance(ctx, sess.ID, []byte("RIFF"), "utt.wav", nil)
	require.NoError(t, err)
	assert.Equal(t, demo.Transcript, entry.OriginalText)
	assert.Equal(t, "[de] "+demo.Transcript, entry.TranslatedText)
}

func TestCacheDisabledAndBudgetEnabled(t *testing.T) {
	cfg := demoConfig(t)
	cfg.Cache.Enabled = false
	cfg.Budget.Enabled = true
	a, err := New(cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Cache)
	require.NotNil(t, a.Budget)

	res, err := a.Queue.Translate(context.Background(), "Hi.", "en", "tr")
	require.NoError(t, err)
	assert.False(t, res.Cached)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	cfg := demoConfig(t)
	cfg.Translation.Type = "babelfish"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestEphemeralStateIsNotShared(t *testing.T) {
	cfg := demoConfig(t)
	cfg.EphemeralState = true

	a, err := New(cfg, nil)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = a.Queue.Translate(ctx, "Hello.", "en", "tr")
	require.NoError(t, err)
	assert.Equal(t, 99, a.Limits.State(ctx).RemainingRequests)
	require.NoError(t, a.Close())

	b, err := New(cfg, nil)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, cfg.RateLimit.DefaultQuota, b.Limits.State(ctx).RemainingRequests)
}

func TestDetectorWiring(t *testing.T) {
	a, err := New(demoConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Detector)
	ctx := context.Background()
	got, err := a.Detector.Detect(ctx, "Bonjour tout le monde")
	require.NoError(t, err)
	assert.Equal(t, demo.Language, got.Language)
	assert.Equal(t, 99, a.Limits.State(ctx).RemainingRequests)

	cfg := demoConfig(t)
	cfg.Translation.Type = "remote"
	cfg.Translation.URL = "http://peer:8080"
	b, err := New(cfg, nil)
	require.NoError(t, err)
	defer b.Close()
	assert.Nil(t, b.Detector)
}
