package demo

import (
	"context"
	"testing"

	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/kappaborg/Simultane-Translate/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslator(t *testing.T) {
	got, err := Translator{}.TranslateBatch(context.Background(), "", []models.TranslateItem{
		{Text: "hello", TargetLang: "tr"},
		{Text: "  ", TargetLang: "tr"},
	})
	require.NoError(t, err)
	assert.Equal(t, "[tr] hello", got[0].Text)
	assert.Equal(t, "", got[1].Text)
}

func TestTranscriber(t *testing.T) {
	got, err := Transcriber{}.Transcribe(context.Background(), "", []byte{1}, "a.wav", "en")
	require.NoError(t, err)
	assert.Equal(t, Transcript, got.Text)

	_, err = Transcriber{}.Transcribe(context.Background(), "", nil, "a.wav", "en")
	assert.Equal(t, provider.BadInput, provider.KindOf(err))
}

func TestDetect(t *testing.T) {
	d, ok := provider.DetectorOf(Translator{})
	require.True(t, ok)
	got, err := d.Detect(context.Background(), "", "Guten Tag")
	require.NoError(t, err)
	assert.Equal(t, Language, got.Language)
}
