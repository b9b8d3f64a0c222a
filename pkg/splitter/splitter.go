// Package splitter translates texts too large for a single request by
// cutting them into sentence-bounded chunks.
package splitter

import (
	"context"
	"regexp"
	"strings"

	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/sourcegraph/conc/iter"
)

// MaxChunkSize is the largest text, in runes, sent in one translate call.
const MaxChunkSize = 2000

// FallbackConfidence is reported when no chunk carries a confidence.
const FallbackConfidence = 0.95

var (
	sentenceEnd = regexp.MustCompile(`([.!?])\s+`)
	spaces      = regexp.MustCompile(`\s+`)
)

// TextTranslator translates one text.
type TextTranslator interface {
	Translate(ctx context.Context, text, src, dst string) (models.TranslateResult, error)
}

// Result is a reassembled translation.
type Result struct {
	Text       string  `json:"translated_text"`
	Confidence float64 `json:"confidence"`
	Chunks     int     `json:"chunks"`
}

// Translator splits large texts before handing them to the underlying
// translator.
type Translator struct {
	next    TextTranslator
	maxSize int
}

// New returns a Translator using maxSize runes per chunk. A non-positive
// maxSize means MaxChunkSize.
func New(next TextTranslator, maxSize int) *Translator {
	if maxSize <= 0 {
		maxSize = MaxChunkSize
	}
	return &Translator{next: next, maxSize: maxSize}
}

// TranslateLarge translates text, chunking it when it exceeds the chunk
// size. Chunks are translated concurrently and joined in their original
// order. Any chunk failure fails the whole call.
func (t *Translator) TranslateLarge(ctx context.Context, text, src, dst string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, nil
	}

	if runeLen(text) <= t.maxSize {
		res, err := t.next.Translate(ctx, text, src, dst)
		if err != nil {
			return Result{}, err
		}
		conf := FallbackConfidence
		if res.Confidence != nil && *res.Confidence > 0 {
			conf = *res.Confidence
		}
		return Result{Text: res.Text, Confidence: conf, Chunks: 1}, nil
	}

	chunks := Chunk(text, t.maxSize)
	results, err := iter.MapErr(chunks, func(chunk *string) (models.TranslateResult, error) {
		return t.next.Translate(ctx, *chunk, src, dst)
	})
	if err != nil {
		return Result{}, err
	}

	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Text
	}
	return Result{
		Text:       strings.TrimSpace(spaces.ReplaceAllString(strings.Join(parts, " "), " ")),
		Confidence: meanConfidence(results),
		Chunks:     len(chunks),
	}, nil
}

func meanConfidence(results []models.TranslateResult) float64 {
	var sum float64
	var n int
	for _, r := range results {
		if r.Confidence != nil && *r.Confidence > 0 {
			sum += *r.Confidence
			n++
		}
	}
	if n == 0 {
		return FallbackConfidence
	}
	return sum / float64(n)
}

// SplitSentences breaks text after every '.', '!' or '?' that is followed
// by whitespace. Blank fragments are dropped.
func SplitSentences(text string) []string {
	marked := sentenceEnd.ReplaceAllString(text, "$1\n")
	var out []string
	for _, s := range strings.Split(marked, "\n") {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// Chunk packs consecutive sentences, joined by a space, into chunks of at
// most limit runes. A sentence longer than limit is cut into limit-rune pieces
// without regard for word boundaries.
func Chunk(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxChunkSize
	}
	var (
		chunks  []string
		current strings.Builder
		curLen  int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			curLen = 0
		}
	}

	for _, s := range SplitSentences(text) {
		n := runeLen(s)
		sep := 0
		if curLen > 0 {
			sep = 1
		}
		if curLen+sep+n <= limit {
			if sep == 1 {
				current.WriteByte(' ')
			}
			current.WriteString(s)
			curLen += sep + n
			continue
		}

		flush()
		if n <= limit {
			current.WriteString(s)
			curLen = n
			continue
		}
		r := []rune(s)
		for len(r) > 0 {
			end := min(limit, len(r))
			chunks = append(chunks, string(r[:end]))
			r = r[end:]
		}
	}
	flush()
	return chunks
}

func runeLen(s string) int {
	return len([]rune(s))
}
