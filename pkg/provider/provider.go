// Package provider defines the remote speech-to-text and translation
// capabilities and the error kinds they fail with.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"golang.org/x/text/language"
)

// Kind classifies a remote failure.
type Kind string

const (
	RateLimited  Kind = "rate_limited"
	Unauthorized Kind = "unauthorized"
	BadInput     Kind = "bad_input"
	Timeout      Kind = "timeout"
	Unknown      Kind = "unknown"
)

// Error is a classified remote failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an Error of the given kind.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// FromStatus classifies a failed HTTP response.
func FromStatus(status int, msg string) *Error {
	kind := Unknown
	switch status {
	case http.StatusTooManyRequests:
		kind = RateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = Unauthorized
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge,
		http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		kind = BadInput
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		kind = Timeout
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{Kind: kind, StatusCode: status, Message: msg}
}

// Classify turns any error from a remote call into an *Error. Deadline and
// network timeouts become Timeout; anything unrecognized is Unknown.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &Error{Kind: Timeout, Message: err.Error(), Err: err}
	}
	return &Error{Kind: Unknown, Message: err.Error(), Err: err}
}

// KindOf returns the Kind of err, Unknown for unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return Classify(err).Kind
}

// StatusOf returns the HTTP status behind err, or one implied by its kind.
func StatusOf(err error) int {
	if err == nil {
		return 0
	}
	pe := Classify(err)
	if pe.StatusCode != 0 {
		return pe.StatusCode
	}
	switch pe.Kind {
	case RateLimited:
		return http.StatusTooManyRequests
	case Unauthorized:
		return http.StatusUnauthorized
	case BadInput:
		return http.StatusBadRequest
	case Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a failed call is worth repeating.
func Retryable(err error) bool {
	switch KindOf(err) {
	case RateLimited, Timeout:
		return true
	}
	return false
}

// Transcriber converts speech audio to text.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, key string, audio []byte, filename, language string) (models.Transcription, error)
}

// BatchTranslator translates several items in one remote call. Result i
// belongs to item i; a failure applies to the whole batch.
type BatchTranslator interface {
	Name() string
	TranslateBatch(ctx context.Context, key string, items []models.TranslateItem) ([]models.TranslateResult, error)
}

// Detector recognizes the language of a text. Translators that can detect
// implement it alongside BatchTranslator.
type Detector interface {
	Name() string
	Detect(ctx context.Context, key, text string) (models.Detection, error)
}

// DetectorOf returns t as a Detector when it supports detection.
func DetectorOf(t BatchTranslator) (Detector, bool) {
	d, ok := t.(Detector)
	return d, ok
}

// CheckBatch verifies that a provider returned one result per item.
func CheckBatch(items []models.TranslateItem, results []models.TranslateResult) error {
	if len(results) != len(items) {
		return Errorf(Unknown, "provider returned %d results for %d items", len(results), len(items))
	}
	return nil
}

// ValidateLanguage accepts BCP 47 tags and "auto".
func ValidateLanguage(tag string) error {
	if strings.EqualFold(tag, "auto") {
		return nil
	}
	if tag == "" {
		return Errorf(BadInput, "language is required")
	}
	if _, err := language.Parse(tag); err != nil {
		return &Error{Kind: BadInput, Message: fmt.Sprintf("invalid language %q", tag), Err: err}
	}
	return nil
}

// ValidatePair checks a translation direction. The source may be "auto";
// the target may not.
func ValidatePair(src, dst string) error {
	if err := ValidateLanguage(src); err != nil {
		return err
	}
	if strings.EqualFold(dst, "auto") {
		return Errorf(BadInput, "target language cannot be auto")
	}
	return ValidateLanguage(dst)
}

// PairKey groups items that share a language pair.
func PairKey(it models.TranslateItem) string {
	return it.SourceLang + ">" + it.TargetLang
}

// GroupByPair returns item indexes grouped by language pair, in order of
// first appearance.
func GroupByPair(items []models.TranslateItem) (order []string, groups map[string][]int) {
	groups = make(map[string][]int)
	for i, it := range items {
		k := PairKey(it)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}
	return order, groups
}
