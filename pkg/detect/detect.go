// Package detect recognizes the language of a text through the translation
// provider, under the same rate limits and keys as translation.
package detect

import (
	"context"
	"strings"
	"time"

	"github.com/kappaborg/Simultane-Translate/pkg/keys"
	"github.com/kappaborg/Simultane-Translate/pkg/logger"
	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/kappaborg/Simultane-Translate/pkg/provider"
	"go.uber.org/zap"
)

const (
	// SampleRunes is how much of the text is sent to the provider.
	SampleRunes = 200
	// Fallback is returned when the provider recognizes nothing.
	Fallback = "en"

	DefaultCallTimeout = 30 * time.Second
)

// Limiter is the subset of the rate-limit tracker the service needs.
type Limiter interface {
	Check(ctx context.Context) error
	ReportSuccess(ctx context.Context)
	ReportError(ctx context.Context, status int, msg string)
}

// KeyPool hands out provider credentials.
type KeyPool interface {
	CurrentKey(ctx context.Context) string
	MarkKeyUsed(ctx context.Context)
	RotateKey(ctx context.Context)
}

// Budget enforces request ceilings per provider.
type Budget interface {
	Check(ctx context.Context, provider string) error
}

// Usage records every remote call.
type Usage interface {
	Record(ctx context.Context, rec models.UsageRecord) error
}

// Deps are the collaborators of a Service. All are optional.
type Deps struct {
	Limiter Limiter
	Keys    KeyPool
	Budget  Budget
	Usage   Usage
	Logger  *zap.Logger
}

// Service detects languages with one remote call per text.
type Service struct {
	detector    provider.Detector
	deps        Deps
	callTimeout time.Duration
	log         *zap.Logger
}

// New creates a Service calling d.
func New(d provider.Detector, deps Deps, callTimeout time.Duration) *Service {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Service{
		detector:    d,
		deps:        deps,
		callTimeout: callTimeout,
		log:         logger.OrNop(deps.Logger).Named("detect"),
	}
}

// Name returns the provider name.
func (s *Service) Name() string { return s.detector.Name() }

// Detect returns the language of text, judged from its first SampleRunes
// runes. Failures are not retried.
func (s *Service) Detect(ctx context.Context, text string) (models.Detection, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Detection{}, provider.Errorf(provider.BadInput, "text is empty")
	}
	if r := []rune(text); len(r) > SampleRunes {
		text = string(r[:SampleRunes])
	}

	if s.deps.Limiter != nil {
		if err := s.deps.Limiter.Check(ctx); err != nil {
			return models.Detection{}, err
		}
	}
	if s.deps.Budget != nil {
		if err := s.deps.Budget.Check(ctx, s.detector.Name()); err != nil {
			return models.Detection{}, err
		}
	}

	var key string
	if s.deps.Keys != nil {
		key = s.deps.Keys.CurrentKey(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	start := time.Now()
	res, err := s.detector.Detect(callCtx, key, text)
	cancel()
	s.record(ctx, key, err, time.Since(start))

	if err != nil {
		pe := provider.Classify(err)
		if s.deps.Limiter != nil {
			s.deps.Limiter.ReportError(ctx, provider.StatusOf(pe), pe.Message)
		}
		if s.deps.Keys != nil && (pe.Kind == provider.RateLimited || pe.Kind == provider.Unauthorized) {
			s.deps.Keys.RotateKey(ctx)
		}
		s.log.Warn("language detection failed", zap.String("kind", string(pe.Kind)), zap.Error(err))
		return models.Detection{}, pe
	}

	if s.deps.Limiter != nil {
		s.deps.Limiter.ReportSuccess(ctx)
	}
	if s.deps.Keys != nil {
		s.deps.Keys.MarkKeyUsed(ctx)
	}
	if res.Language == "" {
		s.log.Debug("provider detected nothing, using fallback", zap.String("fallback", Fallback))
		res = models.Detection{Language: Fallback}
	}
	return res, nil
}

func (s *Service) record(ctx context.Context, key string, err error, latency time.Duration) {
	if s.deps.Usage == nil {
		return
	}
	rec := models.UsageRecord{
		Provider:       s.detector.Name(),
		Operation:      models.OpDetect,
		KeyFingerprint: keys.Fingerprint(key),
		Items:          1,
		StatusCode:     200,
		LatencyMs:      latency.Milliseconds(),
		CreatedAt:      time.Now().UTC(),
	}
	if err != nil {
		rec.StatusCode = provider.StatusOf(err)
		rec.ErrorKind = string(provider.KindOf(err))
	}
	if err := s.deps.Usage.Record(ctx, rec); err != nil {
		s.log.Warn("record usage", zap.Error(err))
	}
}
