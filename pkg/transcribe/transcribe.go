// Package transcribe wraps a speech-to-text provider with rate limiting,
// key rotation and retries.
package transcribe

import (
	"context"
	"fmt"
	"time"

	"github.com/kappaborg/Simultane-Translate/pkg/keys"
	"github.com/kappaborg/Simultane-Translate/pkg/logger"
	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/kappaborg/Simultane-Translate/pkg/provider"
	"go.uber.org/zap"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultMaxRetries  = 5
	DefaultBaseDelay   = 3 * time.Second
	DefaultCallTimeout = 30 * time.Second
	DefaultMaxAudio    = 25 << 20
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

// Options configures retries and limits.
type Options struct {
	MaxRetries    int
	BaseDelay     time.Duration
	CallTimeout   time.Duration
	MaxAudioBytes int64
}

// Service transcribes audio clips.
type Service struct {
	provider provider.Transcriber
	deps     Deps
	opts     Options
	log      *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a Service calling p.
func New(p provider.Transcriber, deps Deps, opts Options) *Service {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.MaxAudioBytes <= 0 {
		opts.MaxAudioBytes = DefaultMaxAudio
	}
	return &Service{
		provider: p,
		deps:     deps,
		opts:     opts,
		log:      logger.OrNop(deps.Logger).Named("transcribe"),
		sleep:    sleepCtx,
	}
}

// Name returns the provider name.
func (s *Service) Name() string { return s.provider.Name() }

// Transcribe converts audio to text. The rate limiter and budget are
// checked once up front. RateLimited and Timeout failures are retried up
// to MaxRetries times, waiting BaseDelay·2^attempt between attempts; other
// failures return immediately.
func (s *Service) Transcribe(ctx context.Context, audio []byte, filename, language string) (models.Transcription, error) {
	if len(audio) == 0 {
		return models.Transcription{}, provider.Errorf(provider.BadInput, "audio is empty")
	}
	if int64(len(audio)) > s.opts.MaxAudioBytes {
		return models.Transcription{}, provider.Errorf(provider.BadInput,
			"audio is %d bytes, limit is %d", len(audio), s.opts.MaxAudioBytes)
	}
	if language == "" {
		language = "auto"
	}
	if err := provider.ValidateLanguage(language); err != nil {
		return models.Transcription{}, err
	}

	if s.deps.Limiter != nil {
		if err := s.deps.Limiter.Check(ctx); err != nil {
			return models.Transcription{}, err
		}
	}
	if s.deps.Budget != nil {
		if err := s.deps.Budget.Check(ctx, s.provider.Name()); err != nil {
			return models.Transcription{}, err
		}
	}

	for attempt := 0; ; attempt++ {
		res, err := s.attempt(ctx, audio, filename, language)
		if err == nil {
			return res, nil
		}
		if attempt >= s.opts.MaxRetries || !provider.Retryable(err) {
			return models.Transcription{}, err
		}

		wait := s.opts.BaseDelay * time.Duration(1<<attempt)
		s.log.Warn("transcription failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", s.opts.MaxRetries),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if err := s.sleep(ctx, wait); err != nil {
			return models.Transcription{}, fmt.Errorf("transcription retry: %w", err)
		}
	}
}

func (s *Service) attempt(ctx context.Context, audio []byte, filename, language string) (models.Transcription, error) {
	var key string
	if s.deps.Keys != nil {
		key = s.deps.Keys.CurrentKey(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	start := time.Now()
	res, err := s.provider.Transcribe(callCtx, key, audio, filename, language)
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
		return models.Transcription{}, pe
	}

	if s.deps.Limiter != nil {
		s.deps.Limiter.ReportSuccess(ctx)
	}
	if s.deps.Keys != nil {
		s.deps.Keys.MarkKeyUsed(ctx)
	}
	return res, nil
}

func (s *Service) record(ctx context.Context, key string, err error, latency time.Duration) {
	if s.deps.Usage == nil {
		return
	}
	rec := models.UsageRecord{
		Provider:       s.provider.Name(),
		Operation:      models.OpTranscribe,
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

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
