// Package app builds the process-wide components from configuration and
// wires them together.
package app

import (
	"context"
	"fmt"

	"github.com/kappaborg/Simultane-Translate/pkg/budget"
	"github.com/kappaborg/Simultane-Translate/pkg/cache/sqlite"
	"github.com/kappaborg/Simultane-Translate/pkg/config"
	"github.com/kappaborg/Simultane-Translate/pkg/detect"
	"github.com/kappaborg/Simultane-Translate/pkg/keys"
	"github.com/kappaborg/Simultane-Translate/pkg/kv"
	"github.com/kappaborg/Simultane-Translate/pkg/live"
	"github.com/kappaborg/Simultane-Translate/pkg/logger"
	"github.com/kappaborg/Simultane-Translate/pkg/provider"
	"github.com/kappaborg/Simultane-Translate/pkg/provider/factory"
	"github.com/kappaborg/Simultane-Translate/pkg/queue"
	"github.com/kappaborg/Simultane-Translate/pkg/ratelimit"
	"github.com/kappaborg/Simultane-Translate/pkg/session"
	"github.com/kappaborg/Simultane-Translate/pkg/splitter"
	"github.com/kappaborg/Simultane-Translate/pkg/tracker"
	"github.com/kappaborg/Simultane-Translate/pkg/transcribe"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// App holds one instance of every component.
type App struct {
	Config *config.Config
	Log    *zap.Logger

	Store          kv.Store
	Cache          *sqlite.Cache // nil when caching is disabled
	Limits         *ratelimit.Tracker
	TranslateKeys  *keys.Rotator
	TranscribeKeys *keys.Rotator
	Usage          *tracker.SQLiteTracker
	Budget         *budget.Enforcer // nil when budgets are disabled
	Translator     provider.BatchTranslator
	Queue          *queue.Queue
	Splitter       *splitter.Translator
	Detector       *detect.Service // nil when the translator cannot detect
	Transcription  *transcribe.Service
	Sessions       *session.Store
	Live           *live.Pipeline

	cancel  context.CancelFunc
	closers []func() error
}

// New opens the databases in cfg.DBPath and constructs every component.
// The caller must Close the returned App.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Log: logger.OrNop(log)}
	if err := a.build(); err != nil {
		return nil, multierr.Append(err, a.Close())
	}
	return a, nil
}

func (a *App) build() error {
	cfg, log := a.Config, a.Log

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if cfg.EphemeralState {
		a.Store = kv.NewMemory()
	} else {
		store, err := kv.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		a.Store = store
	}
	a.closers = append(a.closers, a.Store.Close)

	if cfg.Cache.Enabled {
		c, err := sqlite.New(cfg.DBPath, sqlite.Options{
			TTL:          cfg.Cache.TTL,
			MaxSize:      cfg.Cache.MaxSize,
			KeyPrefixLen: cfg.Cache.KeyPrefixLen,
		}, log)
		if err != nil {
			return err
		}
		a.Cache = c
		a.closers = append(a.closers, c.Close)
		c.StartSweeper(ctx, cfg.Cache.SweepInterval)
	}

	usage, err := tracker.New(cfg.DBPath)
	if err != nil {
		return err
	}
	a.Usage = usage
	a.closers = append(a.closers, usage.Close)

	sessions, err := session.New(cfg.DBPath)
	if err != nil {
		return err
	}
	a.Sessions = sessions
	a.closers = append(a.closers, sessions.Close)

	if cfg.Budget.Enabled {
		a.Budget = budget.New(cfg.Budget.Policies, usage)
	}

	a.Limits = ratelimit.New(a.Store, ratelimit.Options{
		Quota:          cfg.RateLimit.DefaultQuota,
		RefillInterval: cfg.RateLimit.RefillInterval,
		Strategy:       cfg.EffectiveStrategy(),
		PinStrategy:    !cfg.Features.SmartCooldown,
	}, log)

	a.Translator, err = factory.NewTranslator(cfg.Translation, log)
	if err != nil {
		return fmt.Errorf("translation provider: %w", err)
	}
	stt, err := factory.NewTranscriber(cfg.Transcription, log)
	if err != nil {
		return fmt.Errorf("transcription provider: %w", err)
	}

	a.TranslateKeys = keys.New(a.Translator.Name(), cfg.Translation.APIKeys, cfg.Keys.MaxUsagePerHour, a.Store, log)
	a.TranscribeKeys = keys.New(stt.Name(), cfg.Transcription.APIKeys, cfg.Keys.MaxUsagePerHour, a.Store, log)

	deps := queue.Deps{
		Limiter: a.Limits,
		Keys:    a.TranslateKeys,
		Usage:   usage,
		Logger:  log,
	}
	// Interface fields stay nil rather than holding typed nil pointers.
	if a.Cache != nil {
		deps.Cache = a.Cache
	}
	if a.Budget != nil {
		deps.Budget = a.Budget
	}
	a.Queue = queue.New(a.Translator, deps, queue.Options{
		BatchSize:      cfg.EffectiveBatchSize(),
		Interval:       cfg.Queue.Interval,
		CallTimeout:    cfg.Queue.CallTimeout,
		SkipCacheReads: !cfg.Features.AggressiveCaching,
	})
	a.closers = append(a.closers, a.Queue.Close)

	a.Splitter = splitter.New(a.Queue, splitter.MaxChunkSize)

	if d, ok := provider.DetectorOf(a.Translator); ok {
		ddeps := detect.Deps{
			Limiter: a.Limits,
			Keys:    a.TranslateKeys,
			Usage:   usage,
			Logger:  log,
		}
		if a.Budget != nil {
			ddeps.Budget = a.Budget
		}
		a.Detector = detect.New(d, ddeps, cfg.Queue.CallTimeout)
	}

	tdeps := transcribe.Deps{
		Limiter: a.Limits,
		Keys:    a.TranscribeKeys,
		Usage:   usage,
		Logger:  log,
	}
	if a.Budget != nil {
		tdeps.Budget = a.Budget
	}
	maxRetries := cfg.Retry.MaxRetries
	if maxRetries == 0 {
		maxRetries = -1
	}
	a.Transcription = transcribe.New(stt, tdeps, transcribe.Options{
		MaxRetries:    maxRetries,
		BaseDelay:     cfg.Retry.BaseDelay,
		CallTimeout:   cfg.Transcription.Timeout,
		MaxAudioBytes: int64(cfg.Transcription.MaxAudioMB) << 20,
	})

	a.Live = live.New(a.Transcription, a.Splitter, sessions, cfg.Features.ProgressiveTranslation, log)

	log.Info("components ready",
		zap.String("translator", a.Translator.Name()),
		zap.String("transcriber", stt.Name()),
		zap.Int("translation_keys", a.TranslateKeys.Len()),
		zap.Int("transcription_keys", a.TranscribeKeys.Len()),
		zap.Bool("cache", a.Cache != nil),
		zap.Bool("detect", a.Detector != nil),
		zap.Bool("budget", a.Budget != nil),
	)
	return nil
}

// Close stops background work and closes every component, newest first.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	return err
}
