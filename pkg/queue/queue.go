// Package queue batches translation requests that miss the cache and sends
// them to the provider at a throttled pace.
package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kappaborg/Simultane-Translate/pkg/keys"
	"github.com/kappaborg/Simultane-Translate/pkg/logger"
	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/kappaborg/Simultane-Translate/pkg/provider"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrClosed is returned for requests pending when the queue shuts down.
var ErrClosed = errors.New("translation queue closed")

// Defaults used when Options leaves a field zero.
const (
	DefaultBatchSize   = 5
	DefaultCallTimeout = 30 * time.Second
)

// Cache is the subset of the cache store the queue needs.
type Cache interface {
	Get(ctx context.Context, text, src, dst string) (*models.CacheEntry, bool)
	Set(ctx context.Context, text, translated, src, dst string, confidence *float64)
}

// Limiter is the subset of the rate-limit tracker the queue needs.
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

// Deps are the collaborators of a Queue. Only Limiter is required.
type Deps struct {
	Cache   Cache
	Limiter Limiter
	Keys    KeyPool
	Budget  Budget
	Usage   Usage
	Logger  *zap.Logger
}

// Options configures batching.
type Options struct {
	BatchSize   int
	Interval    time.Duration
	CallTimeout time.Duration
	// SkipCacheReads sends every request to the provider. Results are
	// still written to the cache.
	SkipCacheReads bool
}

type outcome struct {
	res models.TranslateResult
	err error
}

type item struct {
	models.TranslateItem
	done chan outcome
}

func (it *item) finish(res models.TranslateResult, err error) {
	it.done <- outcome{res: res, err: err}
}

// Queue is a FIFO of pending translations drained in batches. At most one
// drain runs at a time and drains are spaced by the configured interval.
type Queue struct {
	translator provider.BatchTranslator
	deps       Deps
	opts       Options
	log        *zap.Logger
	throttle   *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	items     []*item
	scheduled bool
	running   bool
	closed    bool
}

// New creates a Queue sending batches to translator.
func New(translator provider.BatchTranslator, deps Deps, opts Options) *Queue {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	every := rate.Inf
	if opts.Interval > 0 {
		every = rate.Every(opts.Interval)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		translator: translator,
		deps:       deps,
		opts:       opts,
		log:        logger.OrNop(deps.Logger).Named("queue"),
		throttle:   rate.NewLimiter(every, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Translate returns the translation of text. Blank text yields an empty
// result without a remote call; cached translations return immediately;
// everything else waits for its batch. If ctx ends first the request still
// completes in the background and its result is cached.
func (q *Queue) Translate(ctx context.Context, text, src, dst string) (models.TranslateResult, error) {
	p, err := q.Enqueue(ctx, text, src, dst)
	if err != nil {
		return models.TranslateResult{}, err
	}
	return p.Wait(ctx)
}

// Pending is a request accepted by Enqueue.
type Pending struct {
	it *item
}

// Wait blocks until the request completes or ctx ends.
func (p *Pending) Wait(ctx context.Context) (models.TranslateResult, error) {
	select {
	case o := <-p.it.done:
		return o.res, o.err
	case <-ctx.Done():
		return models.TranslateResult{}, ctx.Err()
	}
}

// Enqueue submits text without waiting for its result. Requests enqueued
// by one goroutine reach the provider in the order they were enqueued.
func (q *Queue) Enqueue(ctx context.Context, text, src, dst string) (*Pending, error) {
	it, err := q.submit(ctx, text, src, dst)
	if err != nil {
		return nil, err
	}
	return &Pending{it: it}, nil
}

func (q *Queue) submit(ctx context.Context, text, src, dst string) (*item, error) {
	it := &item{
		TranslateItem: models.TranslateItem{Text: text, SourceLang: src, TargetLang: dst},
		done:          make(chan outcome, 1),
	}

	if strings.TrimSpace(text) == "" {
		it.finish(models.TranslateResult{}, nil)
		return it, nil
	}

	if q.deps.Cache != nil && !q.opts.SkipCacheReads {
		if e, ok := q.deps.Cache.Get(ctx, text, src, dst); ok {
			it.finish(models.TranslateResult{Text: e.TranslatedText, Confidence: e.Confidence, Cached: true}, nil)
			return it, nil
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}
	q.items = append(q.items, it)
	q.scheduleLocked()
	return it, nil
}

// Len returns the number of requests waiting for a batch.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// scheduleLocked arranges one future drain. Calls while a drain is pending
// or running coalesce into it.
func (q *Queue) scheduleLocked() {
	if q.scheduled || q.running || q.closed {
		return
	}
	q.scheduled = true
	delay := q.throttle.Reserve().Delay()
	time.AfterFunc(delay, q.drain)
}

func (q *Queue) drain() {
	q.mu.Lock()
	q.scheduled = false
	if q.running || q.closed || len(q.items) == 0 {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	ctx := q.ctx
	if err := q.admit(ctx); err != nil {
		q.mu.Lock()
		rejected := q.items
		q.items = nil
		q.running = false
		q.mu.Unlock()

		q.log.Warn("rejecting queued translations", zap.Int("count", len(rejected)), zap.Error(err))
		for _, it := range rejected {
			it.finish(models.TranslateResult{}, err)
		}
		return
	}

	q.mu.Lock()
	n := min(q.opts.BatchSize, len(q.items))
	if n == 0 {
		// Close took the pending items while admit ran.
		q.running = false
		q.mu.Unlock()
		return
	}
	batch := make([]*item, n)
	copy(batch, q.items)
	q.items = q.items[n:]
	q.mu.Unlock()

	q.process(ctx, batch)

	q.mu.Lock()
	q.running = false
	if len(q.items) > 0 {
		q.scheduleLocked()
	}
	q.mu.Unlock()
}

func (q *Queue) admit(ctx context.Context) error {
	if q.deps.Limiter != nil {
		if err := q.deps.Limiter.Check(ctx); err != nil {
			return err
		}
	}
	if q.deps.Budget != nil {
		if err := q.deps.Budget.Check(ctx, q.translator.Name()); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) process(ctx context.Context, batch []*item) {
	items := make([]models.TranslateItem, len(batch))
	for i, it := range batch {
		items[i] = it.TranslateItem
	}

	var key string
	if q.deps.Keys != nil {
		key = q.deps.Keys.CurrentKey(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, q.opts.CallTimeout)
	start := time.Now()
	results, err := q.translator.TranslateBatch(callCtx, key, items)
	cancel()
	if err == nil {
		err = provider.CheckBatch(items, results)
	}

	if err != nil && ctx.Err() != nil {
		// Shut down mid-call. The provider did not fail, so nothing is
		// reported against the limiter or the key.
		q.log.Debug("translation batch abandoned on close", zap.Int("batch_size", len(batch)))
		for _, it := range batch {
			it.finish(models.TranslateResult{}, ErrClosed)
		}
		return
	}
	q.record(ctx, key, len(items), err, time.Since(start))

	if err != nil {
		pe := provider.Classify(err)
		status := provider.StatusOf(pe)
		if q.deps.Limiter != nil {
			q.deps.Limiter.ReportError(ctx, status, pe.Message)
		}
		if q.deps.Keys != nil && (pe.Kind == provider.RateLimited || pe.Kind == provider.Unauthorized) {
			q.deps.Keys.RotateKey(ctx)
		}
		q.log.Error("translation batch failed",
			zap.Int("batch_size", len(batch)),
			zap.Int("status", status),
			zap.String("kind", string(pe.Kind)),
			zap.Error(err),
		)
		for _, it := range batch {
			it.finish(models.TranslateResult{}, pe)
		}
		return
	}

	if q.deps.Limiter != nil {
		q.deps.Limiter.ReportSuccess(ctx)
	}
	if q.deps.Keys != nil {
		q.deps.Keys.MarkKeyUsed(ctx)
	}
	q.log.Debug("translation batch done", zap.Int("batch_size", len(batch)))

	for i, it := range batch {
		res := results[i]
		if q.deps.Cache != nil {
			q.deps.Cache.Set(ctx, it.Text, res.Text, it.SourceLang, it.TargetLang, res.Confidence)
		}
		it.finish(res, nil)
	}
}

func (q *Queue) record(ctx context.Context, key string, n int, err error, latency time.Duration) {
	if q.deps.Usage == nil {
		return
	}
	rec := models.UsageRecord{
		Provider:       q.translator.Name(),
		Operation:      models.OpTranslate,
		KeyFingerprint: keys.Fingerprint(key),
		Items:          n,
		StatusCode:     200,
		LatencyMs:      latency.Milliseconds(),
		CreatedAt:      time.Now().UTC(),
	}
	if err != nil {
		rec.StatusCode = provider.StatusOf(err)
		rec.ErrorKind = string(provider.KindOf(err))
	}
	if err := q.deps.Usage.Record(ctx, rec); err != nil {
		q.log.Warn("record usage", zap.Error(err))
	}
}

// Close cancels the batch in flight and rejects it, along with every
// pending request, with ErrClosed.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	pending := q.items
	q.items = nil
	q.mu.Unlock()

	q.cancel()
	for _, it := range pending {
		it.finish(models.TranslateResult{}, ErrClosed)
	}
	return nil
}
