// Package ratelimit tracks the shared remote-call quota and the cooldown
// that follows failed calls. The state is a single persisted record so it
// survives restarts; every mutation is a read-modify-write of that record.
package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kappaborg/Simultane-Translate/pkg/kv"
	"github.com/kappaborg/Simultane-Translate/pkg/logger"
	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"go.uber.org/zap"
)

// ErrRateLimited is returned by Check while calls are not allowed.
var ErrRateLimited = errors.New("API rate limit exceeded")

const recordKey = "ratelimit"

const (
	baseDelay         = time.Second
	fixedCooldown     = 60 * baseDelay
	maxExponential    = time.Hour
	maxSmart          = 30 * time.Minute
	defaultRetryAfter = time.Hour
	successDecay      = 0.8
	errorGrowth       = 1.5
	maxMultiplier     = 1000
)

// Options configures a Tracker.
type Options struct {
	Quota          int
	RefillInterval time.Duration
	Strategy       models.CooldownStrategy
	// PinStrategy keeps Strategy fixed; 429 bursts never escalate it.
	PinStrategy bool
}

// Tracker is the process-wide rate-limit state machine.
type Tracker struct {
	store kv.Store
	opts  Options
	log   *zap.Logger
	now   func() time.Time

	mu   sync.Mutex
	last *models.LimitState
}

// New creates a Tracker persisting its record in store.
func New(store kv.Store, opts Options, log *zap.Logger) *Tracker {
	if opts.Quota <= 0 {
		opts.Quota = 100
	}
	if opts.RefillInterval <= 0 {
		opts.RefillInterval = time.Hour
	}
	if !opts.Strategy.Valid() {
		opts.Strategy = models.CooldownSmart
	}
	return &Tracker{
		store: store,
		opts:  opts,
		log:   logger.OrNop(log).Named("ratelimit"),
		now:   time.Now,
	}
}

func (t *Tracker) defaultState(now time.Time) models.LimitState {
	return models.LimitState{
		RemainingRequests:  t.opts.Quota,
		ResetTime:          now.Add(t.opts.RefillInterval),
		CooldownStrategy:   t.opts.Strategy,
		CooldownMultiplier: 1,
	}
}

// load must be called with t.mu held. Storage failures fall back to the
// last state seen by this process.
func (t *Tracker) load(ctx context.Context, now time.Time) models.LimitState {
	data, ok, err := t.store.Get(ctx, recordKey)
	if err != nil {
		t.log.Warn("load rate-limit state", zap.Error(err))
		if t.last != nil {
			return *t.last
		}
		return t.defaultState(now)
	}
	if !ok {
		return t.defaultState(now)
	}
	var st models.LimitState
	if err := json.Unmarshal(data, &st); err != nil {
		t.log.Warn("decode rate-limit state", zap.Error(err))
		return t.defaultState(now)
	}
	st.CooldownMultiplier = clampMultiplier(st.CooldownMultiplier)
	if !st.CooldownStrategy.Valid() {
		st.CooldownStrategy = t.opts.Strategy
	}
	return st
}

// save must be called with t.mu held.
func (t *Tracker) save(ctx context.Context, st models.LimitState) {
	t.last = &st
	data, err := json.Marshal(st)
	if err != nil {
		t.log.Warn("encode rate-limit state", zap.Error(err))
		return
	}
	if err := t.store.Put(ctx, recordKey, data); err != nil {
		t.log.Warn("save rate-limit state", zap.Error(err))
	}
}

func (t *Tracker) strategy(st models.LimitState) models.CooldownStrategy {
	if t.opts.PinStrategy {
		return t.opts.Strategy
	}
	return st.CooldownStrategy
}

// CanProceed reports whether a remote call may be issued now. Once the
// reset time has passed the quota is refilled and the call is allowed.
func (t *Tracker) CanProceed(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	st := t.load(ctx, now)
	if !now.Before(st.ResetTime) {
		st.RemainingRequests = t.opts.Quota
		st.ResetTime = now.Add(t.opts.RefillInterval)
		t.save(ctx, st)
		return true
	}
	if t.remainingCooldown(st, now) > 0 {
		return false
	}
	return st.RemainingRequests > 0
}

// ReportSuccess records one successful remote call.
func (t *Tracker) ReportSuccess(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.load(ctx, t.now())
	st.RemainingRequests = max(0, st.RemainingRequests-1)
	st.ConsecutiveErrors = 0
	st.ConsecutiveSuccesses++
	st.CooldownMultiplier = math.Max(1, st.CooldownMultiplier*successDecay)
	t.save(ctx, st)
}

// ReportError records one failed remote call. A 429 moves the reset time to
// the retry-after found in msg (one hour when absent) and exhausts the
// remaining quota until then.
func (t *Tracker) ReportError(ctx context.Context, status int, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	st := t.load(ctx, now)

	if status == 429 {
		wait, ok := ParseRetryAfter(msg)
		if !ok {
			wait = defaultRetryAfter
		}
		st.ResetTime = now.Add(wait)
		st.RemainingRequests = 0
		if st.ConsecutiveErrors > 3 && !t.opts.PinStrategy {
			st.CooldownStrategy = models.CooldownExponential
		}
	}

	st.LastError = &models.LastError{Timestamp: now, StatusCode: status, Message: msg}
	st.ConsecutiveErrors++
	st.ConsecutiveSuccesses = 0
	st.CooldownMultiplier = clampMultiplier(st.CooldownMultiplier * errorGrowth)
	t.save(ctx, st)

	t.log.Debug("remote call failed",
		zap.Int("status", status),
		zap.Int("consecutive_errors", st.ConsecutiveErrors),
		zap.Time("reset_time", st.ResetTime),
	)
}

func (t *Tracker) cooldown(st models.LimitState) time.Duration {
	if st.LastError == nil {
		return 0
	}
	base := float64(baseDelay)
	mult := st.CooldownMultiplier
	n := st.ConsecutiveErrors

	switch t.strategy(st) {
	case models.CooldownFixed:
		return fixedCooldown
	case models.CooldownExponential:
		return capDuration(base*math.Pow(2, float64(n))*mult, maxExponential)
	default:
		switch {
		case n > 5:
			return capDuration(base*30*mult, maxSmart)
		case n > 2:
			return capDuration(base*10*mult, maxSmart)
		default:
			return capDuration(base*2*mult, maxSmart)
		}
	}
}

// capDuration converts d to a Duration no larger than limit. The bound is
// applied in float space so huge or infinite values never overflow int64.
func capDuration(d float64, limit time.Duration) time.Duration {
	if math.IsNaN(d) || d >= float64(limit) {
		return limit
	}
	return time.Duration(max(d, 0))
}

func clampMultiplier(m float64) float64 {
	if math.IsNaN(m) || m < 1 {
		return 1
	}
	return math.Min(m, maxMultiplier)
}

func (t *Tracker) remainingCooldown(st models.LimitState, now time.Time) time.Duration {
	if st.LastError == nil {
		return 0
	}
	return max(0, st.LastError.Timestamp.Add(t.cooldown(st)).Sub(now))
}

// CooldownDuration returns the cooldown that follows the last error, or zero
// when no error has been recorded.
func (t *Tracker) CooldownDuration(ctx context.Context) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cooldown(t.load(ctx, t.now()))
}

// RemainingCooldown returns how much of the current cooldown is left.
func (t *Tracker) RemainingCooldown(ctx context.Context) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	return t.remainingCooldown(t.load(ctx, now), now)
}

// State returns a copy of the persisted record.
func (t *Tracker) State(ctx context.Context) models.LimitState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load(ctx, t.now())
}

// Reset restores the default record.
func (t *Tracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = nil
	if err := t.store.Delete(ctx, recordKey); err != nil {
		return fmt.Errorf("reset rate-limit state: %w", err)
	}
	return nil
}

// Wait returns how long a caller must wait before CanProceed can be true.
func (t *Tracker) Wait(ctx context.Context) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	return t.wait(t.load(ctx, now), now)
}

func (t *Tracker) wait(st models.LimitState, now time.Time) time.Duration {
	if !now.Before(st.ResetTime) {
		return 0
	}
	w := t.remainingCooldown(st, now)
	if st.RemainingRequests <= 0 {
		w = max(w, st.ResetTime.Sub(now))
	}
	return w
}

// Status returns a snapshot for display.
func (t *Tracker) Status(ctx context.Context) models.LimitStatus {
	can := t.CanProceed(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	st := t.load(ctx, now)
	remaining := t.remainingCooldown(st, now)
	return models.LimitStatus{
		State:               st,
		CanProceed:          can,
		CooldownMs:          t.cooldown(st).Milliseconds(),
		RemainingCooldownMs: remaining.Milliseconds(),
		RemainingDisplay:    FormatRemaining(t.wait(st, now)),
	}
}

// Check returns nil when a call may proceed, or ErrRateLimited wrapped with
// the remaining wait.
func (t *Tracker) Check(ctx context.Context) error {
	if t.CanProceed(ctx) {
		return nil
	}
	return fmt.Errorf("%w, retry in %s", ErrRateLimited, FormatRemaining(t.Wait(ctx)))
}

var retryAfterRe = regexp.MustCompile(`(?i)(\d+)\s*(seconds?|secs?|minutes?|mins?|hours?|hrs?)\b`)

// ParseRetryAfter extracts a wait such as "30 seconds" or "2 mins" from an
// error message.
func ParseRetryAfter(msg string) (time.Duration, bool) {
	m := retryAfterRe.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2])[0] {
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	default:
		return time.Duration(n) * time.Second, true
	}
}

// FormatRemaining renders d as mm:ss, rounding seconds up.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "00:00"
	}
	total := int64(math.Ceil(float64(d) / float64(time.Second)))
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
