// Package keys rotates through a pool of provider credentials, keeping each
// under an hourly usage ceiling.
package keys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/kappaborg/Simultane-Translate/pkg/kv"
	"github.com/kappaborg/Simultane-Translate/pkg/logger"
	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"go.uber.org/zap"
)

// DefaultMaxUsagePerHour is the per-credential ceiling when none is given.
const DefaultMaxUsagePerHour = 50

const idleReset = time.Hour

type usage struct {
	Count    int       `json:"count"`
	LastUsed time.Time `json:"last_used"`
}

type record struct {
	Current int              `json:"current"`
	Usage   map[string]usage `json:"usage"`
}

// Rotator hands out the current credential for one provider. Usage counters
// are persisted under "keys/<provider>", indexed by key fingerprint.
type Rotator struct {
	provider string
	keys     []string
	prints   []string
	max      int
	store    kv.Store
	log      *zap.Logger
	now      func() time.Time

	mu   sync.Mutex
	last *record
}

// New creates a Rotator for provider over keys.
func New(provider string, keys []string, maxUsagePerHour int, store kv.Store, log *zap.Logger) *Rotator {
	if maxUsagePerHour <= 0 {
		maxUsagePerHour = DefaultMaxUsagePerHour
	}
	prints := make([]string, len(keys))
	for i, k := range keys {
		prints[i] = Fingerprint(k)
	}
	return &Rotator{
		provider: provider,
		keys:     append([]string(nil), keys...),
		prints:   prints,
		max:      maxUsagePerHour,
		store:    store,
		log:      logger.OrNop(log).Named("keys").With(zap.String("provider", provider)),
		now:      time.Now,
	}
}

// Fingerprint returns a short stable identifier for a credential.
func Fingerprint(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:6])
}

// Provider returns the provider name the pool belongs to.
func (r *Rotator) Provider() string { return r.provider }

// Len returns the number of credentials in the pool.
func (r *Rotator) Len() int { return len(r.keys) }

func (r *Rotator) recordKey() string { return "keys/" + r.provider }

func (r *Rotator) load(ctx context.Context) *record {
	rec := &record{Usage: make(map[string]usage)}
	data, ok, err := r.store.Get(ctx, r.recordKey())
	switch {
	case err != nil:
		r.log.Warn("load key usage", zap.Error(err))
		if r.last != nil {
			return r.last
		}
	case ok:
		if err := json.Unmarshal(data, rec); err != nil {
			r.log.Warn("decode key usage", zap.Error(err))
			rec = &record{Usage: make(map[string]usage)}
		}
		if rec.Usage == nil {
			rec.Usage = make(map[string]usage)
		}
	}
	if rec.Current < 0 || rec.Current >= len(r.keys) {
		rec.Current = 0
	}
	return rec
}

func (r *Rotator) save(ctx context.Context, rec *record) {
	r.last = rec
	data, err := json.Marshal(rec)
	if err != nil {
		r.log.Warn("encode key usage", zap.Error(err))
		return
	}
	if err := r.store.Put(ctx, r.recordKey(), data); err != nil {
		r.log.Warn("save key usage", zap.Error(err))
	}
}

// CurrentKey returns the credential to use for the next call, rotating
// first when the current one is at its ceiling. An empty pool yields "".
func (r *Rotator) CurrentKey(ctx context.Context) string {
	if len(r.keys) == 0 {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	rec := r.load(ctx)
	fp := r.prints[rec.Current]
	u := rec.Usage[fp]
	if now.Sub(u.LastUsed) > idleReset && u.Count != 0 {
		u.Count = 0
		rec.Usage[fp] = u
	}
	if u.Count >= r.max {
		r.rotate(rec, now)
	}
	r.save(ctx, rec)
	return r.keys[rec.Current]
}

// MarkKeyUsed counts one completed call against the current credential.
func (r *Rotator) MarkKeyUsed(ctx context.Context) {
	if len(r.keys) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.load(ctx)
	fp := r.prints[rec.Current]
	u := rec.Usage[fp]
	u.Count++
	u.LastUsed = r.now()
	rec.Usage[fp] = u
	r.save(ctx, rec)
}

// RotateKey advances to the next credential, then jumps to the first one
// that is under its ceiling or idle for over an hour. When none qualifies
// the pool is exhausted: a warning is logged and the rotated-to credential
// stays current.
func (r *Rotator) RotateKey(ctx context.Context) {
	if len(r.keys) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.load(ctx)
	r.rotate(rec, r.now())
	r.save(ctx, rec)
}

func (r *Rotator) rotate(rec *record, now time.Time) {
	rec.Current = (rec.Current + 1) % len(r.keys)
	for i, fp := range r.prints {
		u := rec.Usage[fp]
		if u.Count < r.max || now.Sub(u.LastUsed) > idleReset {
			rec.Current = i
			return
		}
	}
	r.log.Warn("all API keys reached their hourly limit, service may be degraded",
		zap.Int("keys", len(r.keys)),
		zap.Int("max_usage_per_hour", r.max),
	)
}

// Statuses reports usage per credential. Raw keys are never exposed.
func (r *Rotator) Statuses(ctx context.Context) []models.KeyStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	rec := r.load(ctx)
	out := make([]models.KeyStatus, 0, len(r.keys))
	for i, fp := range r.prints {
		u := rec.Usage[fp]
		count := u.Count
		if now.Sub(u.LastUsed) > idleReset {
			count = 0
		}
		out = append(out, models.KeyStatus{
			Index:       i,
			Fingerprint: fp,
			UsageCount:  count,
			LastUsedAt:  u.LastUsed,
			Current:     i == rec.Current,
			OverQuota:   count >= r.max,
		})
	}
	return out
}
