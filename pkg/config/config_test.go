package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, 500, cfg.Cache.MaxSize)
	assert.Equal(t, 30*24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 5, cfg.Queue.BatchSize)
	assert.Equal(t, time.Second, cfg.Queue.Interval)
	assert.Equal(t, 100, cfg.RateLimit.DefaultQuota)
	assert.Equal(t, models.CooldownSmart, cfg.RateLimit.Strategy)
	assert.Equal(t, 50, cfg.Keys.MaxUsagePerHour)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.False(t, cfg.Budget.Enabled)
	require.Len(t, cfg.Budget.Policies, 1)
	assert.Equal(t, int64(100), cfg.Budget.Policies[0].MaxRequests)
	assert.NoError(t, cfg.Validate())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("TEST_LIBRE_KEY", "libre-123")

	path := writeFile(t, "simultane.yaml", `
listen: ":9090"
db_path: "test.db"
cache:
  ttl: 30m
  max_size: 50
queue:
  batch_size: 3
  interval: 250ms
rate_limit:
  strategy: exponential
translation:
  type: libre
  api_keys:
    - ${TEST_LIBRE_KEY}
budget:
  enabled: true
  policies:
    - provider: "*"
      max_requests: 1000
      period: daily
features:
  batch_translation: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 50, cfg.Cache.MaxSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.Interval)
	assert.Equal(t, models.CooldownExponential, cfg.RateLimit.Strategy)
	assert.Equal(t, []string{"libre-123"}, cfg.Translation.APIKeys)
	require.Len(t, cfg.Budget.Policies, 1)
	assert.Equal(t, int64(1000), cfg.Budget.Policies[0].MaxRequests)
	assert.Equal(t, models.BudgetDaily, cfg.Budget.Policies[0].Period)

	// untouched keys keep their defaults
	assert.Equal(t, 500, cfg.Cache.KeyPrefixLen)
	assert.True(t, cfg.Features.AggressiveCaching)
	assert.Equal(t, 1, cfg.EffectiveBatchSize())
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "simultane.toml", `
listen = ":7070"

[queue]
batch_size = 4
interval = "2s"

[features]
smart_cooldown = false

[[budget.policies]]
provider = "libre"
max_requests = 20
period = "hourly"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, 4, cfg.EffectiveBatchSize())
	assert.Equal(t, 2*time.Second, cfg.Queue.Interval)
	assert.Equal(t, models.CooldownFixed, cfg.EffectiveStrategy())
	require.Len(t, cfg.Budget.Policies, 1)
	assert.Equal(t, "libre", cfg.Budget.Policies[0].Provider)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/simultane.yaml")
	assert.Error(t, err)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Cache.MaxSize = 0
	cfg.Queue.BatchSize = -1
	cfg.RateLimit.Strategy = "random"
	cfg.Translation.Type = "babelfish"
	cfg.Budget.Policies = []models.BudgetPolicy{{Provider: "*", MaxRequests: 0, Period: "weekly"}}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "cache.max_size")
	assert.Contains(t, msg, "queue.batch_size")
	assert.Contains(t, msg, "rate_limit.strategy")
	assert.Contains(t, msg, "translation.type")
	assert.Contains(t, msg, "unknown period")
	assert.Contains(t, msg, "max_requests")
}
