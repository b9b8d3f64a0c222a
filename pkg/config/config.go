package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config holds all Simultane configuration.
type Config struct {
	Listen         string              `yaml:"listen" toml:"listen"`
	DBPath         string              `yaml:"db_path" toml:"db_path"`
	// EphemeralState keeps rate-limit and key usage in memory only.
	EphemeralState bool                `yaml:"ephemeral_state" toml:"ephemeral_state"`
	Log            LogConfig           `yaml:"log" toml:"log"`
	Cache          CacheConfig         `yaml:"cache" toml:"cache"`
	Queue          QueueConfig         `yaml:"queue" toml:"queue"`
	RateLimit      RateLimitConfig     `yaml:"rate_limit" toml:"rate_limit"`
	Retry          RetryConfig         `yaml:"retry" toml:"retry"`
	Keys           KeysConfig          `yaml:"keys" toml:"keys"`
	Budget         BudgetConfig        `yaml:"budget" toml:"budget"`
	Transcription  TranscriptionConfig `yaml:"transcription" toml:"transcription"`
	Translation    TranslationConfig   `yaml:"translation" toml:"translation"`
	Features       Features            `yaml:"features" toml:"features"`
	Session        SessionConfig       `yaml:"session" toml:"session"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// CacheConfig controls the translation cache.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled" toml:"enabled"`
	MaxSize       int           `yaml:"max_size" toml:"max_size"`
	TTL           time.Duration `yaml:"ttl" toml:"ttl"`
	KeyPrefixLen  int           `yaml:"key_prefix_len" toml:"key_prefix_len"`
	SweepInterval time.Duration `yaml:"sweep_interval" toml:"sweep_interval"`
}

// QueueConfig controls request batching.
type QueueConfig struct {
	BatchSize   int           `yaml:"batch_size" toml:"batch_size"`
	Interval    time.Duration `yaml:"interval" toml:"interval"`
	CallTimeout time.Duration `yaml:"call_timeout" toml:"call_timeout"`
}

// RateLimitConfig controls the shared rate-limit tracker.
type RateLimitConfig struct {
	DefaultQuota   int                     `yaml:"default_quota" toml:"default_quota"`
	RefillInterval time.Duration           `yaml:"refill_interval" toml:"refill_interval"`
	Strategy       models.CooldownStrategy `yaml:"strategy" toml:"strategy"`
}

// RetryConfig controls transcription retries.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries" toml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay" toml:"base_delay"`
}

// KeysConfig controls credential rotation.
type KeysConfig struct {
	MaxUsagePerHour int `yaml:"max_usage_per_hour" toml:"max_usage_per_hour"`
}

// BudgetConfig controls request ceilings.
type BudgetConfig struct {
	Enabled  bool                  `yaml:"enabled" toml:"enabled"`
	Policies []models.BudgetPolicy `yaml:"policies" toml:"policies"`
}

// TranscriptionConfig defines the speech-to-text provider.
// Type is "openai" (default) or "demo".
type TranscriptionConfig struct {
	Type       string        `yaml:"type" toml:"type"`
	URL        string        `yaml:"url" toml:"url"`
	Model      string        `yaml:"model" toml:"model"`
	APIKeys    []string      `yaml:"api_keys" toml:"api_keys"`
	MaxAudioMB int           `yaml:"max_audio_mb" toml:"max_audio_mb"`
	Timeout    time.Duration `yaml:"timeout" toml:"timeout"`
}

// TranslationConfig defines the translation provider.
// Type is "libre" (default), "microsoft", "remote" or "demo".
type TranslationConfig struct {
	Type    string        `yaml:"type" toml:"type"`
	URL     string        `yaml:"url" toml:"url"`
	Region  string        `yaml:"region" toml:"region"`
	APIKeys []string      `yaml:"api_keys" toml:"api_keys"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

// Features toggles optional behavior at runtime.
type Features struct {
	BatchTranslation       bool `yaml:"batch_translation" toml:"batch_translation"`
	SmartCooldown          bool `yaml:"smart_cooldown" toml:"smart_cooldown"`
	AggressiveCaching      bool `yaml:"aggressive_caching" toml:"aggressive_caching"`
	ProgressiveTranslation bool `yaml:"progressive_translation" toml:"progressive_translation"`
}

// SessionConfig controls session history.
type SessionConfig struct {
	HistoryLimit int `yaml:"history_limit" toml:"history_limit"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "simultane.db",
		Log:    LogConfig{Level: "info"},
		Cache: CacheConfig{
			Enabled:       true,
			MaxSize:       500,
			TTL:           30 * 24 * time.Hour,
			KeyPrefixLen:  500,
			SweepInterval: time.Hour,
		},
		Queue: QueueConfig{
			BatchSize:   5,
			Interval:    time.Second,
			CallTimeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			DefaultQuota:   100,
			RefillInterval: time.Hour,
			Strategy:       models.CooldownSmart,
		},
		Retry: RetryConfig{
			MaxRetries: 5,
			BaseDelay:  3 * time.Second,
		},
		Keys: KeysConfig{MaxUsagePerHour: 50},
		Budget: BudgetConfig{
			Enabled: false,
			Policies: []models.BudgetPolicy{
				{Provider: "*", MaxRequests: 100, Period: models.BudgetDaily},
			},
		},
		Transcription: TranscriptionConfig{
			Type:       "openai",
			URL:        "https://api.openai.com/v1",
			Model:      "whisper-1",
			MaxAudioMB: 25,
			Timeout:    30 * time.Second,
		},
		Translation: TranslationConfig{
			Type:    "libre",
			URL:     "https://libretranslate.com",
			Timeout: 30 * time.Second,
		},
		Features: Features{
			BatchTranslation:       true,
			SmartCooldown:          true,
			AggressiveCaching:      true,
			ProgressiveTranslation: true,
		},
		Session: SessionConfig{HistoryLimit: 10},
	}
}

// Load reads a YAML or TOML config file and expands environment variables.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	if c.Cache.MaxSize <= 0 {
		err = multierr.Append(err, errors.New("cache.max_size must be positive"))
	}
	if c.Cache.TTL <= 0 {
		err = multierr.Append(err, errors.New("cache.ttl must be positive"))
	}
	if c.Cache.KeyPrefixLen <= 0 {
		err = multierr.Append(err, errors.New("cache.key_prefix_len must be positive"))
	}
	if c.Queue.BatchSize <= 0 {
		err = multierr.Append(err, errors.New("queue.batch_size must be positive"))
	}
	if c.Queue.Interval < 0 {
		err = multierr.Append(err, errors.New("queue.interval must not be negative"))
	}
	if c.Queue.CallTimeout <= 0 {
		err = multierr.Append(err, errors.New("queue.call_timeout must be positive"))
	}
	if c.RateLimit.DefaultQuota <= 0 {
		err = multierr.Append(err, errors.New("rate_limit.default_quota must be positive"))
	}
	if c.RateLimit.RefillInterval <= 0 {
		err = multierr.Append(err, errors.New("rate_limit.refill_interval must be positive"))
	}
	if !c.RateLimit.Strategy.Valid() {
		err = multierr.Append(err, fmt.Errorf("rate_limit.strategy %q is not fixed, exponential or smart", c.RateLimit.Strategy))
	}
	if c.Retry.MaxRetries < 0 {
		err = multierr.Append(err, errors.New("retry.max_retries must not be negative"))
	}
	if c.Keys.MaxUsagePerHour <= 0 {
		err = multierr.Append(err, errors.New("keys.max_usage_per_hour must be positive"))
	}
	switch c.Transcription.Type {
	case "", "openai", "demo":
	default:
		err = multierr.Append(err, fmt.Errorf("transcription.type %q is not openai or demo", c.Transcription.Type))
	}
	switch c.Translation.Type {
	case "", "libre", "microsoft", "remote", "demo":
	default:
		err = multierr.Append(err, fmt.Errorf("translation.type %q is not libre, microsoft, remote or demo", c.Translation.Type))
	}
	if c.Transcription.MaxAudioMB <= 0 {
		err = multierr.Append(err, errors.New("transcription.max_audio_mb must be positive"))
	}
	for i, p := range c.Budget.Policies {
		switch p.Period {
		case models.BudgetHourly, models.BudgetDaily, models.BudgetMonthly:
		default:
			err = multierr.Append(err, fmt.Errorf("budget.policies[%d]: unknown period %q", i, p.Period))
		}
		if p.MaxRequests <= 0 {
			err = multierr.Append(err, fmt.Errorf("budget.policies[%d]: max_requests must be positive", i))
		}
	}
	return err
}

// EffectiveBatchSize returns 1 when batching is switched off.
func (c *Config) EffectiveBatchSize() int {
	if !c.Features.BatchTranslation {
		return 1
	}
	return c.Queue.BatchSize
}

// EffectiveStrategy pins the fixed strategy when smart cooldown is off.
func (c *Config) EffectiveStrategy() models.CooldownStrategy {
	if !c.Features.SmartCooldown {
		return models.CooldownFixed
	}
	return c.RateLimit.Strategy
}
