package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`
	MetricsAddr string `koanf:"metrics_addr"`

	Redis    RedisConfig    `koanf:"redis"`
	Database DatabaseConfig `koanf:"database"`

	Engine    EngineConfig    `koanf:"engine"`
	SAR       SARConfig       `koanf:"sar"`
	Gateway   GatewayConfig   `koanf:"gateway"`
	Cache     CacheConfig     `koanf:"cache"`
	Vigilance VigilanceConfig `koanf:"vigilance"`
}

type RedisConfig struct {
	URL      string `koanf:"url"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type EngineConfig struct {
	MaxConcurrentQueries   int           `koanf:"max_concurrent_queries"`
	MaxConcurrentScreenings int          `koanf:"max_concurrent_screenings"`
	ScreeningTimeout       time.Duration `koanf:"screening_timeout"`
	IdempotencyTTL         time.Duration `koanf:"idempotency_ttl"`
}

type SARConfig struct {
	ConfidenceTarget float64 `koanf:"confidence_target"`
	MaxIterations    int     `koanf:"max_iterations"`
	MinInfoGainRate  float64 `koanf:"min_info_gain_rate"`
	MaxCounties      int     `koanf:"max_counties"`
}

type GatewayConfig struct {
	MaxRetries          int             `koanf:"max_retries"`
	RetryBackoff        []time.Duration `koanf:"retry_backoff"`
	DefaultTimeout      time.Duration   `koanf:"default_timeout"`
	RateLimitWindow     time.Duration   `koanf:"rate_limit_window"`
	CircuitBreaker      CircuitConfig   `koanf:"circuit_breaker"`
	HealthProbeInterval time.Duration   `koanf:"health_probe_interval"`
}

type CircuitConfig struct {
	FailureThreshold int           `koanf:"failure_threshold"`
	OpenDuration     time.Duration `koanf:"open_duration"`
	SuccessThreshold int           `koanf:"success_threshold"`
	OutcomeWindow    int           `koanf:"outcome_window"`
}

type CacheConfig struct {
	KeyPrefix string `koanf:"key_prefix"`

	// FreshFor/StaleFor define per-check-type TTL windows; the default
	// applies to check types without an override.
	DefaultFreshFor time.Duration            `koanf:"default_fresh_for"`
	DefaultStaleFor time.Duration            `koanf:"default_stale_for"`
	FreshFor        map[string]time.Duration `koanf:"fresh_for"`
	StaleFor        map[string]time.Duration `koanf:"stale_for"`

	BuildLockTTL time.Duration `koanf:"build_lock_ttl"`
}

type VigilanceConfig struct {
	TickInterval time.Duration `koanf:"tick_interval"`
	BatchSize    int           `koanf:"batch_size"`

	// SynthesisConfidenceCap caps finding confidence for non-authoritative
	// sources, per check type; Default applies otherwise.
	SynthesisConfidenceCap map[string]float64 `koanf:"synthesis_confidence_cap"`
	DefaultConfidenceCap   float64            `koanf:"default_confidence_cap"`
}

func defaults() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		MetricsAddr: ":9090",
		Redis: RedisConfig{
			URL: "localhost:6379",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Engine: EngineConfig{
			MaxConcurrentQueries:    10,
			MaxConcurrentScreenings: 8,
			ScreeningTimeout:        30 * time.Minute,
			IdempotencyTTL:          24 * time.Hour,
		},
		SAR: SARConfig{
			ConfidenceTarget: 0.85,
			MaxIterations:    4,
			MinInfoGainRate:  0.15,
			MaxCounties:      5,
		},
		Gateway: GatewayConfig{
			MaxRetries:     3,
			RetryBackoff:   []time.Duration{1 * time.Second, 5 * time.Second, 15 * time.Second},
			DefaultTimeout: 10 * time.Second,
			RateLimitWindow: time.Minute,
			CircuitBreaker: CircuitConfig{
				FailureThreshold: 5,
				OpenDuration:     60 * time.Second,
				SuccessThreshold: 2,
				OutcomeWindow:    50,
			},
			HealthProbeInterval: 30 * time.Second,
		},
		Cache: CacheConfig{
			KeyPrefix:       "screen:",
			DefaultFreshFor: 30 * 24 * time.Hour,
			DefaultStaleFor: 90 * 24 * time.Hour,
			FreshFor: map[string]time.Duration{
				"sanctions_watchlist": 7 * 24 * time.Hour,
				"adverse_media":       14 * 24 * time.Hour,
				"criminal_records":    30 * 24 * time.Hour,
				"identity_verification": 180 * 24 * time.Hour,
				"education_verification": 365 * 24 * time.Hour,
			},
			StaleFor: map[string]time.Duration{
				"sanctions_watchlist": 30 * 24 * time.Hour,
				"adverse_media":       45 * 24 * time.Hour,
				"criminal_records":    90 * 24 * time.Hour,
				"identity_verification": 365 * 24 * time.Hour,
				"education_verification": 2 * 365 * 24 * time.Hour,
			},
			BuildLockTTL: 30 * time.Second,
		},
		Vigilance: VigilanceConfig{
			TickInterval:         time.Minute,
			BatchSize:            20,
			DefaultConfidenceCap: 0.80,
			SynthesisConfidenceCap: map[string]float64{},
		},
	}
}

// Load reads configuration from defaults, an optional YAML file, and
// SCREEN_-prefixed environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		path = "configs/config.yaml"
	}
	// Config file is optional.
	_ = k.Load(file.Provider(path), yaml.Parser())

	if err := k.Load(env.Provider("SCREEN_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "SCREEN_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// FreshWindow returns the fresh TTL for a check type.
func (c CacheConfig) FreshWindow(checkType string) time.Duration {
	if d, ok := c.FreshFor[checkType]; ok {
		return d
	}
	return c.DefaultFreshFor
}

// StaleWindow returns the stale TTL for a check type, measured from
// acquisition.
func (c CacheConfig) StaleWindow(checkType string) time.Duration {
	if d, ok := c.StaleFor[checkType]; ok {
		return d
	}
	return c.DefaultStaleFor
}

// ConfidenceCap returns the synthesis-provider confidence cap for a check
// type.
func (v VigilanceConfig) ConfidenceCap(checkType string) float64 {
	if cap, ok := v.SynthesisConfidenceCap[checkType]; ok {
		return cap
	}
	if v.DefaultConfidenceCap > 0 {
		return v.DefaultConfidenceCap
	}
	return 0.80
}
