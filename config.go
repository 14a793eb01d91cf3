package gerbang

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries mediation settings in a form loadable from the
// environment. It mirrors the functional options; use Options to bridge.
type Config struct {
	CacheCapacity    int           `env:"GERBANG_CACHE_CAPACITY" envDefault:"1024"`
	CacheTTL         time.Duration `env:"GERBANG_CACHE_TTL" envDefault:"5m"`
	RateLimit        int           `env:"GERBANG_RATE_LIMIT" envDefault:"60"`
	RateWindow       time.Duration `env:"GERBANG_RATE_WINDOW" envDefault:"1m"`
	BreakerThreshold int           `env:"GERBANG_BREAKER_THRESHOLD" envDefault:"5"`
	BreakerWindow    time.Duration `env:"GERBANG_BREAKER_WINDOW" envDefault:"1m"`
	BreakerCooldown  time.Duration `env:"GERBANG_BREAKER_COOLDOWN" envDefault:"30s"`
	MaxRetries       int           `env:"GERBANG_MAX_RETRIES" envDefault:"3"`
	BaseDelay        time.Duration `env:"GERBANG_BASE_DELAY" envDefault:"250ms"`
	MaxDelay         time.Duration `env:"GERBANG_MAX_DELAY" envDefault:"10s"`
}

// ConfigFromEnv loads a Config from GERBANG_* environment variables,
// falling back to defaults for unset ones.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Options converts the configuration into functional options for New.
func (c Config) Options() []Option {
	return []Option{
		WithCache(c.CacheCapacity, c.CacheTTL),
		WithRateLimit(c.RateLimit, c.RateWindow),
		WithBreaker(BreakerConfig{
			FailureThreshold: c.BreakerThreshold,
			FailureWindow:    c.BreakerWindow,
			Cooldown:         c.BreakerCooldown,
		}),
		WithRetry(c.MaxRetries, c.BaseDelay, c.MaxDelay),
	}
}
