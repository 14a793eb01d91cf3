package gerbang

import (
	"fmt"
	"time"
)

// Option configures a Mediator at construction.
type Option func(*Mediator)

// WithTarget names the upstream target, used as a metrics label.
func WithTarget(name string) Option {
	return func(m *Mediator) {
		if name != "" {
			m.target = name
		}
	}
}

// WithCache sets up the in-memory cache with the given capacity and default
// TTL.
func WithCache(capacity int, ttl time.Duration) Option {
	return func(m *Mediator) {
		m.cache = NewMemoryCache(capacity)
		m.cacheTTL = ttl
	}
}

// WithCustomCache installs a caller-provided Cache implementation.
func WithCustomCache(cache Cache, ttl time.Duration) Option {
	return func(m *Mediator) {
		m.cache = cache
		m.cacheTTL = ttl
	}
}

// WithRateLimit bounds outbound calls to limit per trailing window.
func WithRateLimit(limit int, window time.Duration) Option {
	return func(m *Mediator) {
		m.limiter = NewSlidingWindowLimiter(limit, window)
	}
}

// WithLimiter installs a caller-provided Limiter implementation.
func WithLimiter(limiter Limiter) Option {
	return func(m *Mediator) {
		m.limiter = limiter
	}
}

// WithBreaker sets the circuit breaker configuration.
func WithBreaker(config BreakerConfig) Option {
	return func(m *Mediator) {
		m.breaker = NewBreaker(config)
	}
}

// WithRetry configures the default exponential-jitter retry policy.
func WithRetry(maxRetries int, baseDelay, maxDelay time.Duration) Option {
	return func(m *Mediator) {
		m.maxRetries = maxRetries
		m.retryPolicy = NewRetryPolicy(maxRetries, baseDelay, maxDelay, 2.0, 0.1)
	}
}

// WithRetryPolicy installs a caller-provided retry policy. maxRetries is
// only used for error reporting; the policy itself bounds attempts.
func WithRetryPolicy(policy RetryPolicy, maxRetries int) Option {
	return func(m *Mediator) {
		m.retryPolicy = policy
		m.maxRetries = maxRetries
	}
}

// WithMetrics enables Prometheus metrics on the default registerer. The
// collector is created after all options are applied, so an explicit
// WithMetricsCollector takes precedence and a Registry can hand one shared
// collector to every target.
func WithMetrics() Option {
	return func(m *Mediator) {
		m.wantMetrics = true
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(m *Mediator) {
		m.metrics = collector
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger Logger) Option {
	return func(m *Mediator) {
		m.logger = logger
	}
}

// WithDebug enables debug logging for every concern.
func WithDebug() Option {
	return func(m *Mediator) {
		if m.debug == nil {
			m.debug = DefaultDebugConfig()
		}
		m.debug.Enabled = true
	}
}

// WithDebugConfig sets a custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(m *Mediator) {
		if config != nil {
			m.debug = config
		}
	}
}

// WithFetchIDGenerator sets a custom generator for per-fetch debug IDs.
func WithFetchIDGenerator(gen func() string) Option {
	return func(m *Mediator) {
		if m.debug == nil {
			m.debug = DefaultDebugConfig()
		}
		m.debug.FetchIDGen = gen
	}
}

// ValidateConfiguration checks the assembled configuration and returns a
// Validation error listing every fault found.
func (m *Mediator) ValidateConfiguration() error {
	var faults []string

	if m.cache == nil {
		faults = append(faults, "cache must not be nil")
	}
	if m.cacheTTL <= 0 {
		faults = append(faults, "cache TTL must be positive")
	}
	if m.limiter == nil {
		faults = append(faults, "limiter must not be nil")
	}
	if m.breaker == nil {
		faults = append(faults, "breaker must not be nil")
	}
	if m.maxRetries < 0 {
		faults = append(faults, "maxRetries must be non-negative")
	}
	if m.maxRetries > 100 {
		faults = append(faults, "maxRetries > 100 may cause excessive resource usage")
	}
	if m.retryPolicy == nil {
		faults = append(faults, "retry policy must not be nil")
	}
	if p, ok := m.retryPolicy.(*ExponentialRetryPolicy); ok {
		if p.baseDelay <= 0 {
			faults = append(faults, "retry baseDelay must be positive")
		}
		if p.maxDelay < p.baseDelay {
			faults = append(faults, "retry maxDelay must be greater than or equal to baseDelay")
		}
		if p.baseDelay > 10*time.Minute {
			faults = append(faults, "retry baseDelay > 10m may cause very long delays")
		}
	}
	if m.debug != nil && m.debug.Enabled && m.logger == nil {
		faults = append(faults, "logger must be set when debug logging is enabled")
	}
	if sw, ok := m.limiter.(*SlidingWindowLimiter); ok {
		if sw.limit > 1000000 {
			faults = append(faults, "rate limit > 1M per window may cause memory issues")
		}
		if sw.window < time.Millisecond {
			faults = append(faults, "rate window < 1ms may cause excessive CPU usage")
		}
	}
	if mem, ok := m.cache.(*MemoryCache); ok && mem.capacity > 10000000 {
		faults = append(faults, "cache capacity > 10M may cause memory issues")
	}

	if len(faults) > 0 {
		return &FetchError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation faults: %v", faults),
		}
	}
	return nil
}
