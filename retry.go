package gerbang

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ambiyansyah-risyal/gerbang/internal/backoff"
)

// RetryPolicy decides whether a failed attempt should be retried and after
// what delay. attempt is the number of retries already performed (0 on the
// first failure).
type RetryPolicy interface {
	ShouldRetry(resp Response, err error, attempt int) (time.Duration, bool)
}

// ExponentialRetryPolicy retries transient failures with capped exponential
// backoff plus jitter. An upstream Retry-After header, when present on a
// throttling or unavailable response, overrides the computed delay.
type ExponentialRetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	multiplier float64
	jitter     float64
	strategy   backoff.Strategy
}

// NewRetryPolicy creates the default policy: exponential backoff with
// uniform jitter.
func NewRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration, multiplier, jitter float64) *ExponentialRetryPolicy {
	return &ExponentialRetryPolicy{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		multiplier: multiplier,
		jitter:     jitter,
		strategy:   backoff.Exponential{},
	}
}

// NewDecorrelatedRetryPolicy creates a policy using decorrelated jitter.
func NewDecorrelatedRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration) *ExponentialRetryPolicy {
	return &ExponentialRetryPolicy{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		multiplier: 2.0,
		strategy:   backoff.Decorrelated{},
	}
}

// MaxRetries returns the retry budget.
func (p *ExponentialRetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// ShouldRetry implements RetryPolicy. Transport errors, 5xx responses and
// upstream throttling are retryable; cancellation and other 4xx responses
// are not.
func (p *ExponentialRetryPolicy) ShouldRetry(resp Response, err error, attempt int) (time.Duration, bool) {
	if attempt >= p.maxRetries {
		return 0, false
	}

	var delay time.Duration
	switch {
	case err != nil:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, false
		}
	case isRateLimitedStatus(resp.StatusCode) || resp.StatusCode == http.StatusServiceUnavailable:
		delay = parseRetryAfter(resp.Header.Get("Retry-After"))
	case isServerErrorStatus(resp.StatusCode):
	default:
		return 0, false
	}

	if delay == 0 {
		delay = p.strategy.Calculate(attempt, p.baseDelay, p.maxDelay, p.multiplier, p.jitter)
	}
	return delay, true
}

// parseRetryAfter parses a Retry-After header value, supporting both
// delay-seconds and HTTP-date formats. Delays are capped at one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}
