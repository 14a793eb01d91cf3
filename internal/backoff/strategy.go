// Package backoff provides delay calculation strategies for retry loops.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the delay before retry attempt n (0-indexed).
type Strategy interface {
	Calculate(attempt int, base, max time.Duration, multiplier, jitter float64) time.Duration
}

// Exponential grows the delay by multiplier per attempt, capped at max, with
// uniform jitter in [0, jitter*delay] to avoid synchronized retry storms.
type Exponential struct{}

// Calculate implements Strategy.
func (Exponential) Calculate(attempt int, base, max time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Bounded to keep the float exponentiation from overflowing.
	if attempt > 30 {
		attempt = 30
	}

	delay := time.Duration(float64(base) * pow(multiplier, attempt))
	if delay < 0 || delay > max {
		delay = max
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		amount := time.Duration(float64(delay) * jitter * rand.Float64())
		if delay+amount > max {
			delay = max
		} else {
			delay += amount
		}
	}
	return delay
}

// Decorrelated implements decorrelated jitter: each delay is drawn uniformly
// from [base, min(max, base*3^attempt)]. It produces smoother tail latencies
// than exponential jitter under heavy contention.
type Decorrelated struct{}

// Calculate implements Strategy.
func (Decorrelated) Calculate(attempt int, base, max time.Duration, _, _ float64) time.Duration {
	if attempt <= 0 {
		return base
	}
	if attempt > 10 {
		attempt = 10
	}

	lower := float64(base)
	upper := lower * pow(3.0, attempt)
	if upper > float64(max) || upper < 0 {
		upper = float64(max)
	}
	if upper < lower {
		upper = lower
	}

	delay := time.Duration(lower + rand.Float64()*(upper-lower))
	if delay < 0 || delay > max {
		delay = max
	}
	return delay
}

func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
