package gerbang

import (
	"sync"
	"time"
)

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	// FailureThreshold is the number of failures within FailureWindow that
	// trips the breaker.
	FailureThreshold int
	// FailureWindow is the trailing interval failures are counted over.
	FailureWindow time.Duration
	// Cooldown is how long the breaker stays open before probing recovery.
	Cooldown time.Duration
}

// Breaker is a circuit breaker scoped to one upstream target. Closed passes
// calls through; after FailureThreshold failures within FailureWindow it
// opens and fails fast; after Cooldown it admits exactly one probe at a
// time, whose outcome decides between closing and re-opening.
type Breaker struct {
	mu       sync.Mutex
	config   BreakerConfig
	state    CircuitState
	failures []time.Time
	openedAt time.Time
	probing  bool
	probedAt time.Time
}

// NewBreaker creates a circuit breaker, filling zero config fields with
// defaults.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.FailureWindow == 0 {
		config.FailureWindow = time.Minute
	}
	if config.Cooldown == 0 {
		config.Cooldown = 30 * time.Second
	}
	return &Breaker{
		config: config,
		state:  StateClosed,
	}
}

// Allow reports whether a call may proceed. In the open state it flips to
// half-open once the cooldown elapsed, granting the caller the single
// recovery probe; further calls fail fast until the probe resolves via
// RecordSuccess, RecordFailure or ReleaseProbe. As a backstop, a probe whose
// holder never resolves it at all is re-granted after another cooldown.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(b.openedAt) >= b.config.Cooldown {
			b.state = StateHalfOpen
			b.probing = true
			b.probedAt = now
			return true
		}
		return false
	case StateHalfOpen:
		if !b.probing || now.Sub(b.probedAt) >= b.config.Cooldown {
			b.probing = true
			b.probedAt = now
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess reports a successful call. It clears windowed failures in
// the closed state and closes the breaker after a successful probe.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = b.failures[:0]
	case StateHalfOpen:
		b.state = StateClosed
		b.failures = b.failures[:0]
		b.probing = false
	}
}

// RecordFailure reports a failed call. Failures older than the trailing
// window no longer count toward the threshold. A failed probe re-opens the
// breaker and restarts the cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.pruneFailures(now)
	b.failures = append(b.failures, now)

	switch b.state {
	case StateClosed:
		if len(b.failures) >= b.config.FailureThreshold {
			b.state = StateOpen
			b.openedAt = now
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = now
		b.probing = false
	}
}

// ReleaseProbe returns the half-open probe slot without resolving it, used
// when the probing call was abandoned before producing an outcome. The next
// Allow grants a fresh probe immediately instead of waiting out another
// cooldown.
func (b *Breaker) ReleaseProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.probing = false
	}
}

// State returns the current state for observability.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) pruneFailures(now time.Time) {
	cutoff := now.Add(-b.config.FailureWindow)
	i := 0
	for i < len(b.failures) && !b.failures[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.failures = append(b.failures[:0], b.failures[i:]...)
	}
}
