package gerbang

import (
	"context"
	"errors"
	"time"
)

// Mediator shields callers from a rate-limited upstream: it answers from
// cache when it can, collapses concurrent identical fetches into one call,
// spaces outbound calls to the configured rate, fails fast while the
// upstream is unhealthy and retries transient failures with backoff. It is
// safe for concurrent use.
type Mediator struct {
	target      string
	cache       Cache
	cacheTTL    time.Duration
	limiter     Limiter
	breaker     *Breaker
	retryPolicy RetryPolicy
	maxRetries  int
	inflight    *inflightTracker
	metrics     *MetricsCollector
	wantMetrics bool
	logger      Logger
	debug       *DebugConfig

	validationError error
}

// New constructs a Mediator from functional options. A best effort
// validation is performed; call IsValid / ValidationError for the result.
func New(options ...Option) *Mediator {
	m := &Mediator{
		target:     "default",
		cache:      NewMemoryCache(1024),
		cacheTTL:   5 * time.Minute,
		limiter:    NewSlidingWindowLimiter(60, time.Minute),
		breaker:    NewBreaker(BreakerConfig{}),
		maxRetries: 3,
		inflight:   newInflightTracker(),
		debug:      DefaultDebugConfig(),
	}

	for _, option := range options {
		option(m)
	}

	if m.retryPolicy == nil {
		m.retryPolicy = NewRetryPolicy(m.maxRetries, 250*time.Millisecond, 10*time.Second, 2.0, 0.1)
	}

	if m.metrics == nil && m.wantMetrics {
		m.metrics = NewMetricsCollector()
	}

	if err := m.ValidateConfiguration(); err != nil {
		m.validationError = err
	}

	return m
}

// Fetch resolves key, going to the upstream via perform only when the cache
// and the in-flight tracker cannot answer. Every call resolves to a value or
// a classified *FetchError; a caller whose context ends while waiting
// detaches without disturbing other callers attached to the same call.
func (m *Mediator) Fetch(ctx context.Context, key Key, perform PerformFunc) (Response, error) {
	start := time.Now()
	endpoint := key.Endpoint()

	if key.IsZero() || perform == nil {
		return Response{}, &FetchError{
			Type:      ErrorTypeValidation,
			Message:   "fetch requires a non-zero key and a perform function",
			Timestamp: time.Now(),
		}
	}

	var fetchID string
	if m.debugEnabled() && m.debug.FetchIDGen != nil {
		fetchID = m.debug.FetchIDGen()
	}

	m.metrics.RecordFetchStart(endpoint)
	defer m.metrics.RecordFetchEnd(endpoint)

	if resp, ok := m.cache.Get(key.String()); ok {
		m.metrics.RecordCacheHit(endpoint)
		m.metrics.RecordFetch(endpoint, resp.StatusCode, time.Since(start))
		m.logDebug(m.debug.LogCache, "cache hit", "fetchID", fetchID, "key", key.Fingerprint())
		return resp, nil
	}
	m.metrics.RecordCacheMiss(endpoint)
	m.logDebug(m.debug.LogCache, "cache miss", "fetchID", fetchID, "key", key.Fingerprint())

	call, leader := m.inflight.join(key.String())
	if leader {
		// The attempt loop runs on a context detached from this caller so
		// an issued call keeps serving followers after the leader leaves;
		// it is canceled once the last interested caller detaches.
		callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		call.cancel = cancel
		go m.run(callCtx, cancel, key, perform, fetchID)
	} else {
		m.metrics.RecordDedupJoin(endpoint)
		m.logDebug(m.debug.LogDedup, "joined in-flight fetch", "fetchID", fetchID, "key", key.Fingerprint())
	}

	resp, err := call.wait(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = m.newError(ErrorTypeCanceled, "fetch abandoned by caller", err, key, fetchID, 0, 0, time.Since(start))
			m.metrics.RecordError(ErrorTypeCanceled, endpoint)
		}
		m.metrics.RecordFetch(endpoint, 0, time.Since(start))
		return Response{}, err
	}

	m.metrics.RecordFetch(endpoint, resp.StatusCode, time.Since(start))
	m.logDebug(m.debug.LogFetches, "fetch resolved", "fetchID", fetchID, "endpoint", endpoint, "statusCode", resp.StatusCode, "duration", time.Since(start))
	return resp, nil
}

// Invalidate drops any cached response for key.
func (m *Mediator) Invalidate(key Key) {
	m.cache.Invalidate(key.String())
}

// run executes the attempt loop on behalf of everyone attached to the
// in-flight call, populates the cache on success and broadcasts the result.
func (m *Mediator) run(ctx context.Context, cancel context.CancelFunc, key Key, perform PerformFunc, fetchID string) {
	defer cancel()

	resp, err := m.attempt(ctx, key, perform, fetchID)

	if err == nil {
		m.cache.Set(key.String(), resp, m.cacheTTL)
		if mem, ok := m.cache.(*MemoryCache); ok {
			m.metrics.RecordCacheSize(m.target, mem.Len())
		}
	}

	m.inflight.complete(key.String(), resp, err)
}

func (m *Mediator) attempt(ctx context.Context, key Key, perform PerformFunc, fetchID string) (Response, error) {
	endpoint := key.Endpoint()
	start := time.Now()

	for attempt := 0; ; attempt++ {
		if !m.breaker.Allow() {
			m.metrics.RecordError(ErrorTypeCircuitOpen, endpoint)
			m.metrics.RecordCircuitBreakerState(m.target, m.breaker.State())
			m.logWarn(m.debug.LogCircuit, "circuit open, failing fast", "fetchID", fetchID, "endpoint", endpoint)
			return Response{}, m.newError(ErrorTypeCircuitOpen, "circuit breaker is open", nil, key, fetchID, attempt, 0, time.Since(start))
		}

		// Allow in half-open admits exactly one caller, so if the breaker is
		// half-open now, this caller holds the recovery probe.
		probe := m.breaker.State() == StateHalfOpen

		waitStart := time.Now()
		if err := m.limiter.Acquire(ctx); err != nil {
			if probe {
				m.breaker.ReleaseProbe()
			}
			m.metrics.RecordError(ErrorTypeCanceled, endpoint)
			return Response{}, m.newError(ErrorTypeCanceled, "canceled while waiting for a rate-limit slot", err, key, fetchID, attempt, 0, time.Since(start))
		}
		m.metrics.RecordRateLimiterWait(m.target, time.Since(waitStart))
		if sw, ok := m.limiter.(*SlidingWindowLimiter); ok {
			m.metrics.RecordRateLimiterOccupancy(m.target, sw.Occupancy())
		}

		if attempt > 0 {
			m.metrics.RecordRetry(endpoint, attempt)
			m.logInfo(m.debug.LogRetries, "retry attempt", "fetchID", fetchID, "attempt", attempt, "maxRetries", m.maxRetries)
		}

		resp, err := perform(ctx)

		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			// Caller abandonment says nothing about upstream health; leave
			// the breaker untouched.
			if probe {
				m.breaker.ReleaseProbe()
			}
			m.metrics.RecordError(ErrorTypeCanceled, endpoint)
			return Response{}, m.newError(ErrorTypeCanceled, "canceled during upstream call", err, key, fetchID, attempt, 0, time.Since(start))
		}

		if err != nil || isServerErrorStatus(resp.StatusCode) || isRateLimitedStatus(resp.StatusCode) {
			m.breaker.RecordFailure()
		} else {
			m.breaker.RecordSuccess()
		}
		m.metrics.RecordCircuitBreakerState(m.target, m.breaker.State())

		if err == nil && isRateLimitedStatus(resp.StatusCode) {
			// The upstream throttled us despite local accounting; mark the
			// window saturated so other callers queue instead of repeating
			// the rejection.
			m.limiter.Saturate()
			m.logWarn(m.debug.LogRateLimit, "upstream rate limited, saturating local window", "fetchID", fetchID, "endpoint", endpoint)
		}

		if err == nil && isSuccessStatus(resp.StatusCode) {
			return resp, nil
		}

		delay, retry := m.retryPolicy.ShouldRetry(resp, err, attempt)
		if retry {
			m.logInfo(m.debug.LogRetries, "scheduling retry", "fetchID", fetchID, "attempt", attempt+1, "backoff", delay)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				m.metrics.RecordError(ErrorTypeCanceled, endpoint)
				return Response{}, m.newError(ErrorTypeCanceled, "canceled during backoff", ctx.Err(), key, fetchID, attempt, 0, time.Since(start))
			}
		}

		terminal := m.terminalError(resp, err, key, fetchID, attempt, time.Since(start))
		m.metrics.RecordError(terminal.Type, endpoint)
		return Response{}, terminal
	}
}

// terminalError classifies a failure that will not be retried: transient
// classes wrap into RetriesExhausted, fatal classes surface directly.
func (m *Mediator) terminalError(resp Response, err error, key Key, fetchID string, attempt int, duration time.Duration) *FetchError {
	switch {
	case err != nil:
		cause := m.newError(ErrorTypeTransport, "upstream call failed", err, key, fetchID, attempt, 0, duration)
		return m.newError(ErrorTypeRetriesExhausted, "transient failure persisted past the retry budget", cause, key, fetchID, attempt, 0, duration)
	case isRateLimitedStatus(resp.StatusCode):
		cause := m.newError(ErrorTypeUpstreamRateLimited, "upstream rejected the call as rate limited", nil, key, fetchID, attempt, resp.StatusCode, duration)
		return m.newError(ErrorTypeRetriesExhausted, "transient failure persisted past the retry budget", cause, key, fetchID, attempt, resp.StatusCode, duration)
	case isServerErrorStatus(resp.StatusCode):
		cause := m.newError(ErrorTypeServer, "upstream server error", nil, key, fetchID, attempt, resp.StatusCode, duration)
		return m.newError(ErrorTypeRetriesExhausted, "transient failure persisted past the retry budget", cause, key, fetchID, attempt, resp.StatusCode, duration)
	case isClientErrorStatus(resp.StatusCode):
		return m.newError(ErrorTypeClient, "upstream rejected the request", nil, key, fetchID, attempt, resp.StatusCode, duration)
	default:
		return m.newError(ErrorTypeClient, "unexpected upstream status", nil, key, fetchID, attempt, resp.StatusCode, duration)
	}
}

func (m *Mediator) newError(errType, message string, cause error, key Key, fetchID string, attempt, statusCode int, duration time.Duration) *FetchError {
	return &FetchError{
		Type:       errType,
		Message:    message,
		Cause:      cause,
		Key:        key.String(),
		Endpoint:   key.Endpoint(),
		FetchID:    fetchID,
		Attempt:    attempt,
		MaxRetries: m.maxRetries,
		StatusCode: statusCode,
		Timestamp:  time.Now(),
		Duration:   duration,
	}
}

func (m *Mediator) debugEnabled() bool {
	return m.debug != nil && m.debug.Enabled && m.logger != nil
}

func (m *Mediator) logDebug(flag bool, msg string, keysAndValues ...interface{}) {
	if m.debugEnabled() && flag {
		m.logger.Debug(msg, keysAndValues...)
	}
}

func (m *Mediator) logInfo(flag bool, msg string, keysAndValues ...interface{}) {
	if m.debugEnabled() && flag {
		m.logger.Info(msg, keysAndValues...)
	}
}

func (m *Mediator) logWarn(flag bool, msg string, keysAndValues ...interface{}) {
	if m.debugEnabled() && flag {
		m.logger.Warn(msg, keysAndValues...)
	}
}

// IsValid reports whether configuration validation passed at construction.
func (m *Mediator) IsValid() bool {
	return m.validationError == nil
}

// ValidationError returns the construction-time validation error, if any.
func (m *Mediator) ValidationError() error {
	return m.validationError
}
