// Package gerbang mediates between many concurrent callers and a remote,
// rate-limited package-metadata service. It turns bursty, duplicate and
// overlapping fetches into a bounded, well-ordered stream of outbound calls:
//
//   - TTL + LRU response cache with a fixed capacity
//   - Sliding-window rate limiting shared across callers (FIFO, blocking)
//   - Circuit breaker (closed / open / half-open, single recovery probe)
//   - Retries with exponential backoff + jitter, Retry-After aware
//   - In-flight de-duplication (concurrent identical fetches share one call)
//   - Prometheus metrics and pluggable structured logging
//
// The package never constructs URLs, attaches credentials or interprets
// response payloads; callers inject a PerformFunc that does the actual I/O
// and gerbang decides when (or whether) to invoke it.
//
// Typical usage:
//
//	med := gerbang.New(
//	    gerbang.WithCache(1024, 5*time.Minute),
//	    gerbang.WithRateLimit(60, time.Minute),
//	    gerbang.WithBreaker(gerbang.BreakerConfig{FailureThreshold: 5}),
//	    gerbang.WithRetry(3, 250*time.Millisecond, 10*time.Second),
//	)
//	key := gerbang.NewKey("package", map[string]string{"platform": "npm", "name": "left-pad"})
//	resp, err := med.Fetch(ctx, key, performCall)
//
// A Mediator is safe for concurrent use. Use a Registry when talking to more
// than one upstream target so each target gets its own limiter and breaker.
package gerbang
