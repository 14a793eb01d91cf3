package gerbang

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testKey(endpoint string) Key {
	return NewKey(endpoint, map[string]string{"name": "requests", "platform": "pypi"})
}

func okResponse(body string) Response {
	return Response{StatusCode: 200, Body: []byte(body)}
}

func newTestMediator(options ...Option) *Mediator {
	base := []Option{
		WithCache(64, time.Minute),
		WithRateLimit(1000, time.Second),
		WithRetry(2, time.Millisecond, 10*time.Millisecond),
	}
	return New(append(base, options...)...)
}

func TestFetchSuccess(t *testing.T) {
	m := newTestMediator()

	resp, err := m.Fetch(context.Background(), testKey("/packages"), func(ctx context.Context) (Response, error) {
		return okResponse("hello"), nil
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(resp.Body) != "hello" {
		t.Errorf("Expected body hello, got %q", resp.Body)
	}
}

func TestFetchValidatesArguments(t *testing.T) {
	m := newTestMediator()

	_, err := m.Fetch(context.Background(), Key{}, func(ctx context.Context) (Response, error) {
		return okResponse(""), nil
	})
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Type != ErrorTypeValidation {
		t.Errorf("Expected Validation error for zero key, got %v", err)
	}

	_, err = m.Fetch(context.Background(), testKey("/packages"), nil)
	if !errors.As(err, &fetchErr) || fetchErr.Type != ErrorTypeValidation {
		t.Errorf("Expected Validation error for nil perform, got %v", err)
	}
}

func TestFetchServesFromCache(t *testing.T) {
	m := newTestMediator()

	var calls int64
	perform := func(ctx context.Context) (Response, error) {
		atomic.AddInt64(&calls, 1)
		return okResponse("cached"), nil
	}

	key := testKey("/packages")
	if _, err := m.Fetch(context.Background(), key, perform); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	resp, err := m.Fetch(context.Background(), key, perform)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(resp.Body) != "cached" {
		t.Errorf("Expected cached body, got %q", resp.Body)
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("Expected exactly 1 upstream call, got %d", got)
	}
}

func TestFetchRefreshesAfterTTL(t *testing.T) {
	m := newTestMediator(WithCache(64, 40*time.Millisecond))

	var calls int64
	perform := func(ctx context.Context) (Response, error) {
		atomic.AddInt64(&calls, 1)
		return okResponse("v"), nil
	}

	key := testKey("/packages")
	m.Fetch(context.Background(), key, perform)
	time.Sleep(60 * time.Millisecond)
	m.Fetch(context.Background(), key, perform)

	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Errorf("Expected a fresh call after TTL expiry, got %d calls", got)
	}
}

func TestFetchInvalidate(t *testing.T) {
	m := newTestMediator()

	var calls int64
	perform := func(ctx context.Context) (Response, error) {
		atomic.AddInt64(&calls, 1)
		return okResponse("v"), nil
	}

	key := testKey("/packages")
	m.Fetch(context.Background(), key, perform)
	m.Invalidate(key)
	m.Fetch(context.Background(), key, perform)

	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Errorf("Expected a fresh call after Invalidate, got %d calls", got)
	}
}

func TestFetchCollapsesConcurrentCalls(t *testing.T) {
	m := newTestMediator()

	var calls int64
	release := make(chan struct{})
	perform := func(ctx context.Context) (Response, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return okResponse("shared"), nil
	}

	key := testKey("/packages")
	const waiters = 10

	var wg sync.WaitGroup
	results := make([]string, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := m.Fetch(context.Background(), key, perform)
			if err != nil {
				t.Errorf("Fetch() error = %v", err)
				return
			}
			results[i] = string(resp.Body)
		}(i)
	}

	// Let every goroutine join the in-flight call before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("Expected exactly 1 upstream call for %d concurrent fetches, got %d", waiters, got)
	}
	for i, body := range results {
		if body != "shared" {
			t.Errorf("Expected caller %d to receive the shared result, got %q", i, body)
		}
	}
}

func TestFetchConcurrentErrorBroadcast(t *testing.T) {
	m := newTestMediator(WithRetry(0, time.Millisecond, 10*time.Millisecond))

	release := make(chan struct{})
	perform := func(ctx context.Context) (Response, error) {
		<-release
		return Response{}, errors.New("connection reset")
	}

	key := testKey("/packages")
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Fetch(context.Background(), key, perform)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, ErrRetriesExhausted) {
			t.Errorf("Expected caller %d to see ErrRetriesExhausted, got %v", i, err)
		}
	}
}

func TestFetchRetriesTransientFailure(t *testing.T) {
	m := newTestMediator()

	var calls int64
	perform := func(ctx context.Context) (Response, error) {
		if atomic.AddInt64(&calls, 1) < 3 {
			return Response{StatusCode: 500}, nil
		}
		return okResponse("recovered"), nil
	}

	resp, err := m.Fetch(context.Background(), testKey("/packages"), perform)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(resp.Body) != "recovered" {
		t.Errorf("Expected recovered body, got %q", resp.Body)
	}
	if got := atomic.LoadInt64(&calls); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestFetchRetriesExhausted(t *testing.T) {
	m := newTestMediator(WithRetry(2, time.Millisecond, 5*time.Millisecond))

	var calls int64
	perform := func(ctx context.Context) (Response, error) {
		atomic.AddInt64(&calls, 1)
		return Response{StatusCode: 503}, nil
	}

	_, err := m.Fetch(context.Background(), testKey("/packages"), perform)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Expected ErrRetriesExhausted, got %v", err)
	}
	// 1 initial attempt + 2 retries.
	if got := atomic.LoadInt64(&calls); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected *FetchError, got %T", err)
	}
	var cause *FetchError
	if !errors.As(fetchErr.Cause, &cause) || cause.Type != ErrorTypeServer {
		t.Errorf("Expected Server cause inside RetriesExhausted, got %v", fetchErr.Cause)
	}
}

func TestFetchFatalClientErrorNotRetried(t *testing.T) {
	m := newTestMediator()

	var calls int64
	perform := func(ctx context.Context) (Response, error) {
		atomic.AddInt64(&calls, 1)
		return Response{StatusCode: 404}, nil
	}

	_, err := m.Fetch(context.Background(), testKey("/packages"), perform)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Type != ErrorTypeClient {
		t.Fatalf("Expected Client error, got %v", err)
	}
	if fetchErr.StatusCode != 404 {
		t.Errorf("Expected StatusCode=404, got %d", fetchErr.StatusCode)
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("Expected exactly 1 attempt for a 404, got %d", got)
	}
	if IsTransient(err) {
		t.Error("Expected client errors to be non-transient")
	}
}

func TestFetchFailsFastWhenCircuitOpen(t *testing.T) {
	m := newTestMediator(
		WithBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute}),
		WithRetry(0, time.Millisecond, 5*time.Millisecond),
	)

	var calls int64
	failing := func(ctx context.Context) (Response, error) {
		atomic.AddInt64(&calls, 1)
		return Response{}, errors.New("connection refused")
	}

	if _, err := m.Fetch(context.Background(), testKey("/packages"), failing); err == nil {
		t.Fatal("Expected failure to trip the breaker")
	}

	before := atomic.LoadInt64(&calls)
	_, err := m.Fetch(context.Background(), testKey("/versions"), failing)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Expected ErrCircuitOpen, got %v", err)
	}
	if got := atomic.LoadInt64(&calls); got != before {
		t.Errorf("Expected zero upstream attempts while open, got %d extra", got-before)
	}
}

func TestFetchUpstreamRateLimitSaturatesWindow(t *testing.T) {
	limiter := NewSlidingWindowLimiter(5, 200*time.Millisecond)
	m := newTestMediator(
		WithLimiter(limiter),
		WithRetry(0, time.Millisecond, 5*time.Millisecond),
	)

	perform := func(ctx context.Context) (Response, error) {
		return Response{StatusCode: 429}, nil
	}

	_, err := m.Fetch(context.Background(), testKey("/packages"), perform)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Expected ErrRetriesExhausted wrapping the 429, got %v", err)
	}
	if !errors.Is(err, ErrUpstreamRateLimited) {
		t.Errorf("Expected the 429 cause to surface via errors.Is, got %v", err)
	}
	if occ := limiter.Occupancy(); occ != limiter.limit {
		t.Errorf("Expected window saturated after upstream 429, occupancy=%d", occ)
	}
}

func TestFetchCallerCancellation(t *testing.T) {
	m := newTestMediator()

	started := make(chan struct{})
	perform := func(ctx context.Context) (Response, error) {
		close(started)
		<-ctx.Done()
		return Response{}, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := m.Fetch(ctx, testKey("/packages"), perform)
		errCh <- err
	}()

	<-started
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrCanceled) {
			t.Errorf("Expected ErrCanceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected cancellation to release the caller")
	}
}

func TestFetchFollowerCancelDoesNotDisturbLeader(t *testing.T) {
	m := newTestMediator()

	release := make(chan struct{})
	var calls int64
	perform := func(ctx context.Context) (Response, error) {
		atomic.AddInt64(&calls, 1)
		select {
		case <-release:
			return okResponse("done"), nil
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}

	key := testKey("/packages")

	leaderErr := make(chan error, 1)
	leaderBody := make(chan string, 1)
	go func() {
		resp, err := m.Fetch(context.Background(), key, perform)
		leaderErr <- err
		leaderBody <- string(resp.Body)
	}()

	// Follower joins then abandons.
	time.Sleep(30 * time.Millisecond)
	followerCtx, cancelFollower := context.WithCancel(context.Background())
	followerErr := make(chan error, 1)
	go func() {
		_, err := m.Fetch(followerCtx, key, perform)
		followerErr <- err
	}()
	time.Sleep(30 * time.Millisecond)
	cancelFollower()

	if err := <-followerErr; !errors.Is(err, ErrCanceled) {
		t.Errorf("Expected follower to see ErrCanceled, got %v", err)
	}

	close(release)
	if err := <-leaderErr; err != nil {
		t.Fatalf("Expected leader to complete, got %v", err)
	}
	if body := <-leaderBody; body != "done" {
		t.Errorf("Expected leader to receive the result, got %q", body)
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("Expected 1 upstream call, got %d", got)
	}
}

func TestFetchCallSurvivesLeaderCancel(t *testing.T) {
	m := newTestMediator()

	release := make(chan struct{})
	var calls int64
	perform := func(ctx context.Context) (Response, error) {
		atomic.AddInt64(&calls, 1)
		select {
		case <-release:
			return okResponse("survived"), nil
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}

	key := testKey("/packages")

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := m.Fetch(leaderCtx, key, perform)
		leaderErr <- err
	}()

	time.Sleep(30 * time.Millisecond)
	followerResp := make(chan Response, 1)
	followerErrCh := make(chan error, 1)
	go func() {
		resp, err := m.Fetch(context.Background(), key, perform)
		followerResp <- resp
		followerErrCh <- err
	}()
	time.Sleep(30 * time.Millisecond)

	// The first caller leaves; the call keeps running for the follower.
	cancelLeader()
	if err := <-leaderErr; !errors.Is(err, ErrCanceled) {
		t.Fatalf("Expected leader to see ErrCanceled, got %v", err)
	}

	close(release)
	resp := <-followerResp
	if err := <-followerErrCh; err != nil {
		t.Fatalf("Expected follower to complete, got %v", err)
	}
	if string(resp.Body) != "survived" {
		t.Errorf("Expected follower to receive the result, got %q", resp.Body)
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("Expected 1 upstream call, got %d", got)
	}
}

func TestFetchKeepsRequestsWithEmbeddedSeparatorsApart(t *testing.T) {
	m := newTestMediator()

	k1 := NewKey("pkg", map[string]string{"a": "1&b=2"})
	k2 := NewKey("pkg", map[string]string{"a": "1", "b": "2"})

	resp, err := m.Fetch(context.Background(), k1, func(ctx context.Context) (Response, error) {
		return okResponse("first"), nil
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(resp.Body) != "first" {
		t.Fatalf("Expected first, got %q", resp.Body)
	}

	// The second request is a different resource and must not be served the
	// first one's cached body.
	resp, err = m.Fetch(context.Background(), k2, func(ctx context.Context) (Response, error) {
		return okResponse("second"), nil
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(resp.Body) != "second" {
		t.Errorf("Expected second, got %q", resp.Body)
	}
}

func TestFetchCancellationDoesNotTripBreaker(t *testing.T) {
	m := newTestMediator(WithBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute}))

	abandoned := func(ctx context.Context) (Response, error) {
		<-ctx.Done()
		return Response{}, ctx.Err()
	}

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		m.Fetch(ctx, NewKey("abandoned", map[string]string{"n": string(rune('a' + i))}), abandoned)
		cancel()
	}

	// Give the detached attempt goroutines time to observe the cancellation.
	time.Sleep(100 * time.Millisecond)

	if m.breaker.State() != StateClosed {
		t.Fatalf("Expected abandoned fetches to leave the breaker closed, got %v", m.breaker.State())
	}

	resp, err := m.Fetch(context.Background(), testKey("/healthy"), func(ctx context.Context) (Response, error) {
		return okResponse("ok"), nil
	})
	if err != nil {
		t.Fatalf("Expected healthy traffic to pass, got %v", err)
	}
	if string(resp.Body) != "ok" {
		t.Errorf("Expected ok, got %q", resp.Body)
	}
}

func TestFetchResultIsCached(t *testing.T) {
	m := newTestMediator()

	key := testKey("/packages")
	m.Fetch(context.Background(), key, func(ctx context.Context) (Response, error) {
		return okResponse("v1"), nil
	})

	resp, ok := m.cache.Get(key.String())
	if !ok {
		t.Fatal("Expected successful fetch to populate the cache")
	}
	if string(resp.Body) != "v1" {
		t.Errorf("Expected cached body v1, got %q", resp.Body)
	}
}

func TestFetchFailureIsNotCached(t *testing.T) {
	m := newTestMediator(WithRetry(0, time.Millisecond, 5*time.Millisecond))

	key := testKey("/packages")
	m.Fetch(context.Background(), key, func(ctx context.Context) (Response, error) {
		return Response{StatusCode: 500}, nil
	})

	if _, ok := m.cache.Get(key.String()); ok {
		t.Error("Expected failed fetch to leave the cache empty")
	}
}

func TestNewDefaults(t *testing.T) {
	m := New()

	if !m.IsValid() {
		t.Fatalf("Expected default configuration to validate, got %v", m.ValidationError())
	}
	if m.target != "default" {
		t.Errorf("Expected default target, got %q", m.target)
	}
	if m.maxRetries != 3 {
		t.Errorf("Expected default maxRetries=3, got %d", m.maxRetries)
	}
	if m.retryPolicy == nil {
		t.Error("Expected a default retry policy")
	}
}
