package gerbang

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSlidingWindowLimiterUnderLimit(t *testing.T) {
	limiter := NewSlidingWindowLimiter(3, time.Second)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	}

	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Expected immediate grants under the limit, took %v", elapsed)
	}
	if occ := limiter.Occupancy(); occ != 3 {
		t.Errorf("Expected occupancy=3, got %d", occ)
	}
}

func TestSlidingWindowLimiterDelaysOverLimit(t *testing.T) {
	window := 200 * time.Millisecond
	limiter := NewSlidingWindowLimiter(2, window)

	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := limiter.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	}

	// Third acquisition must wait for the oldest grant to age out, never
	// getting rejected.
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if elapsed := time.Since(start); elapsed < window {
		t.Errorf("Expected third acquire to wait at least %v, took %v", window, elapsed)
	}
}

func TestSlidingWindowLimiterConcurrentScenario(t *testing.T) {
	window := 200 * time.Millisecond
	limiter := NewSlidingWindowLimiter(2, window)

	start := time.Now()
	var immediate int64
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			if time.Since(start) < window/2 {
				atomic.AddInt64(&immediate, 1)
			}
		}()
	}
	wg.Wait()

	if immediate != 2 {
		t.Errorf("Expected exactly 2 immediate grants, got %d", immediate)
	}
	if elapsed := time.Since(start); elapsed < window {
		t.Errorf("Expected total elapsed >= %v, got %v", window, elapsed)
	}
}

func TestSlidingWindowLimiterCancellation(t *testing.T) {
	limiter := NewSlidingWindowLimiter(1, time.Minute)

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := limiter.Acquire(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}

	// The canceled waiter must not be left in the queue.
	limiter.mu.Lock()
	queued := len(limiter.queue)
	limiter.mu.Unlock()
	if queued != 0 {
		t.Errorf("Expected empty waiter queue after cancellation, got %d", queued)
	}
}

func TestSlidingWindowLimiterSaturate(t *testing.T) {
	window := 150 * time.Millisecond
	limiter := NewSlidingWindowLimiter(5, window)

	limiter.Saturate()

	if occ := limiter.Occupancy(); occ != 5 {
		t.Errorf("Expected saturated occupancy=5, got %d", occ)
	}

	start := time.Now()
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < window {
		t.Errorf("Expected acquire after Saturate to wait %v, took %v", window, elapsed)
	}
}

func TestSlidingWindowLimiterWindowSlides(t *testing.T) {
	window := 100 * time.Millisecond
	limiter := NewSlidingWindowLimiter(2, window)

	limiter.Acquire(context.Background())
	limiter.Acquire(context.Background())

	time.Sleep(window + 20*time.Millisecond)

	if occ := limiter.Occupancy(); occ != 0 {
		t.Errorf("Expected grants to age out of the window, occupancy=%d", occ)
	}

	start := time.Now()
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Expected immediate grant after window slid, took %v", elapsed)
	}
}

func TestSlidingWindowLimiterFIFOOrder(t *testing.T) {
	window := 100 * time.Millisecond
	limiter := NewSlidingWindowLimiter(1, window)

	limiter.Acquire(context.Background())

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := limiter.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
		}(i)
		// Stagger arrivals so queue order is deterministic.
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	if len(order) != 3 {
		t.Fatalf("Expected 3 grants, got %d", len(order))
	}
	for i, n := range order {
		if n != i+1 {
			t.Errorf("Expected FIFO grant order, got %v", order)
			break
		}
	}
}

func TestNewSlidingWindowLimiterDefaults(t *testing.T) {
	limiter := NewSlidingWindowLimiter(0, 0)

	if limiter.limit != 60 {
		t.Errorf("Expected default limit=60, got %d", limiter.limit)
	}
	if limiter.window != time.Minute {
		t.Errorf("Expected default window=1m, got %v", limiter.window)
	}
}
