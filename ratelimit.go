package gerbang

import (
	"context"
	"sync"
	"time"
)

// Limiter gates outbound calls. Acquire blocks until a slot is available or
// the context is done; it never rejects. Saturate marks the current window
// as full, used when the upstream itself signals throttling so local callers
// queue instead of re-triggering the same rejection.
type Limiter interface {
	Acquire(ctx context.Context) error
	Saturate()
}

// SlidingWindowLimiter bounds calls to limit grants within any trailing
// window. Unlike a fixed window it cannot burst to 2x the limit across a
// boundary, which matters when the upstream enforces true per-minute quotas.
// Waiters are granted slots in arrival order.
type SlidingWindowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	grants []time.Time // ascending timestamps of slots charged to the window
	queue  []*limiterWaiter
}

type limiterWaiter struct {
	ready   chan struct{}
	granted bool
}

// NewSlidingWindowLimiter creates a limiter allowing limit calls per window.
func NewSlidingWindowLimiter(limit int, window time.Duration) *SlidingWindowLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindowLimiter{
		limit:  limit,
		window: window,
	}
}

// Acquire blocks until a slot is charged to the window, honoring FIFO order
// among waiters. A canceled context returns ctx.Err() without consuming a
// slot, unless the slot was granted concurrently with cancellation, in which
// case the slot stays charged (overcounting is never allowed, undercounting
// by one on a lost race is).
func (l *SlidingWindowLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	l.prune(now)
	if len(l.queue) == 0 && len(l.grants) < l.limit {
		l.grants = append(l.grants, now)
		l.mu.Unlock()
		return nil
	}

	w := &limiterWaiter{ready: make(chan struct{})}
	l.queue = append(l.queue, w)
	wake := l.nextExpiry(now)
	l.mu.Unlock()

	timer := time.NewTimer(time.Until(wake))
	defer timer.Stop()

	for {
		select {
		case <-w.ready:
			return nil
		case <-ctx.Done():
			l.mu.Lock()
			granted := w.granted
			if !granted {
				l.dequeue(w)
			}
			l.mu.Unlock()
			return ctx.Err()
		case <-timer.C:
			l.mu.Lock()
			now := time.Now()
			l.prune(now)
			l.dispatch(now)
			if w.granted {
				l.mu.Unlock()
				return nil
			}
			wake := l.nextExpiry(now)
			l.mu.Unlock()
			timer.Reset(time.Until(wake))
		}
	}
}

// Saturate fills the remainder of the current window so subsequent Acquire
// calls wait for it to slide.
func (l *SlidingWindowLimiter) Saturate() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.prune(now)
	for len(l.grants) < l.limit {
		l.grants = append(l.grants, now)
	}
}

// Occupancy returns the number of slots charged to the trailing window.
func (l *SlidingWindowLimiter) Occupancy() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(time.Now())
	return len(l.grants)
}

// prune drops grants that aged out of the trailing window. Callers hold mu.
func (l *SlidingWindowLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.grants) && !l.grants[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.grants = append(l.grants[:0], l.grants[i:]...)
	}
}

// dispatch hands freed slots to waiters in arrival order. Callers hold mu.
func (l *SlidingWindowLimiter) dispatch(now time.Time) {
	for len(l.grants) < l.limit && len(l.queue) > 0 {
		w := l.queue[0]
		l.queue = l.queue[1:]
		w.granted = true
		close(w.ready)
		l.grants = append(l.grants, now)
	}
}

// nextExpiry returns when the oldest charged slot ages out. Callers hold mu.
func (l *SlidingWindowLimiter) nextExpiry(now time.Time) time.Time {
	if len(l.grants) == 0 {
		return now
	}
	return l.grants[0].Add(l.window)
}

func (l *SlidingWindowLimiter) dequeue(w *limiterWaiter) {
	for i, queued := range l.queue {
		if queued == w {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return
		}
	}
}
