package gerbang

import (
	"context"
	"sync"
)

// inflightCall is one outstanding fetch shared between a leader, which
// executes the call, and followers that joined while it was in flight. The
// outcome is broadcast to every attached waiter via the done channel.
type inflightCall struct {
	done   chan struct{}
	cancel context.CancelFunc

	mu      sync.Mutex
	resp    Response
	err     error
	waiters int
}

// inflightTracker deduplicates concurrent fetches by canonical key. The
// check-then-register in join is atomic: exactly one caller per key becomes
// the leader.
type inflightTracker struct {
	mu    sync.Mutex
	calls map[string]*inflightCall
}

func newInflightTracker() *inflightTracker {
	return &inflightTracker{
		calls: make(map[string]*inflightCall),
	}
}

// join attaches to the outstanding call for key, creating it when absent.
// The second return value reports whether the caller is the leader.
func (t *inflightTracker) join(key string) (*inflightCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if call, exists := t.calls[key]; exists {
		call.mu.Lock()
		call.waiters++
		call.mu.Unlock()
		return call, false
	}

	call := &inflightCall{
		done:    make(chan struct{}),
		waiters: 1,
	}
	t.calls[key] = call
	return call, true
}

// complete finalizes the call for key and releases every attached waiter
// with the same outcome. The key is removed immediately so a later fetch
// for it starts fresh.
func (t *inflightTracker) complete(key string, resp Response, err error) {
	t.mu.Lock()
	call, exists := t.calls[key]
	if exists {
		delete(t.calls, key)
	}
	t.mu.Unlock()

	if !exists {
		return
	}

	call.mu.Lock()
	call.resp = resp
	call.err = err
	call.mu.Unlock()
	close(call.done)
}

// len reports the number of outstanding keys.
func (t *inflightTracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// wait blocks until the call completes or ctx is done. A waiter that
// detaches does not disturb the others; when the last waiter detaches the
// call context is canceled so the work is not orphaned.
func (call *inflightCall) wait(ctx context.Context) (Response, error) {
	select {
	case <-call.done:
		call.mu.Lock()
		resp, err := call.resp, call.err
		call.mu.Unlock()
		if err != nil {
			return Response{}, err
		}
		return resp.clone(), nil
	case <-ctx.Done():
		call.detach()
		return Response{}, ctx.Err()
	}
}

func (call *inflightCall) detach() {
	call.mu.Lock()
	call.waiters--
	last := call.waiters == 0
	call.mu.Unlock()

	if last && call.cancel != nil {
		call.cancel()
	}
}
