package service

import (
	"context"
	"sync"
	"time"
)

// inFlightRequest tracks a single upstream request that multiple callers may
// wait for.
type inFlightRequest[T any] struct {
	mu      sync.Mutex
	result  T
	err     error
	done    bool
	waiters []chan struct{}
}

// requestCoalescer prevents duplicate in-flight upstream calls by letting
// concurrent requests for the same key share one fetch. Two calls with
// identical normalized parameters inside the TTL window therefore cause at
// most one upstream HTTP call even before the cache is populated.
type requestCoalescer[T any] struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightRequest[T]
	timeout  time.Duration
}

func newRequestCoalescer[T any](timeout time.Duration) *requestCoalescer[T] {
	return &requestCoalescer[T]{
		inFlight: make(map[string]*inFlightRequest[T]),
		timeout:  timeout,
	}
}

// GetOrDo checks if a request for key is already in-flight. If yes, waits for
// its result; if no, executes fn and registers the request. Respects context
// cancellation and the coalescer timeout to prevent indefinite blocking.
func (rc *requestCoalescer[T]) GetOrDo(ctx context.Context, key string, fn func() (T, error)) (T, bool, error) {
	var zero T

	rc.mu.Lock()
	req, exists := rc.inFlight[key]
	if exists {
		notify := make(chan struct{})
		req.mu.Lock()
		if req.done {
			result, err := req.result, req.err
			req.mu.Unlock()
			rc.mu.Unlock()
			if err != nil {
				return zero, true, err
			}
			return result, true, nil
		}
		req.waiters = append(req.waiters, notify)
		req.mu.Unlock()
		rc.mu.Unlock()

		timer := time.NewTimer(rc.timeout)
		defer timer.Stop()
		select {
		case <-notify:
			req.mu.Lock()
			result, err := req.result, req.err
			req.mu.Unlock()
			if err != nil {
				return zero, true, err
			}
			return result, true, nil
		case <-ctx.Done():
			return zero, true, ctx.Err()
		case <-timer.C:
			return zero, true, context.DeadlineExceeded
		}
	}

	req = &inFlightRequest[T]{}
	rc.inFlight[key] = req
	rc.mu.Unlock()

	result, err := fn()

	rc.mu.Lock()
	delete(rc.inFlight, key)
	rc.mu.Unlock()

	req.mu.Lock()
	req.result = result
	req.err = err
	req.done = true
	waiters := req.waiters
	req.waiters = nil
	req.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}

	if err != nil {
		return zero, false, err
	}
	return result, false, nil
}
