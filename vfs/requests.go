package vfs

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/cloudkit/cloudkit"
	"github.com/hashicorp/go-multierror"
)

// trackable is the subset of cloudkit.Request[T] the bookkeeper needs;
// defined without the type parameter so requests of different result types
// can share one deque.
type trackable interface {
	Cancel()
	State() cloudkit.RequestState
}

// RequestBookkeeper holds every request the vfs has dispatched that a FUSE
// op might still need to cancel on release/forget, plus a background sweep
// that drops entries once they've reached a terminal state. Grounded on
// original_source/src/Utility/FileSystem.h's request-cleanup deque (kept
// briefly for late callers, swept by a background thread) and on the base
// spec's requirement that unmount cancels every outstanding request.
type RequestBookkeeper struct {
	mu       sync.Mutex
	inFlight *list.List // of trackable

	sweepEvery time.Duration
}

// NewRequestBookkeeper returns a bookkeeper that sweeps terminal requests
// every interval; a zero interval defaults to 30s.
func NewRequestBookkeeper(interval time.Duration) *RequestBookkeeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &RequestBookkeeper{
		inFlight:   list.New(),
		sweepEvery: interval,
	}
}

// Track adds a dispatched request to the bookkeeper.
func (b *RequestBookkeeper) Track(r trackable) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inFlight.PushBack(r)
}

// sweep removes every request that has reached Done or Cancelled.
func (b *RequestBookkeeper) sweep() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for e := b.inFlight.Front(); e != nil; {
		next := e.Next()
		r := e.Value.(trackable)
		switch r.State() {
		case cloudkit.StateDone, cloudkit.StateCancelled:
			b.inFlight.Remove(e)
		}
		e = next
	}
}

// CancelAll cancels every still-tracked request, e.g. on unmount, and
// returns an aggregated error if any Cancel call reports one via a panic
// recovery boundary (Cancel itself is synchronous and error-less, but
// adapters embedding cleanup hooks may still fail; kept generic).
func (b *RequestBookkeeper) CancelAll() error {
	b.mu.Lock()
	pending := make([]trackable, 0, b.inFlight.Len())
	for e := b.inFlight.Front(); e != nil; e = e.Next() {
		pending = append(pending, e.Value.(trackable))
	}
	b.inFlight.Init()
	b.mu.Unlock()

	var result *multierror.Error
	for _, r := range pending {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					result = multierror.Append(result, cloudkit.NewError(cloudkit.CodeInternal, "panic cancelling request"))
				}
			}()
			r.Cancel()
		}()
	}
	return result.ErrorOrNil()
}

// Len reports the number of currently tracked requests.
func (b *RequestBookkeeper) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight.Len()
}

// RunSweep is the ctx-aware loop registered as an actor in the mount's
// oklog/run.Group; it returns when ctx is cancelled.
func (b *RequestBookkeeper) RunSweep(ctx context.Context) error {
	ticker := time.NewTicker(b.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.sweep()
		}
	}
}
