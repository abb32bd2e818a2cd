// Package engine implements cloudkit.Request[T]: the concrete async
// operation with retry/backoff, cancellation cascading to sub-requests, and
// the transport-callback plumbing every provider op is built on top of.
package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudkit/cloudkit"
)

// Op is the unit of work a Request drives: given a context (cancelled when
// the Request is cancelled) it returns a terminal result. Op is called
// again on a retryable failure, up to Options.MaxRetry times.
type Op[T any] func(ctx context.Context, rq *Request[T]) cloudkit.EitherError[T]

// ReauthFn is invoked once an Op's failure classifies as auth (typically a
// 401), before the Op is retried; it blocks until either a refreshed token
// is available or reauth itself fails terminally. Concrete providers wire
// this to auth.Manager.Reauth.
type ReauthFn func(ctx context.Context) error

// Options configures a Request's retry/backoff/reauth policy (§4.3/4.4).
type Options struct {
	MaxRetry          int
	MaxReauthAttempts int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	Reauth            ReauthFn
}

func (o Options) withDefaults() Options {
	if o.MaxRetry <= 0 {
		o.MaxRetry = 4
	}
	if o.MaxReauthAttempts <= 0 {
		o.MaxReauthAttempts = 1
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 250 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	return o
}

// cancellable is what a parent Request needs to cascade Cancel to a
// sub-request without knowing its result type.
type cancellable interface {
	Cancel()
}

// Request is the concrete implementation of cloudkit.Request[T]. Its
// Callback() method exposes a cloudkit.TransportCallback view of the same
// lifecycle state for handing directly to a RequestBuilder.Send call;
// Request itself can't implement TransportCallback directly since both
// interfaces need a "Pause" method with incompatible signatures (Request's
// is a caller-facing command, TransportCallback's is a transport-facing
// poll).
type Request[T any] struct {
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    cloudkit.RequestState
	children []cancellable

	pausedFlag atomic.Bool

	once   sync.Once
	result cloudkit.EitherError[T]
	done   chan struct{}

	downloadTotal, downloadNow atomic.Uint64
	uploadTotal, uploadNow     atomic.Uint64
}

// New starts op running in a background goroutine and returns immediately;
// the caller observes completion via Result/Finish/State.
func New[T any](parent context.Context, opts Options, op Op[T]) *Request[T] {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(parent)

	rq := &Request[T]{
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		state:  cloudkit.StatePending,
		done:   make(chan struct{}),
	}

	go rq.run(op)
	return rq
}

func (rq *Request[T]) run(op Op[T]) {
	defer func() {
		if p := recover(); p != nil {
			rq.finish(cloudkit.Err[T](cloudkit.NewError(cloudkit.CodeInternal, fmt.Sprintf("panic: %v", p))))
		}
	}()
	rq.setState(cloudkit.StateRunning)

	var res cloudkit.EitherError[T]
	reauthUsed := 0

	for attempt := 0; ; attempt++ {
		if rq.ctx.Err() != nil {
			rq.finish(cloudkit.Err[T](cloudkit.NewError(cloudkit.CodeAborted, "cancelled")))
			return
		}

		res = op(rq.ctx, rq)
		if res.IsOk() {
			rq.finish(res)
			return
		}

		if res.Err.Kind() == cloudkit.KindAuth && rq.opts.Reauth != nil && reauthUsed < rq.opts.MaxReauthAttempts {
			reauthUsed++
			if err := rq.opts.Reauth(rq.ctx); err != nil {
				rq.finish(cloudkit.Err[T](cloudkit.NewError(cloudkit.CodeUnauthorized, err.Error())))
				return
			}
			attempt--
			continue // retry immediately after a successful reauth; doesn't count against MaxRetry
		}

		if !res.Err.Retryable() || attempt >= rq.opts.MaxRetry {
			rq.finish(res)
			return
		}

		if !rq.sleepBackoff(attempt) {
			rq.finish(cloudkit.Err[T](cloudkit.NewError(cloudkit.CodeAborted, "cancelled during backoff")))
			return
		}
	}
}

// sleepBackoff waits an exponential-with-jitter interval, or returns false
// immediately if the request is cancelled first.
func (rq *Request[T]) sleepBackoff(attempt int) bool {
	backoff := time.Duration(float64(rq.opts.BaseBackoff) * math.Pow(2, float64(attempt)))
	if backoff > rq.opts.MaxBackoff {
		backoff = rq.opts.MaxBackoff
	}
	jitter := time.Duration(rand.Int64N(int64(backoff)/2 + 1))
	wait := backoff/2 + jitter

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-rq.ctx.Done():
		return false
	}
}

func (rq *Request[T]) finish(res cloudkit.EitherError[T]) {
	rq.once.Do(func() {
		rq.result = res
		if !res.IsOk() && res.Err.Code == cloudkit.CodeAborted {
			rq.setState(cloudkit.StateCancelled)
		} else {
			rq.setState(cloudkit.StateDone)
		}
		close(rq.done)
	})
}

func (rq *Request[T]) setState(s cloudkit.RequestState) {
	rq.mu.Lock()
	rq.state = s
	rq.mu.Unlock()
}

// Result blocks until the request finishes or ctx is cancelled first, in
// which case a cancelled Error is returned without affecting the
// underlying request's own lifecycle.
func (rq *Request[T]) Result(ctx context.Context) cloudkit.EitherError[T] {
	select {
	case <-rq.done:
		return rq.result
	case <-ctx.Done():
		return cloudkit.Err[T](cloudkit.NewError(cloudkit.CodeAborted, "caller context done"))
	}
}

// Finish blocks until the request reaches a terminal state, discarding the
// result; used for sub-request composition ordering.
func (rq *Request[T]) Finish(ctx context.Context) {
	select {
	case <-rq.done:
	case <-ctx.Done():
	}
}

// Cancel transitions the request and every registered child to Cancelled.
func (rq *Request[T]) Cancel() {
	rq.mu.Lock()
	rq.state = cloudkit.StateCancelled
	children := rq.children
	rq.mu.Unlock()

	rq.cancel()
	for _, c := range children {
		c.Cancel()
	}
	rq.finish(cloudkit.Err[T](cloudkit.NewError(cloudkit.CodeAborted, "cancelled")))
}

// Pause requests transport-level backpressure; body I/O stalls until
// Resume, polled through Callback().Pause().
func (rq *Request[T]) Pause() { rq.pausedFlag.Store(true) }

// Resume clears the pause flag set by Pause.
func (rq *Request[T]) Resume() { rq.pausedFlag.Store(false) }

// State returns a coherent lifecycle snapshot.
func (rq *Request[T]) State() cloudkit.RequestState {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.state
}

// AddChild registers a sub-request for cancellation cascading.
func (rq *Request[T]) AddChild(c cancellable) {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	rq.children = append(rq.children, c)
}

// DownloadProgress returns the last reported (total, now) download counts.
func (rq *Request[T]) DownloadProgress() (uint64, uint64) {
	return rq.downloadTotal.Load(), rq.downloadNow.Load()
}

// UploadProgress returns the last reported (total, now) upload counts.
func (rq *Request[T]) UploadProgress() (uint64, uint64) {
	return rq.uploadTotal.Load(), rq.uploadNow.Load()
}

// Callback returns the cloudkit.TransportCallback view of this request for
// a single RequestBuilder.Send call.
func (rq *Request[T]) Callback() cloudkit.TransportCallback {
	return transportCallback[T]{rq}
}

// transportCallback adapts *Request[T]'s internal state to
// cloudkit.TransportCallback without colliding with Request's own
// caller-facing Pause()/Resume() methods.
type transportCallback[T any] struct {
	rq *Request[T]
}

func (c transportCallback[T]) IsSuccess(httpCode int, _ map[string]string) bool {
	return httpCode >= 200 && httpCode < 400
}

func (c transportCallback[T]) Abort() bool {
	c.rq.mu.Lock()
	defer c.rq.mu.Unlock()
	return c.rq.state == cloudkit.StateCancelled || c.rq.state == cloudkit.StateDone
}

func (c transportCallback[T]) Pause() bool {
	return c.rq.pausedFlag.Load()
}

func (c transportCallback[T]) ProgressDownload(total, now uint64) {
	c.rq.downloadTotal.Store(total)
	c.rq.downloadNow.Store(now)
}

func (c transportCallback[T]) ProgressUpload(total, now uint64) {
	c.rq.uploadTotal.Store(total)
	c.rq.uploadNow.Store(now)
}

var (
	_ cloudkit.Request[struct{}] = (*Request[struct{}])(nil)
	_ cloudkit.TransportCallback = transportCallback[struct{}]{}
)
