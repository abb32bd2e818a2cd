package engine

import (
	"context"
	"testing"
	"time"

	"github.com/cloudkit/cloudkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_SucceedsFirstTry(t *testing.T) {
	t.Parallel()

	rq := New(context.Background(), Options{}, func(ctx context.Context, rq *Request[string]) cloudkit.EitherError[string] {
		return cloudkit.Ok("hello")
	})

	res := rq.Result(context.Background())
	require.True(t, res.IsOk())
	assert.Equal(t, "hello", res.Value)
	assert.Equal(t, cloudkit.StateDone, rq.State())
}

func TestRequest_RetriesRetryableErrorThenSucceeds(t *testing.T) {
	t.Parallel()

	attempts := 0
	rq := New(context.Background(), Options{BaseBackoff: time.Millisecond, MaxRetry: 3}, func(ctx context.Context, rq *Request[int]) cloudkit.EitherError[int] {
		attempts++
		if attempts < 3 {
			return cloudkit.Err[int](cloudkit.NewError(500, "server error"))
		}
		return cloudkit.Ok(42)
	})

	res := rq.Result(context.Background())
	require.True(t, res.IsOk())
	assert.Equal(t, 42, res.Value)
	assert.Equal(t, 3, attempts)
}

func TestRequest_NonRetryableErrorStopsImmediately(t *testing.T) {
	t.Parallel()

	attempts := 0
	rq := New(context.Background(), Options{BaseBackoff: time.Millisecond}, func(ctx context.Context, rq *Request[int]) cloudkit.EitherError[int] {
		attempts++
		return cloudkit.Err[int](cloudkit.NewError(cloudkit.CodeNotFound, "not found"))
	})

	res := rq.Result(context.Background())
	require.False(t, res.IsOk())
	assert.Equal(t, cloudkit.CodeNotFound, res.Err.Code)
	assert.Equal(t, 1, attempts)
}

func TestRequest_ExhaustsMaxRetry(t *testing.T) {
	t.Parallel()

	attempts := 0
	rq := New(context.Background(), Options{BaseBackoff: time.Millisecond, MaxRetry: 2}, func(ctx context.Context, rq *Request[int]) cloudkit.EitherError[int] {
		attempts++
		return cloudkit.Err[int](cloudkit.NewError(500, "always fails"))
	})

	res := rq.Result(context.Background())
	require.False(t, res.IsOk())
	assert.Equal(t, 3, attempts, "initial attempt plus MaxRetry retries")
	assert.Equal(t, cloudkit.StateDone, rq.State(), "a plain failure is Done(Err), not Cancelled")
}

func TestRequest_NonRetryableErrorLandsInStateDoneNotCancelled(t *testing.T) {
	t.Parallel()

	rq := New(context.Background(), Options{}, func(ctx context.Context, rq *Request[int]) cloudkit.EitherError[int] {
		return cloudkit.Err[int](cloudkit.NewError(cloudkit.CodeNotFound, "not found"))
	})

	res := rq.Result(context.Background())
	require.False(t, res.IsOk())
	assert.Equal(t, cloudkit.CodeNotFound, res.Err.Code)
	assert.Equal(t, cloudkit.StateDone, rq.State())
}

func TestRequest_ReauthRetriesOnAuthFailureWithoutCountingAgainstMaxRetry(t *testing.T) {
	t.Parallel()

	reauthCalls := 0
	attempts := 0
	opts := Options{
		BaseBackoff:       time.Millisecond,
		MaxRetry:          0,
		MaxReauthAttempts: 1,
		Reauth: func(ctx context.Context) error {
			reauthCalls++
			return nil
		},
	}
	rq := New(context.Background(), opts, func(ctx context.Context, rq *Request[int]) cloudkit.EitherError[int] {
		attempts++
		if attempts == 1 {
			return cloudkit.Err[int](cloudkit.NewError(401, "unauthorized"))
		}
		return cloudkit.Ok(7)
	})

	res := rq.Result(context.Background())
	require.True(t, res.IsOk())
	assert.Equal(t, 1, reauthCalls)
	assert.Equal(t, 2, attempts)
}

func TestRequest_CancelIsExactlyOnceAndCascades(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	rq := New(context.Background(), Options{}, func(ctx context.Context, rq *Request[int]) cloudkit.EitherError[int] {
		close(started)
		<-ctx.Done()
		return cloudkit.Err[int](cloudkit.NewError(cloudkit.CodeAborted, "cancelled"))
	})

	child := New(context.Background(), Options{}, func(ctx context.Context, rq *Request[int]) cloudkit.EitherError[int] {
		<-ctx.Done()
		return cloudkit.Err[int](cloudkit.NewError(cloudkit.CodeAborted, "cancelled"))
	})
	rq.AddChild(child)

	<-started
	rq.Cancel()
	rq.Cancel() // must be safe to call twice

	res := rq.Result(context.Background())
	assert.False(t, res.IsOk())
	assert.Equal(t, cloudkit.StateCancelled, rq.State())

	childRes := child.Result(context.Background())
	assert.False(t, childRes.IsOk(), "cancelling the parent must cascade to children")
}

func TestRequest_CallbackReflectsPauseAndAbort(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	rq := New(context.Background(), Options{}, func(ctx context.Context, rq *Request[int]) cloudkit.EitherError[int] {
		<-done
		return cloudkit.Ok(1)
	})

	cb := rq.Callback()
	assert.False(t, cb.Pause())
	rq.Pause()
	assert.True(t, cb.Pause())
	rq.Resume()
	assert.False(t, cb.Pause())

	assert.False(t, cb.Abort())
	close(done)
	rq.Result(context.Background())
	assert.True(t, cb.Abort())
}
