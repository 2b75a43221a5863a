package actorutil

import (
	"errors"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/primetalk/goio/io"
)

var ErrNilResult = errors.New("background task returned no result")

// SafeBackgroundTask wraps a blocking device call so that its errors
// end up as a message to the piped actor.
// The call runs on the caller's goroutine and is never abandoned: an actor
// issuing one handles nothing else until it returns, which keeps device
// access serial. The call itself must be bounded, device clients carry
// their own I/O timeout.
type SafeBackgroundTask[T any] struct {
	ctx       actor.Context
	fn        func() (*T, error)
	slowAfter time.Duration
	onSlow    func(time.Duration)
	recover   func(error) T
}

func NewBackgroundTask[T any](ctx actor.Context, fn func() (*T, error)) *SafeBackgroundTask[T] {
	return &SafeBackgroundTask[T]{
		ctx: ctx,
		fn:  fn,
	}
}

func NewBackgroundTaskNoError[T any](ctx actor.Context, fn func() *T) *SafeBackgroundTask[T] {
	return NewBackgroundTask(ctx, func() (*T, error) {
		return fn(), nil
	})
}

// MapBackgroundTask converts the result of bgt. Recover and the slow call
// hook are not carried over, set them on the mapped task.
func MapBackgroundTask[T, T2 any](bgt *SafeBackgroundTask[T], mapFn func(*T) *T2) *SafeBackgroundTask[T2] {
	return NewBackgroundTask(bgt.ctx, func() (*T2, error) {
		r, err := bgt.fn()
		if err != nil {
			return nil, err
		}
		return mapFn(r), nil
	})
}

// WarnAfter calls fn with the elapsed time when the call took longer than d.
// The outcome of the call is still the one reported.
func (t *SafeBackgroundTask[T]) WarnAfter(d time.Duration, fn func(time.Duration)) *SafeBackgroundTask[T] {
	t.slowAfter = d
	t.onSlow = fn
	return t
}

func (t *SafeBackgroundTask[T]) Recover(fn func(error) T) *SafeBackgroundTask[T] {
	t.recover = fn
	return t
}

// PipeTo runs the task and sends its value to pid. Without Recover a failed
// task sends nothing.
func (t *SafeBackgroundTask[T]) PipeTo(pid *actor.PID) {
	if value, ok := t.Run(); ok {
		t.ctx.Send(pid, value)
	}
}

// Run reports false when the task failed and there is no Recover.
func (t *SafeBackgroundTask[T]) Run() (T, bool) {
	start := time.Now()
	result := io.RunSync(io.Eval(func() (T, error) {
		var zero T
		r, err := t.fn()
		if err != nil {
			return zero, err
		}
		if r == nil {
			return zero, ErrNilResult
		}
		return *r, nil
	}))
	if elapsed := time.Since(start); t.onSlow != nil && t.slowAfter > 0 && elapsed > t.slowAfter {
		t.onSlow(elapsed)
	}
	if result.Error == nil {
		return result.Value, true
	}
	if t.recover == nil {
		var zero T
		return zero, false
	}
	return t.recover(result.Error), true
}
