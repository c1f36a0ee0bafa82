// Package delay provides sleeps that end early when their context does.
package delay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.alexhamlin.co/inflight/internal/lifecycle"
)

// ErrCanceled matches every error returned by this package when a delay's
// context ends before the delay elapses. The error also wraps the context's
// cause, typically [context.Canceled] or [context.DeadlineExceeded].
var ErrCanceled = errors.New("delay: canceled")

// newTimer supports instrumenting timers in unit tests.
var newTimer = time.NewTimer

// For blocks until d elapses or ctx ends, whichever happens first. It returns
// nil if d elapsed, or an error matching [ErrCanceled] otherwise.
//
// If ctx has already ended, For returns immediately without creating a timer.
// In all cases, any timer For created has been stopped by the time it returns.
func For(ctx context.Context, d time.Duration) error {
	if ctx.Err() != nil {
		return canceled(ctx)
	}

	timer := newTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return canceled(ctx)
	}
}

// After is like [For], but returns immediately with a handle that settles
// when the delay elapses or is canceled.
func After(ctx context.Context, d time.Duration) *lifecycle.Handle {
	if ctx.Err() != nil {
		return lifecycle.Rejected(canceled(ctx))
	}
	h := lifecycle.New()
	go func() {
		if err := For(ctx, d); err != nil {
			h.Reject(err)
		} else {
			h.Resolve()
		}
	}()
	return h
}

func canceled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx))
}
