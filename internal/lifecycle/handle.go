// Package lifecycle provides a single-resolution completion signal that any
// number of goroutines can observe.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"go.alexhamlin.co/inflight/internal/catch"
)

// ErrNilRejection is the error that a [Handle] settles with when rejected with
// a nil error.
var ErrNilRejection = errors.New("lifecycle: rejected with nil error")

// ListenerPanicError reports a panic raised by a listener registered with
// [Handle.OnSettle].
type ListenerPanicError struct {
	Value any
}

func (e *ListenerPanicError) Error() string {
	return fmt.Sprintf("lifecycle: settle listener panicked: %v", e.Value)
}

// Handle is a success or failure signal that settles exactly once. Every
// settlement attempt after the first is a no-op.
//
// Observers either wait on the handle through [Handle.Done] and
// [Handle.Wait], which never consume the signal, or register listeners with
// [Handle.OnSettle] that run synchronously during settlement.
type Handle struct {
	done chan struct{}

	mu        sync.Mutex
	settled   bool
	err       error
	listeners []func(error)
}

// New returns an unsettled handle.
func New() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Resolved returns a handle that has already settled successfully.
func Resolved() *Handle {
	h := New()
	h.Resolve()
	return h
}

// Rejected returns a handle that has already settled with err.
func Rejected(err error) *Handle {
	h := New()
	h.Reject(err)
	return h
}

// Done returns a channel that is closed when the handle settles.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Settled reports whether the handle has settled.
func (h *Handle) Settled() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Err returns the error that the handle settled with, or nil if it resolved
// successfully or has not yet settled.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Wait blocks until the handle settles and returns its error, or returns
// ctx.Err() if ctx ends first.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnSettle registers fn to be called with the handle's error when it settles.
// If the handle has already settled, OnSettle calls fn immediately in the
// calling goroutine.
func (h *Handle) OnSettle(fn func(error)) {
	h.mu.Lock()
	if !h.settled {
		h.listeners = append(h.listeners, fn)
		h.mu.Unlock()
		return
	}
	err := h.err
	h.mu.Unlock()
	fn(err)
}

// Resolve settles the handle successfully if it has not already settled.
//
// The returned error aggregates a [*ListenerPanicError] for every listener
// that panicked while being notified. It says nothing about whether this call
// settled the handle.
func (h *Handle) Resolve() error {
	return h.settle(nil)
}

// Reject settles the handle with err if it has not already settled. A nil err
// is replaced with [ErrNilRejection]. The returned error is as for
// [Handle.Resolve].
func (h *Handle) Reject(err error) error {
	if err == nil {
		err = ErrNilRejection
	}
	return h.settle(err)
}

func (h *Handle) settle(err error) error {
	h.mu.Lock()
	if h.settled {
		h.mu.Unlock()
		return nil
	}
	h.settled = true
	h.err = err
	listeners := h.listeners
	h.listeners = nil
	close(h.done)
	h.mu.Unlock()

	var merr *multierror.Error
	for _, fn := range listeners {
		r := catch.DoOrExit(func() (struct{}, error) {
			fn(err)
			return struct{}{}, nil
		})
		if r.Panicked() {
			merr = multierror.Append(merr, &ListenerPanicError{Value: r.Recovered()})
		}
	}
	return merr.ErrorOrNil()
}
