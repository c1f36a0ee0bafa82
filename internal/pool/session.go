package pool

import (
	"context"
	"iter"
)

// Session is a foreground consumer of an [Engine], in which the caller pulls
// each result explicitly. A Session is not safe for concurrent use.
type Session[S, R any] struct {
	e    *Engine[S, R]
	done bool
}

// Open begins a foreground session. It fails with [ErrBackgroundActive] if a
// background job owns the engine, or with [ErrIterationActive] if another
// session is open. Opening a session on an engine whose run has ended
// succeeds, and the session yields nothing.
func (e *Engine[S, R]) Open() (*Session[S, R], error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.completed:
		return &Session[S, R]{e: e, done: true}, nil
	case e.job != nil:
		return nil, ErrBackgroundActive
	case e.consuming:
		return nil, ErrIterationActive
	}
	e.consuming = true
	return &Session[S, R]{e: e}, nil
}

// Next blocks until a task completes and returns its value with ok == true,
// or returns ok == false once the run has ended.
//
// A task error that the engine's [ErrorHandler] does not absorb ends the run
// and the session, and Next returns it. If ctx ends while Next is waiting,
// Next returns ctx.Err() and the session remains open with all tasks still
// tracked.
func (s *Session[S, R]) Next(ctx context.Context) (value R, ok bool, err error) {
	if s.done {
		return
	}

	e := s.e
	e.mu.Lock()
	conflict := e.conflict
	e.mu.Unlock()
	if conflict {
		s.done = true
		return value, false, e.conclude(ErrStartedDuringIteration)
	}

	value, done, err := e.advance(ctx, nil)
	if done || (err != nil && e.Completed()) {
		s.done = true
	}
	return value, !done && err == nil, err
}

// Close ends the session. If the run has not already ended, Close ends it
// successfully without starting any further tasks. Close is idempotent.
func (s *Session[S, R]) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.e.conclude(nil)
}

// Abort ends the session and fails the run with err, if the run has not
// already ended. A nil err behaves like [Session.Close].
func (s *Session[S, R]) Abort(err error) error {
	if s.done {
		return nil
	}
	s.done = true
	return s.e.conclude(err)
}

// All returns an iterator over task results in completion order, through a
// session that lasts for the duration of the loop. Breaking out of the loop
// ends the run, as if by [Session.Close].
//
// If the session cannot be opened, or a step fails, the iterator yields the
// error once with a zero value and stops.
func (e *Engine[S, R]) All(ctx context.Context) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		var zero R
		s, err := e.Open()
		if err != nil {
			yield(zero, err)
			return
		}
		defer s.Close()

		for {
			value, ok, err := s.Next(ctx)
			if err != nil {
				yield(zero, err)
				return
			}
			if !ok || !yield(value, nil) {
				return
			}
		}
	}
}
