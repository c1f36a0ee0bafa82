package pool

import (
	"context"

	"go.alexhamlin.co/inflight/internal/catch"
	"go.alexhamlin.co/inflight/internal/lifecycle"
)

// advance is the single step that both consumption protocols repeat. It fills
// the pool, waits for at least one task to finish, and returns that task's
// value, or done == true once nothing remains to run.
//
// job identifies the background job driving the step, or is nil for a
// foreground session. A background step returns errStopped without touching
// the pool once the job has been stopped.
//
// A non-nil error either ends the run (a work error the handler did not
// absorb, a panic from the source, or a panic from lifecycle listeners) or,
// if the engine has not completed, reports that ctx ended while waiting.
func (e *Engine[S, R]) advance(ctx context.Context, job *lifecycle.Handle) (value R, done bool, err error) {
	for {
		var u *unit[S, R]
		u, err = e.claim(ctx, job)
		if perr, ok := err.(*PanicError); ok {
			return value, false, e.conclude(perr)
		}
		if err != nil {
			return value, false, err
		}
		if u == nil {
			return value, true, e.conclude(nil)
		}

		var v R
		if v, err = e.unwrap(u); err == nil {
			return v, false, nil
		}

		switch e.consult(err) {
		case ActionSkip:
			e.log.Verbosef("skipping failed task %v: %v", u.source, err)
			continue
		case ActionStop:
			e.log.Verbosef("stopping after failed task %v: %v", u.source, err)
			return value, true, e.conclude(nil)
		default:
			return value, false, e.conclude(err)
		}
	}
}

// claim refills the pool, waits for a finished unit, and removes it from all
// bookkeeping. It returns a nil unit if the run has nothing left in flight,
// and a [*PanicError] without waiting if the source panicked.
func (e *Engine[S, R]) claim(ctx context.Context, job *lifecycle.Handle) (*unit[S, R], error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if job != nil && (!e.allowed || e.job != job) {
		if e.job == job {
			e.job = nil
		}
		return nil, errStopped
	}
	if e.completed {
		return nil, nil
	}

	if err := e.refill(); err != nil {
		return nil, err
	}
	if e.running.Cardinality() == 0 {
		return nil, nil
	}

	for e.finished.Len() == 0 {
		e.mu.Unlock()
		select {
		case <-e.notify:
			e.mu.Lock()
		case <-ctx.Done():
			e.mu.Lock()
			return nil, ctx.Err()
		}
		if e.completed {
			return nil, nil // Torn down by another goroutine while we waited.
		}
	}

	u := e.finished.PopFront()
	e.running.Remove(u)
	e.claimed++
	return u, nil
}

// refill starts new units until the pool reaches the concurrency limit or the
// source is exhausted. It must be called with e.mu held. A panic from the
// source stops the refill and is returned as a [*PanicError]; the source is
// left for teardown to close.
func (e *Engine[S, R]) refill() error {
	for e.src != nil && e.running.Cardinality() < e.concurrency {
		var (
			d  Descriptor[S, R]
			ok bool
		)
		r := catch.DoOrExit(func() (struct{}, error) {
			d, ok = e.src.Next()
			return struct{}{}, nil
		})
		if r.Panicked() {
			return &PanicError{Value: r.Recovered(), Source: true}
		}
		if !ok {
			return nil
		}
		u := &unit[S, R]{source: d.Source}
		e.running.Add(u)
		e.pulled++
		go e.run(u, d.Factory)
	}
	return nil
}

// run executes a unit's factory, then records the unit as finished.
func (e *Engine[S, R]) run(u *unit[S, R], factory Factory[S, R]) {
	defer e.finish(u)
	u.result = catch.Goexit[R]()
	u.result = catch.DoOrExit(func() (R, error) {
		return factory(e.cfg.ctx, u.source)
	})
}

// finish moves a settled unit into the finished pool, unless the engine has
// stopped tracking it.
func (e *Engine[S, R]) finish(u *unit[S, R]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running.Contains(u) {
		return
	}
	e.finished.PushBack(u)
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// unwrap converts a claimed unit's captured result into a value or work error.
// Without panic-to-error conversion, a factory panic fails the run and then
// continues in the calling goroutine.
// Listener panics raised while failing the run are logged.
func (e *Engine[S, R]) unwrap(u *unit[S, R]) (R, error) {
	var zero R
	switch r := u.result; {
	case r.Goexited():
		return zero, ErrFactoryGoexit
	case r.Panicked():
		perr := &PanicError{Value: r.Recovered()}
		if e.cfg.panicToError {
			return zero, perr
		}
		if err := e.conclude(perr); err != nil && err != error(perr) {
			e.log.Printf("failing run before repeating factory panic: %v", err)
		}
		return r.Unwrap()
	default:
		return r.Unwrap()
	}
}

func (e *Engine[S, R]) consult(err error) Action {
	e.mu.Lock()
	h := e.handler
	e.mu.Unlock()
	if h == nil {
		return ActionDefault
	}
	return h(err, e, ReasonNext)
}
