package pool

import (
	"context"
	"errors"

	"go.alexhamlin.co/inflight/internal/lifecycle"
)

// Start drives the engine from a background goroutine until [Engine.Stop] is
// called or the run ends, discarding results as they complete. It returns a
// handle that settles when the background loop exits, with the run's error if
// the run failed. Start never blocks.
//
//   - If a background job is already running, Start returns its handle, and
//     cancels the effect of any prior call to [Engine.Stop].
//   - If the run has already ended, Start returns a resolved handle.
//   - If a foreground [Session] is open, Start returns a handle rejected with
//     [ErrIterationActive], and the session's next step fails with
//     [ErrStartedDuringIteration].
//
// Because results are discarded, a background run with a [Factory] that
// panics crashes the program unless the engine was created with
// [WithPanicToError].
func (e *Engine[S, R]) Start() *lifecycle.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.consuming:
		e.conflict = true
		return lifecycle.Rejected(ErrIterationActive)
	case e.completed:
		return lifecycle.Resolved()
	case e.job != nil:
		e.allowed = true
		return e.job
	}

	job := lifecycle.New()
	e.job = job
	e.allowed = true
	e.log.Verbosef("starting in the background with concurrency %d", e.concurrency)
	go e.drive(job)
	return job
}

// Stop prevents a background job from advancing the run any further, without
// interrupting tasks in flight, and returns the handle for that job. The
// handle settles once the job finishes its current step. Tasks still in
// flight remain tracked, and a later call to [Engine.Start] resumes the run
// exactly where it left off.
//
// If no background job is running, Stop returns a resolved handle.
func (e *Engine[S, R]) Stop() *lifecycle.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.allowed = false
	if e.job == nil {
		return lifecycle.Resolved()
	}
	e.log.Verbosef("stopping background job")
	return e.job
}

func (e *Engine[S, R]) drive(job *lifecycle.Handle) {
	var err error
	for {
		var done bool
		_, done, err = e.advance(context.Background(), job)
		if done || err != nil {
			break
		}
	}

	e.mu.Lock()
	if e.job == job {
		e.job = nil
	}
	e.mu.Unlock()

	if err != nil && !errors.Is(err, errStopped) {
		job.Reject(err)
		return
	}
	job.Resolve()
}
