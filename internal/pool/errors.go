package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConcurrency matches the [*ConcurrencyError] returned for
	// non-positive concurrency levels.
	ErrInvalidConcurrency = errors.New("pool: concurrency must be greater than zero")

	// ErrBackgroundActive is returned by [Engine.Open] while a background job
	// started by [Engine.Start] owns the engine.
	ErrBackgroundActive = errors.New("pool: cannot iterate while running in the background")

	// ErrIterationActive rejects the handle returned by [Engine.Start], and is
	// returned by [Engine.Open], while a foreground session is open.
	ErrIterationActive = errors.New("pool: foreground iteration already in progress")

	// ErrStartedDuringIteration is returned by the next [Session.Next] call
	// after [Engine.Start] was called while the session was open.
	ErrStartedDuringIteration = errors.New("pool: started in the background during foreground iteration")

	// ErrFactoryGoexit is the work error reported for a task whose factory
	// called [runtime.Goexit].
	ErrFactoryGoexit = errors.New("pool: factory executed runtime.Goexit")
)

// errStopped tells the background loop that [Engine.Stop] has taken effect.
var errStopped = errors.New("pool: background job stopped")

// ConcurrencyError reports an attempt to use a non-positive concurrency level.
type ConcurrencyError struct {
	Value int
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("pool: invalid concurrency %d: must be greater than zero", e.Value)
}

func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrInvalidConcurrency
}

func validateConcurrency(n int) error {
	if n <= 0 {
		return &ConcurrencyError{Value: n}
	}
	return nil
}

// PanicError reports a panic recovered by the engine. It is the work error
// for a task whose factory panicked, when the engine is configured with
// [WithPanicToError], and the error that fails the run when the engine's
// [Source] panics.
type PanicError struct {
	Value any
	// Source is true if the panic came from the engine's Source rather than
	// a Factory.
	Source bool
}

func (e *PanicError) Error() string {
	from := "factory"
	if e.Source {
		from = "source"
	}
	return fmt.Sprintf("pool: %s panicked: %v", from, e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
