// Package catch confines the effects of panics and [runtime.Goexit] calls made
// by user-supplied functions, so that an engine can decide how to surface them.
package catch

import (
	"runtime"
	"sync"
)

type exit uint8

const (
	exitReturn exit = iota // The zero Result captures a normal return.
	exitPanic
	exitGoexit
)

// Result captures the exit behavior of an isolated function. The zero Result
// behaves as if capturing the return of a zero T and nil error.
type Result[T any] struct {
	exit     exit
	value    T
	err      error
	panicval any
}

// Do runs fn in an independent goroutine and captures its exit behavior,
// isolating the caller from any panic or [runtime.Goexit].
func Do[T any](fn func() (T, error)) (r Result[T]) {
	r = Goexit[T]()
	var wg sync.WaitGroup
	wg.Go(func() { r = DoOrExit(fn) })
	wg.Wait()
	return
}

// DoOrExit runs fn in the current goroutine and captures a return or panic.
// Unlike [Do], it propagates [runtime.Goexit] without returning. Callers that
// must observe a Goexit should store [Goexit] before calling DoOrExit and
// overwrite it with the return value, as in:
//
//	r := catch.Goexit[T]()
//	defer func() { finish(r) }()
//	r = catch.DoOrExit(fn)
func DoOrExit[T any](fn func() (T, error)) (r Result[T]) {
	returned := false
	defer func() {
		if !returned {
			r = Panic[T](recover())
		}
	}()
	r.value, r.err = fn()
	returned = true
	return
}

// Return constructs a synthetic result that captures "return value, err".
func Return[T any](value T, err error) Result[T] {
	return Result[T]{exit: exitReturn, value: value, err: err}
}

// Panic constructs a synthetic result that captures "panic(panicval)".
func Panic[T any](panicval any) Result[T] {
	return Result[T]{exit: exitPanic, panicval: panicval}
}

// Goexit constructs a synthetic result that captures [runtime.Goexit].
func Goexit[T any]() Result[T] {
	return Result[T]{exit: exitGoexit}
}

// Unwrap propagates the captured result to the current goroutine:
// returning its values, panicking, or calling [runtime.Goexit].
// It is guaranteed to return if and only if [Result.Returned] is true.
func (r Result[T]) Unwrap() (T, error) {
	switch r.exit {
	case exitPanic:
		panic(r.panicval)
	case exitGoexit:
		runtime.Goexit()
		panic("continued after runtime.Goexit")
	default:
		return r.value, r.err
	}
}

// Returned is true if this result captures a normal return.
func (r Result[T]) Returned() bool { return r.exit == exitReturn }

// Panicked is true if this result captures a panic.
func (r Result[T]) Panicked() bool { return r.exit == exitPanic }

// Goexited is true if this result captures [runtime.Goexit].
func (r Result[T]) Goexited() bool { return r.exit == exitGoexit }

// Recovered returns any panic value captured by this result.
//
// If the GODEBUG panicnil=1 setting is enabled, a nil Recovered value may
// represent a true "panic(nil)". [Result.Panicked] distinguishes nil panics
// from non-panic results.
func (r Result[T]) Recovered() any {
	return r.panicval
}
