package pool

import (
	"context"
	"iter"
	"math"
)

// Factory turns a source value into a result. The engine calls each factory
// in its own goroutine.
type Factory[S, R any] func(ctx context.Context, src S) (R, error)

// Descriptor is a source value along with the factory that handles it.
type Descriptor[S, R any] struct {
	Source  S
	Factory Factory[S, R]
}

// Source is a cursor over task descriptors, owned exclusively by the [Engine]
// it is given to.
//
// Next returns the next descriptor, or false once the source is exhausted.
// After returning false, every later call must also return false. Close
// releases any resources held by the source; the engine calls it exactly once.
//
// The engine calls Next while holding its internal lock, so implementations
// must not call back into the engine. If Next panics, the engine fails the run
// with a [*PanicError] and pulls nothing further.
type Source[S, R any] interface {
	Next() (Descriptor[S, R], bool)
	Close()
}

// ForRange creates an engine over the integers from start (inclusive) toward
// end (exclusive), advancing by step. The step is not validated: a zero step,
// or one pointing away from end, produces an infinite sequence.
func ForRange[R any](concurrency, start, end, step int, factory Factory[int, R], opts ...Option) (*Engine[int, R], error) {
	return New(concurrency, Source[int, R](&rangeSource[R]{
		next:    start,
		end:     end,
		step:    step,
		factory: factory,
	}), opts...)
}

// ForEach creates an engine over the values produced by items, which may be
// infinite. The engine pulls values from items only as capacity allows, and
// stops the sequence when the run ends.
func ForEach[S, R any](concurrency int, items iter.Seq[S], factory Factory[S, R], opts ...Option) (*Engine[S, R], error) {
	next, stop := iter.Pull(items)
	return New(concurrency, Source[S, R](&seqSource[S, R]{
		next:    next,
		stop:    stop,
		factory: factory,
	}), opts...)
}

type rangeSource[R any] struct {
	next, end, step int
	done            bool
	factory         Factory[int, R]
}

func (s *rangeSource[R]) Next() (d Descriptor[int, R], ok bool) {
	if s.done || s.next >= s.end {
		s.done = true
		return
	}
	d = Descriptor[int, R]{Source: s.next, Factory: s.factory}
	if wraps(s.next, s.step) {
		s.done = true
	} else {
		s.next += s.step
	}
	return d, true
}

func (s *rangeSource[R]) Close() { s.done = true }

// wraps reports whether n+step would overflow an int.
func wraps(n, step int) bool {
	return (step > 0 && n > math.MaxInt-step) || (step < 0 && n < math.MinInt-step)
}

type seqSource[S, R any] struct {
	next    func() (S, bool)
	stop    func()
	factory Factory[S, R]
}

func (s *seqSource[S, R]) Next() (d Descriptor[S, R], ok bool) {
	v, ok := s.next()
	if !ok {
		return
	}
	return Descriptor[S, R]{Source: v, Factory: s.factory}, true
}

func (s *seqSource[S, R]) Close() { s.stop() }
