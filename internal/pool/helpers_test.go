package pool_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.alexhamlin.co/inflight/internal/pool"
)

var errBoom = errors.New("boom")

func makeIntKeys(n int) []int {
	keys := make([]int, n)
	for i := range keys {
		keys[i] = i
	}
	return keys
}

func identity(_ context.Context, x int) (int, error) {
	return x, nil
}

// failAt returns a factory that returns its input, or errBoom for the input
// equal to k.
func failAt(k int) pool.Factory[int, int] {
	return func(_ context.Context, x int) (int, error) {
		if x == k {
			return 0, errBoom
		}
		return x, nil
	}
}

// probe wraps factories to count their calls and track how many of them are
// executing at once.
type probe struct {
	calls    atomic.Int64
	inflight atomic.Int64
	peak     atomic.Int64
}

func (p *probe) wrap(f pool.Factory[int, int]) pool.Factory[int, int] {
	return func(ctx context.Context, x int) (int, error) {
		p.calls.Add(1)
		n := p.inflight.Add(1)
		defer p.inflight.Add(-1)
		for {
			peak := p.peak.Load()
			if n <= peak || p.peak.CompareAndSwap(peak, n) {
				break
			}
		}
		return f(ctx, x)
	}
}

// sleepy returns a factory that returns its input after sleeping for a random
// duration of at least 1ms and at most limit.
func sleepy(limit time.Duration) pool.Factory[int, int] {
	return func(_ context.Context, x int) (int, error) {
		time.Sleep(time.Millisecond + rand.N(limit-time.Millisecond+1))
		return x, nil
	}
}

// drain runs an engine in the foreground, returning every value until the run
// ends or the first error.
func drain[S, R any](e *pool.Engine[S, R]) ([]R, error) {
	var got []R
	for v, err := range e.All(context.Background()) {
		if err != nil {
			return got, err
		}
		got = append(got, v)
	}
	return got, nil
}
