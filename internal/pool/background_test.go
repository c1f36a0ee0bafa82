package pool_test

import (
	"context"
	"testing"
	"testing/synctest"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.alexhamlin.co/inflight/internal/pool"
)

func TestStartIdempotent(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		const count = 50
		var p probe
		e, _ := pool.ForRange(4, 0, count, 1, p.wrap(sleepy(10*time.Millisecond)))

		job := e.Start()
		assert.Same(t, job, e.Start())
		assert.True(t, e.Started())
		assert.Equal(t, pool.StateBackground, e.State())

		require.NoError(t, job.Wait(context.Background()))
		assert.EqualValues(t, count, p.calls.Load())
		assert.True(t, e.Completed())
		assert.False(t, e.Started())
		assert.True(t, e.Lifecycle().Settled())

		again := e.Start()
		assert.NotSame(t, job, again)
		assert.True(t, again.Settled())
		assert.NoError(t, again.Err())
		assert.EqualValues(t, count, p.calls.Load())
	})
}

func TestStopResume(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		const count, limit = 310, 7
		var p probe
		seen := mapset.NewSet[int]()
		e, _ := pool.ForRange(limit, 0, count, 1, p.wrap(func(_ context.Context, x int) (int, error) {
			time.Sleep(time.Duration(1+x%5) * time.Millisecond)
			seen.Add(x)
			return x, nil
		}))

		first := e.Start()
		time.Sleep(40 * time.Millisecond)
		stop := e.Stop()
		assert.Same(t, first, stop)
		require.NoError(t, stop.Wait(context.Background()))

		assert.False(t, e.Started())
		assert.False(t, e.Completed())
		assert.Equal(t, pool.StateIdle, e.State())

		stats := e.Stats()
		assert.Greater(t, stats.Pulled, uint64(0))
		assert.Less(t, stats.Pulled, uint64(count))

		// Tasks already in flight finish, but nothing new starts.
		time.Sleep(time.Second)
		after := e.Stats()
		assert.Equal(t, stats.Pulled, after.Pulled)
		assert.Equal(t, stats.Claimed, after.Claimed)
		assert.Equal(t, after.Running, after.Finished)

		second := e.Start()
		assert.NotSame(t, first, second)
		require.NoError(t, second.Wait(context.Background()))

		assert.True(t, e.Completed())
		assert.EqualValues(t, count, p.calls.Load())
		assert.True(t, mapset.NewSet(makeIntKeys(count)...).Equal(seen))
		assert.Equal(t, pool.Stats{Pulled: count, Claimed: count}, e.Stats())
	})
}

func TestStopResumeForeground(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		const count = 40
		e, _ := pool.ForRange(3, 0, count, 1, sleepy(5*time.Millisecond))

		e.Start()
		_, err := e.Open()
		assert.ErrorIs(t, err, pool.ErrBackgroundActive)

		time.Sleep(10 * time.Millisecond)
		require.NoError(t, e.Stop().Wait(context.Background()))
		claimed := e.Stats().Claimed

		got, err := drain(e)
		require.NoError(t, err)
		assert.Len(t, got, count-int(claimed))
		assert.EqualValues(t, count, e.Stats().Claimed)
	})
}

func TestStopWithoutJob(t *testing.T) {
	e, _ := pool.ForRange(1, 0, 10, 1, identity)
	h := e.Stop()
	assert.True(t, h.Settled())
	assert.NoError(t, h.Err())
	assert.Equal(t, pool.StateIdle, e.State())
	assert.Zero(t, e.Stats().Pulled)
}

func TestBackgroundFailure(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		e, _ := pool.ForRange(4, 0, 100, 1, failAt(50))
		job := e.Start()

		assert.ErrorIs(t, job.Wait(context.Background()), errBoom)
		assert.True(t, e.Failed())
		assert.ErrorIs(t, e.Lifecycle().Err(), errBoom)
		assert.Less(t, e.Stats().Pulled, uint64(100))
	})
}

func TestBackgroundErrorHandler(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var p probe
		e, _ := pool.ForRange(1, 0, 100, 1, p.wrap(failAt(10)))
		e.SetErrorHandler(func(error, *pool.Engine[int, int], pool.Reason) pool.Action {
			return pool.ActionStop
		})

		require.NoError(t, e.StartLifecycle().Wait(context.Background()))
		assert.True(t, e.Completed())
		assert.False(t, e.Failed())
		assert.EqualValues(t, 11, p.calls.Load())
	})
}

func TestBackgroundPanicToError(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		e, _ := pool.ForRange(2, 0, 10, 1, func(_ context.Context, x int) (int, error) {
			if x == 3 {
				panic("background explosion")
			}
			return x, nil
		}, pool.WithPanicToError(true))

		err := e.Start().Wait(context.Background())
		var perr *pool.PanicError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "background explosion", perr.Value)
	})
}
