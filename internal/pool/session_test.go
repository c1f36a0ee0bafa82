package pool_test

import (
	"context"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.alexhamlin.co/inflight/internal/pool"
)

func TestSessionExclusive(t *testing.T) {
	e, _ := pool.ForRange(2, 0, 5, 1, identity)
	assert.Equal(t, pool.StateIdle, e.State())

	s, err := e.Open()
	require.NoError(t, err)
	assert.Equal(t, pool.StateIterating, e.State())

	_, err = e.Open()
	assert.ErrorIs(t, err, pool.ErrIterationActive)

	for v, err := range e.All(context.Background()) {
		assert.Zero(t, v)
		assert.ErrorIs(t, err, pool.ErrIterationActive)
	}

	require.NoError(t, s.Close())
	assert.Equal(t, pool.StateSettled, e.State())
	assert.True(t, e.Completed())
	assert.False(t, e.Failed())
}

func TestSessionAfterCompletion(t *testing.T) {
	e, _ := pool.ForRange(2, 0, 5, 1, identity)
	_, err := drain(e)
	require.NoError(t, err)

	s, err := e.Open()
	require.NoError(t, err)
	_, ok, err := s.Next(context.Background())
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.NoError(t, s.Close())

	got, err := drain(e)
	assert.Empty(t, got)
	assert.NoError(t, err)
}

func TestSessionCloseEndsRun(t *testing.T) {
	var p probe
	e, _ := pool.ForRange(3, 0, 100, 1, p.wrap(identity))
	s, err := e.Open()
	require.NoError(t, err)

	_, ok, err := s.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.True(t, e.Lifecycle().Settled())
	assert.NoError(t, e.Lifecycle().Err())
	assert.Equal(t, pool.Stats{Pulled: 3, Claimed: 1}, e.Stats())

	_, ok, err = s.Next(context.Background())
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestSessionAbort(t *testing.T) {
	e, _ := pool.ForRange(1, 0, 10, 1, identity)
	s, err := e.Open()
	require.NoError(t, err)

	require.NoError(t, s.Abort(errBoom))
	assert.True(t, e.Failed())
	assert.ErrorIs(t, e.Lifecycle().Err(), errBoom)

	assert.NoError(t, s.Abort(errBoom), "second abort reported an error")
	assert.NoError(t, s.Close())
}

func TestSessionAbortNil(t *testing.T) {
	e, _ := pool.ForRange(1, 0, 10, 1, identity)
	s, err := e.Open()
	require.NoError(t, err)

	require.NoError(t, s.Abort(nil))
	assert.True(t, e.Completed())
	assert.False(t, e.Failed())
}

func TestSessionNextCanceled(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		const limit = 4
		e, _ := pool.ForRange(limit, 0, 8, 1, func(_ context.Context, x int) (int, error) {
			time.Sleep(time.Hour)
			return x, nil
		})
		s, err := e.Open()
		require.NoError(t, err)
		defer s.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, ok, err := s.Next(ctx)
		assert.False(t, ok)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		assert.False(t, e.Completed())
		assert.Equal(t, pool.StateIterating, e.State())
		assert.Equal(t, pool.Stats{Pulled: limit, Running: limit}, e.Stats())

		var got []int
		for {
			x, ok, err := s.Next(context.Background())
			require.NoError(t, err)
			if !ok {
				break
			}
			got = append(got, x)
		}
		assert.ElementsMatch(t, makeIntKeys(8), got)
	})
}

func TestStartDuringSession(t *testing.T) {
	var p probe
	e, _ := pool.ForRange(2, 0, 10, 1, p.wrap(identity))
	s, err := e.Open()
	require.NoError(t, err)

	_, ok, err := s.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	job := e.Start()
	require.True(t, job.Settled())
	assert.ErrorIs(t, job.Err(), pool.ErrIterationActive)
	assert.False(t, e.Started())
	assert.False(t, e.Completed(), "Start ended the run before the next step")

	_, ok, err = s.Next(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, pool.ErrStartedDuringIteration)

	assert.True(t, e.Failed())
	assert.ErrorIs(t, e.Lifecycle().Err(), pool.ErrStartedDuringIteration)

	_, ok, err = s.Next(context.Background())
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestAllBreak(t *testing.T) {
	const limit = 7
	var p probe
	e, _ := pool.ForRange(limit, 0, 1_000_000, 1, p.wrap(identity))

	for _, err := range e.All(context.Background()) {
		require.NoError(t, err)
		break
	}

	assert.True(t, e.Completed())
	assert.False(t, e.Failed())
	assert.EqualValues(t, limit, e.Stats().Pulled)
	assert.LessOrEqual(t, p.calls.Load(), int64(limit))
}

func TestAllOpenError(t *testing.T) {
	e, _ := pool.ForRange(1, 0, 10, 1, identity)
	s, err := e.Open()
	require.NoError(t, err)
	defer s.Close()

	var errs []error
	for _, err := range e.All(context.Background()) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], pool.ErrIterationActive)
	assert.False(t, e.Completed(), "failed iterator ended the open session's run")
}
