package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("dependency down")

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func fail(context.Context) error    { return errDown }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	var transitions []string
	cb := New("test",
		WithFailureThreshold(3),
		WithTimeout(10*time.Second),
		WithClock(clk.Now),
		WithOnStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	require.NoError(t, cb.Execute(ctx, succeed), "a success resets the streak")
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsRejected(err))
	assert.False(t, called)

	clk.Advance(10 * time.Second)
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, cb.State(), "needs two half-open successes by default")
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
	assert.Equal(t, 8, cb.Counts().Requests)
}

func TestCircuitBreaker_FailedHalfOpenCallReopens(t *testing.T) {
	clk := &clock{now: time.Unix(0, 0)}
	cb := New("test", WithFailureThreshold(1), WithTimeout(time.Second), WithClock(clk.Now))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.State())

	clk.Advance(time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen, "cool-down restarts from the failed half-open call")
}

func TestCircuitBreaker_HalfOpenLimitsConcurrentCalls(t *testing.T) {
	clk := &clock{now: time.Unix(0, 0)}
	cb := New("test", WithFailureThreshold(1), WithTimeout(time.Second), WithClock(clk.Now))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clk.Advance(time.Second)

	err := cb.Execute(ctx, func(ctx context.Context) error {
		inner := cb.Execute(ctx, succeed)
		assert.ErrorIs(t, inner, ErrTooManyRequests)
		assert.True(t, IsRejected(inner))
		return nil
	})
	require.NoError(t, err)
}

func TestCircuitBreaker_CallerCancellationIsNotAFailure(t *testing.T) {
	cb := New("test", WithFailureThreshold(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Counts().TotalFailures)
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	notFound := errors.New("not found")
	cb := New("test", WithFailureThreshold(1), WithIsFailure(func(err error) bool {
		return !errors.Is(err, notFound)
	}))

	assert.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return notFound }), notFound)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Counts().TotalSuccesses)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := CacheBreaker(nil)
	assert.Equal(t, "cache", cb.Name())

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, Counts{}, cb.Counts())
}
