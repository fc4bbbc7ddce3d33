package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

var fast = Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func TestDo_RetriesTransientErrors(t *testing.T) {
	var calls int
	err := New(fast, isTransient).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ReturnsLastErrorUnchanged(t *testing.T) {
	var (
		calls int
		last  error
	)
	err := New(fast, isTransient).Do(context.Background(), func(context.Context) error {
		calls++
		last = fmt.Errorf("attempt %d: %w", calls, errTransient)
		return last
	})

	assert.Same(t, last, err)
	assert.EqualError(t, err, "attempt 3: transient")
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonTransientError(t *testing.T) {
	plain := errors.New("plain")
	var calls int
	err := New(fast, isTransient).Do(context.Background(), func(context.Context) error {
		calls++
		return plain
	})
	assert.Same(t, plain, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = New(fast, nil).Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})
	assert.Same(t, errTransient, err)
	assert.Equal(t, 1, calls, "nil classifier retries nothing")
}

func TestDo_Context(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int
	err := New(fast, isTransient).Do(ctx, func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)

	ctx, cancel = context.WithCancel(context.Background())
	slow := Policy{MaxAttempts: 5, InitialDelay: time.Hour, Multiplier: 1}
	err = New(slow, isTransient, WithOnRetry(func(int, error, time.Duration) { cancel() })).
		Do(ctx, func(context.Context) error {
			calls++
			return errTransient
		})
	assert.Same(t, errTransient, err, "cancelled while waiting keeps the operation's error")
	assert.Equal(t, 1, calls)
}

func TestStartupRetrier_ReportsEveryRetry(t *testing.T) {
	var attempts []int
	r := StartupRetrier(func(attempt int, err error, _ time.Duration) {
		attempts = append(attempts, attempt)
		assert.ErrorIs(t, err, errTransient)
	})
	r.policy.InitialDelay = time.Millisecond
	r.policy.MaxDelay = time.Millisecond

	var calls int
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls <= 2 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDatabaseRetrier_UsesClassifier(t *testing.T) {
	r := DatabaseRetrier(isTransient)
	r.policy.InitialDelay = time.Millisecond

	var calls int
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})

	assert.Same(t, errTransient, err)
	assert.Equal(t, TxConflictPolicy.MaxAttempts, calls)
}

func TestDelay_CappedWithoutJitter(t *testing.T) {
	r := New(Policy{MaxAttempts: 4, InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}, nil)

	assert.Equal(t, 100*time.Millisecond, r.delay(1))
	assert.Equal(t, 200*time.Millisecond, r.delay(2))
	assert.Equal(t, 300*time.Millisecond, r.delay(3))
}

func TestNew_NormalizesPolicy(t *testing.T) {
	var calls int
	err := New(Policy{}, isTransient).Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "zero MaxAttempts still runs once")
}
