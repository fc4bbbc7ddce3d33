// Package retry reruns operations that fail for transient reasons, with
// exponential backoff and jitter between attempts. plazahub uses it to wait
// for PostgreSQL and Redis at boot and to rerun transactions aborted by lock
// conflicts.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	// MaxAttempts counts the first attempt.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter spreads each delay by up to ±Jitter of its value.
	Jitter float64
}

var (
	// StartupPolicy waits roughly half a minute for a dependency to come up.
	StartupPolicy = Policy{
		MaxAttempts:  8,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		Jitter:       0.2,
	}

	// TxConflictPolicy reruns a conflicting transaction twice at most.
	TxConflictPolicy = Policy{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
		Jitter:       0.05,
	}
)

// Retrier reruns an operation while its error is transient.
type Retrier struct {
	policy    Policy
	transient func(error) bool
	onRetry   func(attempt int, err error, delay time.Duration)
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithOnRetry is called before each wait, with the attempt that just failed.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(r *Retrier) { r.onRetry = fn }
}

// New creates a Retrier. transient decides which errors earn another
// attempt; a nil transient retries nothing.
func New(policy Policy, transient func(error) bool, opts ...Option) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 1
	}
	if transient == nil {
		transient = func(error) bool { return false }
	}
	r := &Retrier{policy: policy, transient: transient}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartupRetrier retries every error under StartupPolicy.
func StartupRetrier(onRetry func(attempt int, err error, delay time.Duration)) *Retrier {
	return New(StartupPolicy, func(error) bool { return true }, WithOnRetry(onRetry))
}

// DatabaseRetrier retries the errors isConflict accepts under TxConflictPolicy.
func DatabaseRetrier(isConflict func(error) bool) *Retrier {
	return New(TxConflictPolicy, isConflict)
}

// Do runs op until it succeeds, fails with a non-transient error, runs out
// of attempts or ctx ends. The returned error is exactly the one op last
// returned; ctx's error is returned only when op never ran.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil || attempt >= r.policy.MaxAttempts || !r.transient(err) {
			return err
		}

		delay := r.delay(attempt)
		if r.onRetry != nil {
			r.onRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// delay is InitialDelay·Multiplier^(attempt-1), capped at MaxDelay, then
// jittered.
func (r *Retrier) delay(attempt int) time.Duration {
	p := r.policy
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(math.Max(d, 0))
}
