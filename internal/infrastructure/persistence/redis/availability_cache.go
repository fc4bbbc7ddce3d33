package redis

import (
	"context"
	"errors"
	"time"

	"github.com/pasantias/plaza-hub/internal/domain/placement"
	"github.com/pasantias/plaza-hub/pkg/circuitbreaker"
)

// AvailabilityCache keeps advisory slot availability for display. Entries
// are dropped after every committed change to a slot's occupancy and
// expire after a short TTL in any case.
//
// Reads and writes go through a circuit breaker: while Redis is failing,
// Get reports a miss and Set is skipped without waiting on timeouts.
type AvailabilityCache struct {
	cache   *Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// NewAvailabilityCache creates an AvailabilityCache. A non-positive ttl
// selects TTLAvailability. A nil breaker selects circuitbreaker.CacheBreaker.
func NewAvailabilityCache(cache *Cache, ttl time.Duration, breaker *circuitbreaker.CircuitBreaker) *AvailabilityCache {
	if ttl <= 0 {
		ttl = TTLAvailability
	}
	if breaker == nil {
		breaker = circuitbreaker.CacheBreaker(nil)
	}
	return &AvailabilityCache{cache: cache, ttl: ttl, breaker: breaker}
}

func (c *AvailabilityCache) key(slotID string) string {
	return c.cache.Key(PrefixAvailability, slotID)
}

// Get returns the cached availability. ok is false on a miss or while the
// breaker is open.
func (c *AvailabilityCache) Get(ctx context.Context, slotID string) (*placement.Availability, bool, error) {
	var (
		a  placement.Availability
		ok bool
	)
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		err := c.cache.Get(ctx, c.key(slotID), &a)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		ok = err == nil
		return err
	})
	switch {
	case circuitbreaker.IsRejected(err):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	case !ok:
		return nil, false, nil
	}
	return &a, true, nil
}

// Set stores an availability snapshot.
func (c *AvailabilityCache) Set(ctx context.Context, a *placement.Availability) error {
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.cache.Set(ctx, c.key(a.SlotID), a, c.ttl)
	})
	if circuitbreaker.IsRejected(err) {
		return nil
	}
	return err
}

// Invalidate drops the cached availability of a slot. It bypasses the
// breaker so that a recovering Redis never keeps an entry it was told to
// drop.
func (c *AvailabilityCache) Invalidate(ctx context.Context, slotID string) error {
	return c.cache.Delete(ctx, c.key(slotID))
}
