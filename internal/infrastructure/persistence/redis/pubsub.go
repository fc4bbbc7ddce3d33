package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pasantias/plaza-hub/internal/infrastructure/messaging"
)

// ══════════════════════════════════════════════════════════════════════════════
// PUB/SUB
// ══════════════════════════════════════════════════════════════════════════════

// PubSubAdapter exposes go-redis pub/sub as a messaging.RedisClient.
type PubSubAdapter struct {
	client redis.UniversalClient

	mu   sync.Mutex
	subs []*redis.PubSub
}

var _ messaging.RedisClient = (*PubSubAdapter)(nil)

// NewPubSubAdapter creates an adapter over the cache's client.
func NewPubSubAdapter(cache *Cache) *PubSubAdapter {
	return &PubSubAdapter{client: cache.Client()}
}

// Publish sends a message to a channel.
func (a *PubSubAdapter) Publish(ctx context.Context, channel string, message interface{}) error {
	return a.client.Publish(ctx, channel, message).Err()
}

// Subscribe listens on channels until ctx is cancelled or the adapter is
// closed. The returned channel is closed when the subscription ends.
func (a *PubSubAdapter) Subscribe(ctx context.Context, channels ...string) (<-chan messaging.RedisMessage, error) {
	ps := a.client.Subscribe(ctx, channels...)
	// Receive waits for the subscription confirmation.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	a.mu.Lock()
	a.subs = append(a.subs, ps)
	a.mu.Unlock()

	out := make(chan messaging.RedisMessage)
	go func() {
		defer close(out)
		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- messaging.RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close ends all subscriptions. The underlying client is owned by Cache.
func (a *PubSubAdapter) Close() error {
	a.mu.Lock()
	subs := a.subs
	a.subs = nil
	a.mu.Unlock()

	var errs []error
	for _, ps := range subs {
		if err := ps.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB LOCK
// ══════════════════════════════════════════════════════════════════════════════

// JobLock keeps a scheduled job from running on two instances at once.
type JobLock struct {
	cache *Cache
	ttl   time.Duration
	owner string
}

// NewJobLock creates a lock. A non-positive ttl selects TTLJobLock.
func NewJobLock(cache *Cache, ttl time.Duration) *JobLock {
	if ttl <= 0 {
		ttl = TTLJobLock
	}
	return &JobLock{cache: cache, ttl: ttl, owner: uuid.NewString()}
}

// TryLock acquires the named lock. release is nil when acquired is false.
func (l *JobLock) TryLock(ctx context.Context, name string) (release func(context.Context) error, acquired bool, err error) {
	key := l.cache.Key(PrefixLock, name)
	ok, err := l.cache.SetNX(ctx, key, l.owner, l.ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	return func(ctx context.Context) error {
		_, err := l.cache.DeleteIfEquals(ctx, key, l.owner)
		return err
	}, true, nil
}
