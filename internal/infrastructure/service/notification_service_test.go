package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasantias/plaza-hub/internal/application/eventhandler"
	"github.com/pasantias/plaza-hub/internal/infrastructure/persistence/redis"
)

func released() eventhandler.Notification {
	return eventhandler.Notification{
		Topic:         "occupancy.released",
		RecipientKind: "slot",
		RecipientID:   "slot-1",
		Subject:       "A seat was released",
		Data:          map[string]interface{}{"internship_id": "in-1"},
		CreatedAt:     time.Date(2026, 9, 7, 12, 30, 0, 0, time.UTC),
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, n.Notify(context.Background(), released()))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "notification", line["msg"])
	assert.Equal(t, "notifier", line["component"])
	assert.Equal(t, "occupancy.released", line["topic"])
	assert.Equal(t, "slot-1", line["recipient_id"])
}

func TestOutboxNotifier_RedisDown(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	cache := redis.NewCacheFromClient(client, "test:")
	defer cache.Close()

	err := NewOutboxNotifier(cache, 10).Notify(context.Background(), released())
	assert.Error(t, err, "the event handler records the failure")
}

func TestOutboxNotifier_Live(t *testing.T) {
	addr := os.Getenv("PLAZA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PLAZA_TEST_REDIS_ADDR not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	cache := redis.NewCacheFromClient(client, "plaza-test:"+uuid.NewString()+":")
	defer cache.Close()
	ctx := context.Background()

	n := NewOutboxNotifier(cache, 10)
	require.NoError(t, n.Notify(ctx, released()))

	key := cache.Key(redis.PrefixOutbox, "notifications")
	items, err := client.LRange(ctx, key, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, items, 1)
	t.Cleanup(func() { client.Del(context.Background(), key) })

	var msg OutboxMessage
	require.NoError(t, json.Unmarshal([]byte(items[0]), &msg))
	assert.Equal(t, "occupancy.released", msg.Topic)
	assert.Equal(t, "slot", msg.RecipientKind)
	assert.Equal(t, "2026-09-07T12:30:00.000Z", msg.CreatedAt)
	assert.Equal(t, "in-1", msg.Data["internship_id"])
}
