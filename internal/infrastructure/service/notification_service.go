// Package service contains adapters that connect application ports to
// concrete infrastructure.
package service

import (
	"context"
	"log/slog"

	"github.com/pasantias/plaza-hub/internal/application/eventhandler"
	"github.com/pasantias/plaza-hub/internal/infrastructure/persistence/redis"
)

// LogNotifier writes notifications to the log. Used when no outbox is
// configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

// Notify implements eventhandler.Notifier.
func (n *LogNotifier) Notify(ctx context.Context, notif eventhandler.Notification) error {
	n.logger.InfoContext(ctx, "notification",
		"topic", notif.Topic,
		"recipient_kind", notif.RecipientKind,
		"recipient_id", notif.RecipientID,
		"subject", notif.Subject,
	)
	return nil
}

// OutboxNotifier hands notifications to the delivery service through a
// Redis list. The delivery service pops from the head of the list.
type OutboxNotifier struct {
	cache  *redis.Cache
	key    string
	maxLen int64
}

// OutboxMessage is the JSON document pushed for each notification.
type OutboxMessage struct {
	Topic         string                 `json:"topic"`
	RecipientKind string                 `json:"recipient_kind"`
	RecipientID   string                 `json:"recipient_id"`
	Subject       string                 `json:"subject"`
	Data          map[string]interface{} `json:"data,omitempty"`
	CreatedAt     string                 `json:"created_at"`
}

// NewOutboxNotifier creates an OutboxNotifier writing to <prefix>outbox:notifications.
// maxLen bounds the list if the delivery service stops consuming.
func NewOutboxNotifier(cache *redis.Cache, maxLen int64) *OutboxNotifier {
	return &OutboxNotifier{
		cache:  cache,
		key:    cache.Key(redis.PrefixOutbox, "notifications"),
		maxLen: maxLen,
	}
}

// Notify implements eventhandler.Notifier.
func (n *OutboxNotifier) Notify(ctx context.Context, notif eventhandler.Notification) error {
	return n.cache.Push(ctx, n.key, OutboxMessage{
		Topic:         notif.Topic,
		RecipientKind: notif.RecipientKind,
		RecipientID:   notif.RecipientID,
		Subject:       notif.Subject,
		Data:          notif.Data,
		CreatedAt:     notif.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}, n.maxLen)
}

var (
	_ eventhandler.Notifier = (*LogNotifier)(nil)
	_ eventhandler.Notifier = (*OutboxNotifier)(nil)
)
