// Package eventhandler содержит обработчики доменных событий.
// Обработчики реагируют на уже зафиксированные изменения и запускают
// побочные эффекты. Их ошибки не влияют на исходную операцию.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pasantias/plaza-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// NOTIFICATION HAND-OFF
// Превращает доменные события в сообщения для внешней службы доставки.
// Сама доставка (email и т.п.) находится вне этого сервиса.
// ═══════════════════════════════════════════════════════════════════════════

// Notification - сообщение для службы доставки.
type Notification struct {
	// Topic - тип события, породившего сообщение.
	Topic string

	// RecipientKind - вид получателя: company, student, slot.
	RecipientKind string

	// RecipientID - идентификатор получателя.
	RecipientID string

	// Subject - короткий заголовок.
	Subject string

	// Data - данные события для шаблона.
	Data map[string]interface{}

	// CreatedAt - время события.
	CreatedAt time.Time
}

// Notifier - внешняя служба доставки уведомлений.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotificationHandler передаёт события в Notifier.
type NotificationHandler struct {
	notifier Notifier
	logger   *slog.Logger
	timeout  time.Duration
}

// NewNotificationHandler создаёт обработчик.
func NewNotificationHandler(notifier Notifier, logger *slog.Logger) *NotificationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationHandler{
		notifier: notifier,
		logger:   logger.With("handler", "notification"),
		timeout:  10 * time.Second,
	}
}

// Register подписывает обработчик на события, о которых нужно уведомлять.
func (h *NotificationHandler) Register(sub shared.EventSubscriber) error {
	for _, t := range []shared.EventType{
		shared.EventValidationChanged,
		shared.EventOccupancyReleased,
		shared.EventInternshipsAssigned,
	} {
		if err := sub.Subscribe(t, h.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	return nil
}

// Handle обрабатывает событие. Реализует shared.EventHandler.
func (h *NotificationHandler) Handle(event shared.Event) error {
	n, ok := h.build(event)
	if !ok {
		h.logger.Debug("no notification for event", "event_type", event.EventType())
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.notifier.Notify(ctx, n); err != nil {
		h.logger.Error("notification hand-off failed",
			"topic", n.Topic,
			"recipient_kind", n.RecipientKind,
			"recipient_id", n.RecipientID,
			"error", err,
		)
		return fmt.Errorf("notify %s: %w", n.Topic, err)
	}
	return nil
}

func (h *NotificationHandler) build(event shared.Event) (Notification, bool) {
	n := Notification{
		Topic:     string(event.EventType()),
		Data:      event.Payload(),
		CreatedAt: event.OccurredAt(),
	}

	switch e := event.(type) {
	case shared.ValidationChangedEvent:
		n.RecipientKind = e.Kind
		n.RecipientID = e.AggregateID()
		n.Subject = fmt.Sprintf("%s review: %s", e.Kind, e.To)
	case shared.OccupancyReleasedEvent:
		n.RecipientKind = "student"
		n.RecipientID = e.StudentID
		n.Subject = fmt.Sprintf("internship %s", e.FinalState)
	case shared.InternshipsAssignedEvent:
		n.RecipientKind = "company"
		n.RecipientID = e.CompanyID
		n.Subject = fmt.Sprintf("%d new interns assigned", len(e.StudentIDs))
	default:
		return Notification{}, false
	}
	return n, true
}
