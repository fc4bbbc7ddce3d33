// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pasantias/plaza-hub/internal/domain/shared"
	"github.com/pasantias/plaza-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATORS
// ══════════════════════════════════════════════════════════════════════════════

// Metrics records command outcomes.
type Metrics interface {
	ObserveAssignment(outcome string, students int, elapsed time.Duration)
	ObserveTransition(kind, to, outcome string)
}

// AvailabilityInvalidator drops advisory availability figures for a slot.
// Called after every commit that may change what a reader would see.
type AvailabilityInvalidator interface {
	Invalidate(ctx context.Context, slotID string) error
}

type nopMetrics struct{}

func (nopMetrics) ObserveAssignment(string, int, time.Duration) {}
func (nopMetrics) ObserveTransition(string, string, string)     {}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(context.Context, string) error { return nil }

// ══════════════════════════════════════════════════════════════════════════════
// OPTIONS
// ══════════════════════════════════════════════════════════════════════════════

type options struct {
	metrics     Metrics
	invalidator AvailabilityInvalidator
	log         *logger.Logger
	now         func() time.Time
	newID       func() string
}

func defaultOptions() options {
	return options{
		metrics:     nopMetrics{},
		invalidator: nopInvalidator{},
		log:         logger.Nop(),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.New().String() },
	}
}

// Option configures a command handler.
type Option func(*options)

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithInvalidator sets the availability cache invalidator.
func WithInvalidator(inv AvailabilityInvalidator) Option {
	return func(o *options) {
		if inv != nil {
			o.invalidator = inv
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides internship id generation.
func WithIDGenerator(gen func() string) Option {
	return func(o *options) {
		if gen != nil {
			o.newID = gen
		}
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// invalid builds a validation error carrying the command prefix.
func invalid(op, format string, args ...any) error {
	return fmt.Errorf("%s: %s: %w", op, fmt.Sprintf(format, args...), shared.ErrInvalidInput)
}

// Outcome maps an error to a low-cardinality label for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, shared.ErrInsufficientCapacity):
		return "insufficient_capacity"
	case errors.Is(err, shared.ErrIneligibleStudents):
		return "ineligible"
	case errors.Is(err, shared.ErrStateTransition):
		return "invalid_transition"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrCompanyNotAccepted):
		return "company_not_accepted"
	case errors.Is(err, shared.ErrSlotInactive):
		return "slot_inactive"
	case shared.IsValidation(err):
		return "invalid_input"
	case errors.Is(err, shared.ErrRepository):
		return "repository_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

// publish hands events to the sink. Delivery failures are logged and dropped.
func publish(publisher shared.EventPublisher, log *logger.Logger, events ...shared.Event) {
	if publisher == nil {
		return
	}
	for _, ev := range events {
		if err := publisher.Publish(ev); err != nil {
			log.Warn("event publish failed",
				logger.String("event_type", string(ev.EventType())),
				logger.String("aggregate_id", ev.AggregateID()),
				logger.Err(err),
			)
		}
	}
}

// invalidate drops cached availability. Failures only make the cache staler
// until its TTL expires.
func invalidate(ctx context.Context, inv AvailabilityInvalidator, log *logger.Logger, slotID string) {
	if err := inv.Invalidate(ctx, slotID); err != nil {
		log.Warn("availability invalidation failed", logger.SlotID(slotID), logger.Err(err))
	}
}
