// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import "time"

// EventType represents the type of domain event.
type EventType string

// Domain event types. Events are emitted after the owning transaction commits
// and are delivered on a best-effort basis.
const (
	// Validation events
	EventValidationChanged EventType = "validation.changed"

	// Occupancy events
	EventInternshipsAssigned EventType = "occupancy.assigned"
	EventOccupancyReleased   EventType = "occupancy.released"

	// Document events
	EventDocumentPresenceChanged EventType = "document.presence_changed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Validation Events
// ═══════════════════════════════════════════════════════════════════════════

// ValidationChangedEvent is emitted when a reviewer decision lands on a
// company or a document bundle.
type ValidationChangedEvent struct {
	BaseEvent
	Kind string `json:"kind"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Payload implements Event interface.
func (e ValidationChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"kind": e.Kind,
		"id":   e.AggregateId,
		"from": e.From,
		"to":   e.To,
	}
}

// NewValidationChangedEvent creates a new ValidationChangedEvent.
func NewValidationChangedEvent(kind, id, from, to string) ValidationChangedEvent {
	return ValidationChangedEvent{
		BaseEvent: NewBaseEvent(EventValidationChanged, id),
		Kind:      kind,
		From:      from,
		To:        to,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Occupancy Events
// ═══════════════════════════════════════════════════════════════════════════

// OccupancyReleasedEvent is emitted when an internship reaches a terminal
// state and gives its seat back to the slot.
type OccupancyReleasedEvent struct {
	BaseEvent
	InternshipID string `json:"internship_id"`
	StudentID    string `json:"student_id"`
	FinalState   string `json:"final_state"`
}

// Payload implements Event interface.
func (e OccupancyReleasedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"slot_id":       e.AggregateId,
		"internship_id": e.InternshipID,
		"student_id":    e.StudentID,
		"final_state":   e.FinalState,
	}
}

// NewOccupancyReleasedEvent creates a new OccupancyReleasedEvent keyed by slot.
func NewOccupancyReleasedEvent(slotID, internshipID, studentID, finalState string) OccupancyReleasedEvent {
	return OccupancyReleasedEvent{
		BaseEvent:    NewBaseEvent(EventOccupancyReleased, slotID),
		InternshipID: internshipID,
		StudentID:    studentID,
		FinalState:   finalState,
	}
}

// InternshipsAssignedEvent is emitted after a batch assignment commits.
type InternshipsAssignedEvent struct {
	BaseEvent
	CompanyID     string   `json:"company_id"`
	InternshipIDs []string `json:"internship_ids"`
	StudentIDs    []string `json:"student_ids"`
}

// Payload implements Event interface.
func (e InternshipsAssignedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"slot_id":        e.AggregateId,
		"company_id":     e.CompanyID,
		"internship_ids": e.InternshipIDs,
		"student_ids":    e.StudentIDs,
	}
}

// NewInternshipsAssignedEvent creates a new InternshipsAssignedEvent keyed by slot.
func NewInternshipsAssignedEvent(slotID, companyID string, internshipIDs, studentIDs []string) InternshipsAssignedEvent {
	return InternshipsAssignedEvent{
		BaseEvent:     NewBaseEvent(EventInternshipsAssigned, slotID),
		CompanyID:     companyID,
		InternshipIDs: internshipIDs,
		StudentIDs:    studentIDs,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Document Events
// ═══════════════════════════════════════════════════════════════════════════

// DocumentPresenceChangedEvent is emitted when a document is recorded or removed.
type DocumentPresenceChangedEvent struct {
	BaseEvent
	Document string `json:"document"`
	Present  bool   `json:"present"`
	Complete bool   `json:"complete"`
}

// Payload implements Event interface.
func (e DocumentPresenceChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.AggregateId,
		"document":   e.Document,
		"present":    e.Present,
		"complete":   e.Complete,
	}
}

// NewDocumentPresenceChangedEvent creates a new DocumentPresenceChangedEvent keyed by student.
func NewDocumentPresenceChangedEvent(studentID, document string, present, complete bool) DocumentPresenceChangedEvent {
	return DocumentPresenceChangedEvent{
		BaseEvent: NewBaseEvent(EventDocumentPresenceChanged, studentID),
		Document:  document,
		Present:   present,
		Complete:  complete,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
