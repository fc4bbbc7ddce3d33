package command

import (
	"context"
	"strings"
	"time"

	"github.com/pasantias/plaza-hub/internal/domain/lifecycle"
	"github.com/pasantias/plaza-hub/internal/domain/placement"
	"github.com/pasantias/plaza-hub/internal/domain/shared"
	"github.com/pasantias/plaza-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITION STATE COMMAND
// Moves a company, document bundle, internship or slot from one state to
// another. The caller names the state it believes is current; if someone
// else changed it first the command fails instead of overwriting.
// ══════════════════════════════════════════════════════════════════════════════

// TransitionStateCommand contains the data to change an entity's state.
type TransitionStateCommand struct {
	Kind     lifecycle.Kind
	EntityID string

	// From is the state the caller expects to be persisted.
	From lifecycle.State

	// To is the requested state.
	To lifecycle.State

	// ActorID identifies the reviewer or operator. Used for logging only.
	ActorID string
}

// Validate validates the command.
func (c TransitionStateCommand) Validate() error {
	const op = "transition_state"
	if !c.Kind.IsValid() {
		return invalid(op, "unknown entity kind %q", c.Kind)
	}
	if strings.TrimSpace(c.EntityID) == "" {
		return invalid(op, "entity_id is required")
	}
	if c.From == "" || c.To == "" {
		return invalid(op, "from and to states are required")
	}
	return nil
}

// TransitionStateResult describes an applied transition.
type TransitionStateResult struct {
	Kind     lifecycle.Kind
	EntityID string
	From     lifecycle.State
	To       lifecycle.State

	// SlotID is set when the transition changed slot occupancy or status.
	SlotID string

	Events         []shared.Event
	TransitionedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// TransitionStateHandler handles the TransitionStateCommand.
type TransitionStateHandler struct {
	txm       placement.TxManager
	registry  lifecycle.Registry
	publisher shared.EventPublisher
	opts      options
}

// NewTransitionStateHandler creates a new TransitionStateHandler.
func NewTransitionStateHandler(
	txm placement.TxManager,
	registry lifecycle.Registry,
	publisher shared.EventPublisher,
	opts ...Option,
) *TransitionStateHandler {
	if registry == nil {
		registry = placement.Lifecycles()
	}
	return &TransitionStateHandler{
		txm:       txm,
		registry:  registry,
		publisher: publisher,
		opts:      applyOptions(opts),
	}
}

// Handle executes the transition state command.
func (h *TransitionStateHandler) Handle(ctx context.Context, cmd TransitionStateCommand) (*TransitionStateResult, error) {
	result, err := h.transition(ctx, cmd)
	h.opts.metrics.ObserveTransition(string(cmd.Kind), string(cmd.To), Outcome(err))

	log := h.opts.log.With(
		logger.Operation("transition_state"),
		logger.EntityKind(string(cmd.Kind)),
		logger.EntityID(cmd.EntityID),
		logger.Transition(string(cmd.From), string(cmd.To)),
		logger.Actor(cmd.ActorID),
	)
	if err != nil {
		log.Info("transition rejected", logger.String("outcome", Outcome(err)), logger.Err(err))
		return nil, err
	}

	if result.SlotID != "" {
		invalidate(ctx, h.opts.invalidator, log, result.SlotID)
	}
	publish(h.publisher, log, result.Events...)

	log.Info("transition applied")
	return result, nil
}

func (h *TransitionStateHandler) transition(ctx context.Context, cmd TransitionStateCommand) (*TransitionStateResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	rules, err := h.registry.Lookup(cmd.Kind)
	if err != nil {
		return nil, err
	}
	if !rules.Recognizes(cmd.From) || !rules.Recognizes(cmd.To) {
		return nil, invalid("transition_state", "unknown %s state in %q -> %q", cmd.Kind, cmd.From, cmd.To)
	}

	result := &TransitionStateResult{
		Kind:     cmd.Kind,
		EntityID: cmd.EntityID,
		From:     cmd.From,
		To:       cmd.To,
	}
	err = h.txm.WithinTx(ctx, func(ctx context.Context, tx placement.Tx) error {
		current, err := tx.GetEntityState(ctx, cmd.Kind, cmd.EntityID)
		if err != nil {
			return err
		}
		if current != cmd.From || !rules.Permits(current, cmd.To) {
			return rejected(cmd, rules, current)
		}

		applied, err := tx.SetEntityState(ctx, cmd.Kind, cmd.EntityID, cmd.From, cmd.To)
		if err != nil {
			return err
		}
		if !applied {
			latest, err := tx.GetEntityState(ctx, cmd.Kind, cmd.EntityID)
			if err != nil {
				return err
			}
			return rejected(cmd, rules, latest)
		}

		events, slotID, err := h.effects(ctx, tx, cmd)
		if err != nil {
			return err
		}
		result.Events = events
		result.SlotID = slotID
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.TransitionedAt = h.opts.now()
	return result, nil
}

// effects collects the events a committed transition emits and the slot whose
// advisory availability must be refreshed.
func (h *TransitionStateHandler) effects(ctx context.Context, tx placement.Tx, cmd TransitionStateCommand) ([]shared.Event, string, error) {
	kind, id, from, to := string(cmd.Kind), cmd.EntityID, string(cmd.From), string(cmd.To)

	switch cmd.Kind {
	case lifecycle.KindCompany:
		if placement.ValidationStatus(cmd.To).IsDecision() {
			return []shared.Event{shared.NewValidationChangedEvent(kind, id, from, to)}, "", nil
		}
	case lifecycle.KindDocument:
		if placement.ReviewStatus(cmd.To).IsDecision() {
			return []shared.Event{shared.NewValidationChangedEvent(kind, id, from, to)}, "", nil
		}
	case lifecycle.KindInternship:
		in, err := tx.GetInternship(ctx, id)
		if err != nil {
			return nil, "", err
		}
		if placement.InternshipState(cmd.To).ReleasesSeat() {
			ev := shared.NewOccupancyReleasedEvent(in.SlotID, in.ID, in.StudentID, to)
			return []shared.Event{ev}, in.SlotID, nil
		}
		return nil, in.SlotID, nil
	case lifecycle.KindSlot:
		return nil, id, nil
	}
	return nil, "", nil
}

func rejected(cmd TransitionStateCommand, rules lifecycle.Rules, current lifecycle.State) error {
	var allowed []string
	for _, s := range rules.Targets(current) {
		allowed = append(allowed, string(s))
	}
	return &shared.InvalidTransitionError{
		Kind:        string(cmd.Kind),
		ID:          cmd.EntityID,
		From:        string(current),
		AttemptedTo: string(cmd.To),
		Allowed:     allowed,
	}
}
