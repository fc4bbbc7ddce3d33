package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pasantias/plaza-hub/internal/domain/placement"
	"github.com/pasantias/plaza-hub/internal/domain/shared"
	"github.com/pasantias/plaza-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGN STUDENTS COMMAND
// Places a batch of students into one slot. This is the only way
// internships come into existence. The batch succeeds or fails as a whole.
// ══════════════════════════════════════════════════════════════════════════════

// AssignStudentsCommand contains the data to assign students to a slot.
type AssignStudentsCommand struct {
	// SlotID is the slot receiving the students.
	SlotID string

	// StudentIDs must be distinct.
	StudentIDs []string

	// SupervisorID is the tutor responsible for the internships.
	SupervisorID string

	// StartDate is the first day of the internships.
	StartDate time.Time

	// EndDate is optional.
	EndDate *time.Time

	// ActorID identifies the caller. Used for logging only.
	ActorID string
}

// Validate validates the command.
func (c AssignStudentsCommand) Validate() error {
	const op = "assign_students"
	if strings.TrimSpace(c.SlotID) == "" {
		return invalid(op, "slot_id is required")
	}
	if len(c.StudentIDs) == 0 {
		return invalid(op, "at least one student is required")
	}
	for _, id := range c.StudentIDs {
		if strings.TrimSpace(id) == "" {
			return invalid(op, "student ids cannot be empty")
		}
	}
	if _, dups := shared.DistinctIDs(c.StudentIDs); len(dups) > 0 {
		return invalid(op, "duplicate student ids: %s", strings.Join(dups, ", "))
	}
	if strings.TrimSpace(c.SupervisorID) == "" {
		return invalid(op, "supervisor_id is required")
	}
	if c.StartDate.IsZero() {
		return invalid(op, "start_date is required")
	}
	if c.EndDate != nil && shared.Day(*c.EndDate).Before(shared.Day(c.StartDate)) {
		return invalid(op, "end_date is before start_date")
	}
	return nil
}

// AssignStudentsResult contains the created internships.
type AssignStudentsResult struct {
	SlotID      string
	CompanyID   string
	Internships []*placement.Internship

	// Available is the number of free seats right after the commit.
	Available int

	Events []shared.Event
}

// AllocationPolicy holds optional restrictions on top of the base rules.
type AllocationPolicy struct {
	// SingleActiveInternship rejects students that already hold a
	// non-terminal internship at any slot.
	SingleActiveInternship bool

	// RequireApprovedDocuments rejects students whose document bundle is
	// not approved.
	RequireApprovedDocuments bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AssignStudentsHandler handles the AssignStudentsCommand.
type AssignStudentsHandler struct {
	txm       placement.TxManager
	ledger    *placement.CapacityLedger
	publisher shared.EventPublisher
	policy    AllocationPolicy
	opts      options
}

// NewAssignStudentsHandler creates a new AssignStudentsHandler.
func NewAssignStudentsHandler(
	txm placement.TxManager,
	ledger *placement.CapacityLedger,
	publisher shared.EventPublisher,
	policy AllocationPolicy,
	opts ...Option,
) *AssignStudentsHandler {
	if ledger == nil {
		ledger = placement.NewCapacityLedger()
	}
	return &AssignStudentsHandler{
		txm:       txm,
		ledger:    ledger,
		publisher: publisher,
		policy:    policy,
		opts:      applyOptions(opts),
	}
}

// Handle executes the assign students command.
func (h *AssignStudentsHandler) Handle(ctx context.Context, cmd AssignStudentsCommand) (*AssignStudentsResult, error) {
	started := time.Now()
	result, err := h.assign(ctx, cmd)
	h.opts.metrics.ObserveAssignment(Outcome(err), len(cmd.StudentIDs), time.Since(started))

	log := h.opts.log.With(
		logger.Operation("assign_students"),
		logger.SlotID(cmd.SlotID),
		logger.StudentCount(len(cmd.StudentIDs)),
		logger.Actor(cmd.ActorID),
	)
	if err != nil {
		log.Info("assignment rejected", logger.String("outcome", Outcome(err)), logger.Err(err))
		return nil, err
	}

	invalidate(ctx, h.opts.invalidator, log, result.SlotID)

	ids := make([]string, len(result.Internships))
	students := make([]string, len(result.Internships))
	for i, in := range result.Internships {
		ids[i] = in.ID
		students[i] = in.StudentID
	}
	ev := shared.NewInternshipsAssignedEvent(result.SlotID, result.CompanyID, ids, students)
	result.Events = append(result.Events, ev)
	publish(h.publisher, log, result.Events...)

	log.Info("students assigned",
		logger.CompanyID(result.CompanyID),
		logger.Int("available", result.Available),
		logger.Latency(time.Since(started)),
	)
	return result, nil
}

func (h *AssignStudentsHandler) assign(ctx context.Context, cmd AssignStudentsCommand) (*AssignStudentsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	period, err := shared.NewDateRange(cmd.StartDate, cmd.EndDate)
	if err != nil {
		return nil, fmt.Errorf("assign_students: %w", err)
	}

	var result *AssignStudentsResult
	err = h.txm.WithinTx(ctx, func(ctx context.Context, tx placement.Tx) error {
		slot, err := tx.LockSlot(ctx, cmd.SlotID)
		if err != nil {
			return err
		}
		if !slot.IsActive() {
			return shared.NewDomainError("allocation", "Assign", shared.ErrSlotInactive,
				fmt.Sprintf("slot %s is %s", slot.ID, slot.Status))
		}

		company, err := tx.GetCompany(ctx, slot.CompanyID)
		if err != nil {
			return err
		}
		if !company.CanHostInternships() {
			return shared.NewDomainError("allocation", "Assign", shared.ErrCompanyNotAccepted,
				fmt.Sprintf("company %s is %s", company.ID, company.Validation))
		}

		students, err := tx.GetStudents(ctx, cmd.StudentIDs)
		if err != nil {
			return err
		}
		verdicts, err := h.screen(ctx, tx, slot, students)
		if err != nil {
			return err
		}
		if err := placement.NewIneligibleError(slot.ID, verdicts); err != nil {
			return err
		}

		reservation, err := h.ledger.TryReserve(ctx, tx, slot.ID, len(students))
		if err != nil {
			return err
		}

		internships := make([]*placement.Internship, 0, len(students))
		for _, st := range students {
			in, err := placement.NewInternship(placement.NewInternshipParams{
				ID:           h.opts.newID(),
				StudentID:    st.ID,
				Slot:         slot,
				SupervisorID: cmd.SupervisorID,
				Period:       period,
			})
			if err != nil {
				return err
			}
			internships = append(internships, in)
		}
		if err := reservation.Fulfil(ctx, tx, internships); err != nil {
			return err
		}

		result = &AssignStudentsResult{
			SlotID:      slot.ID,
			CompanyID:   company.ID,
			Internships: internships,
			Available:   slot.Remaining(reservation.OccupiedAfter()),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// screen runs the eligibility filters, the duplicate booking check and the
// optional policy checks for every student.
func (h *AssignStudentsHandler) screen(
	ctx context.Context,
	tx placement.Tx,
	slot *placement.Slot,
	students []*placement.Student,
) ([]placement.Verdict, error) {
	ids := make([]string, len(students))
	verdicts := make([]placement.Verdict, len(students))
	for i, st := range students {
		ids[i] = st.ID
		verdicts[i] = placement.CheckEligibility(st, slot)
	}

	booked, err := tx.ActiveHoldersAtSlot(ctx, slot.ID, ids)
	if err != nil {
		return nil, err
	}
	bookedHere := toSet(booked)

	var elsewhere map[string]bool
	if h.policy.SingleActiveInternship {
		active, err := tx.StudentsWithActiveInternship(ctx, ids)
		if err != nil {
			return nil, err
		}
		elsewhere = toSet(active)
	}

	for i := range verdicts {
		id := verdicts[i].StudentID
		switch {
		case bookedHere[id]:
			verdicts[i].Reject(placement.ReasonAlreadyBooked)
		case elsewhere[id]:
			verdicts[i].Reject(placement.ReasonActiveElsewhere)
		}
		if h.policy.RequireApprovedDocuments {
			bundle, err := tx.GetDocumentBundle(ctx, id)
			if err != nil {
				return nil, err
			}
			if bundle.Review != placement.ReviewApproved {
				verdicts[i].Reject(placement.ReasonDocuments)
			}
		}
	}
	return verdicts, nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
