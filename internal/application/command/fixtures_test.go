package command

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pasantias/plaza-hub/internal/domain/placement"
	"github.com/pasantias/plaza-hub/internal/domain/shared"
	"github.com/pasantias/plaza-hub/internal/infrastructure/persistence/memory"
)

var startDay = time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
	err    error
}

func (p *recordingPublisher) Publish(ev shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Events() []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]shared.Event(nil), p.events...)
}

type recordingInvalidator struct {
	mu    sync.Mutex
	slots []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, slotID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots = append(r.slots, slotID)
	return nil
}

func (r *recordingInvalidator) Slots() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.slots...)
}

type recordingMetrics struct {
	mu          sync.Mutex
	assignments []string
	transitions []string
}

func (m *recordingMetrics) ObserveAssignment(outcome string, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments = append(m.assignments, outcome)
}

func (m *recordingMetrics) ObserveTransition(kind, to, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, kind+":"+to+":"+outcome)
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("in-%03d", n.Add(1)) }
}

// fixture is one accepted company with one active electricity slot and a
// pool of eligible students.
type fixture struct {
	store *memory.Store
	pub   *recordingPublisher
	inv   *recordingInvalidator
	met   *recordingMetrics
	ids   func() string
}

func newFixture(capacity, students int) *fixture {
	store := memory.NewStore()
	store.PutWorkshop(placement.Workshop{ID: "electricity", Name: "Electricidad", Active: true})
	store.PutCompany(placement.Company{ID: "acme", Name: "Acme", Validation: placement.CompanyAccepted})
	store.PutSlot(placement.Slot{
		ID:            "slot-1",
		CompanyID:     "acme",
		WorkshopID:    "electricity",
		Capacity:      capacity,
		AllowedGender: shared.GenderAny,
		Status:        placement.SlotActive,
	})
	for i := 1; i <= students; i++ {
		store.PutStudent(placement.Student{
			ID:         studentID(i),
			FullName:   fmt.Sprintf("Student %d", i),
			WorkshopID: "electricity",
			Age:        17,
			Gender:     shared.GenderFemale,
		})
	}
	return &fixture{
		store: store,
		pub:   &recordingPublisher{},
		inv:   &recordingInvalidator{},
		met:   &recordingMetrics{},
		ids:   sequentialIDs(),
	}
}

func studentID(i int) string { return fmt.Sprintf("st-%02d", i) }

func (f *fixture) options() []Option {
	return []Option{
		WithInvalidator(f.inv),
		WithMetrics(f.met),
		WithIDGenerator(f.ids),
		WithClock(func() time.Time { return startDay }),
	}
}

func (f *fixture) assigner(policy AllocationPolicy) *AssignStudentsHandler {
	return NewAssignStudentsHandler(f.store, placement.NewCapacityLedger(), f.pub, policy, f.options()...)
}

func (f *fixture) transitioner() *TransitionStateHandler {
	return NewTransitionStateHandler(f.store, placement.Lifecycles(), f.pub, f.options()...)
}

func (f *fixture) occupied(slotID string) int {
	var n int
	_ = f.store.WithinReadTx(context.Background(), func(ctx context.Context, tx placement.Tx) error {
		var err error
		n, err = tx.CountActiveInternships(ctx, slotID)
		return err
	})
	return n
}

func assignCmd(students ...string) AssignStudentsCommand {
	return AssignStudentsCommand{
		SlotID:       "slot-1",
		StudentIDs:   students,
		SupervisorID: "tutor-1",
		StartDate:    startDay,
		ActorID:      "coordinator",
	}
}
