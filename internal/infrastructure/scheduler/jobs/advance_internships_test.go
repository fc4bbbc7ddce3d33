package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasantias/plaza-hub/internal/application/command"
	"github.com/pasantias/plaza-hub/internal/domain/placement"
	"github.com/pasantias/plaza-hub/internal/domain/shared"
	"github.com/pasantias/plaza-hub/internal/infrastructure/persistence/memory"
)

var (
	mar1 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mar3 = time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	mar5 = time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	apr1 = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
)

type nopPublisher struct{ events []shared.Event }

func (p *nopPublisher) Publish(ev shared.Event) error {
	p.events = append(p.events, ev)
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func seededStore() *memory.Store {
	s := memory.NewStore()
	s.PutInternship(placement.Internship{ID: "due", SlotID: "slot-1", StudentID: "ana", StartDate: mar1, State: placement.InternshipPending})
	s.PutInternship(placement.Internship{ID: "short", SlotID: "slot-1", StudentID: "luis", StartDate: mar1, EndDate: &mar3, State: placement.InternshipPending})
	s.PutInternship(placement.Internship{ID: "later", SlotID: "slot-1", StudentID: "eva", StartDate: apr1, State: placement.InternshipPending})
	s.PutInternship(placement.Internship{ID: "done", SlotID: "slot-1", StudentID: "ivan", StartDate: mar1, EndDate: &mar3, State: placement.InternshipInProgress})
	return s
}

func state(t *testing.T, s *memory.Store, id string) placement.InternshipState {
	t.Helper()
	var in *placement.Internship
	require.NoError(t, s.WithinReadTx(context.Background(), func(ctx context.Context, tx placement.Tx) error {
		var err error
		in, err = tx.GetInternship(ctx, id)
		return err
	}))
	return in.State
}

func TestAdvanceInternshipsJob_Run(t *testing.T) {
	store := seededStore()
	pub := &nopPublisher{}
	handler := command.NewTransitionStateHandler(store, nil, pub)
	job := NewAdvanceInternshipsJob(store, handler, discard(), AdvanceInternshipsConfig{
		Now: func() time.Time { return mar5 },
	})

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, placement.InternshipInProgress, state(t, store, "due"))
	assert.Equal(t, placement.InternshipFinished, state(t, store, "short"), "started and finished in one run")
	assert.Equal(t, placement.InternshipPending, state(t, store, "later"))
	assert.Equal(t, placement.InternshipFinished, state(t, store, "done"))

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.Started)
	assert.Equal(t, 2, stats.Finished)
	assert.Zero(t, stats.Conflicts)
	assert.Zero(t, stats.Failures)

	require.Len(t, pub.events, 2)
	for _, ev := range pub.events {
		assert.Equal(t, shared.EventOccupancyReleased, ev.EventType())
	}

	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, job.LastStats().Started, "nothing left to move")
}

func TestAdvanceInternshipsJob_Disabled(t *testing.T) {
	store := seededStore()
	job := NewAdvanceInternshipsJob(store, command.NewTransitionStateHandler(store, nil, &nopPublisher{}), discard(), AdvanceInternshipsConfig{
		Enabled: func() bool { return false },
		Now:     func() time.Time { return mar5 },
	})

	require.NoError(t, job.Run(context.Background()))
	assert.True(t, job.LastStats().Disabled)
	assert.Equal(t, placement.InternshipPending, state(t, store, "due"))
}

// scripted fails or conflicts for chosen internships and delegates the rest.
type scripted struct {
	next     Transitioner
	conflict map[string]bool
	fail     map[string]bool
}

func (s *scripted) Handle(ctx context.Context, cmd command.TransitionStateCommand) (*command.TransitionStateResult, error) {
	switch {
	case s.conflict[cmd.EntityID]:
		return nil, &shared.InvalidTransitionError{Kind: string(cmd.Kind), ID: cmd.EntityID, From: "cancelled", AttemptedTo: string(cmd.To)}
	case s.fail[cmd.EntityID]:
		return nil, errors.New("connection reset")
	}
	return s.next.Handle(ctx, cmd)
}

func TestAdvanceInternshipsJob_ConflictsAndFailures(t *testing.T) {
	store := seededStore()
	tr := &scripted{
		next:     command.NewTransitionStateHandler(store, nil, &nopPublisher{}),
		conflict: map[string]bool{"due": true},
		fail:     map[string]bool{"done": true},
	}
	job := NewAdvanceInternshipsJob(store, tr, discard(), AdvanceInternshipsConfig{
		Now: func() time.Time { return mar5 },
	})

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "advance internship done to finished")

	stats := job.LastStats()
	assert.Equal(t, 1, stats.Started)
	assert.Equal(t, 1, stats.Conflicts, "a reviewer's change is not a failure")
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, placement.InternshipFinished, state(t, store, "short"))
}

func TestAdvanceInternshipsJob_BatchSize(t *testing.T) {
	store := seededStore()
	job := NewAdvanceInternshipsJob(store, command.NewTransitionStateHandler(store, nil, &nopPublisher{}), discard(), AdvanceInternshipsConfig{
		BatchSize: 1,
		Now:       func() time.Time { return mar5 },
	})

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, job.LastStats().Started)
	assert.Equal(t, 1, job.LastStats().Finished)
}
