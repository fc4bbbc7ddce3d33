package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasantias/plaza-hub/internal/domain/placement"
	"github.com/pasantias/plaza-hub/internal/domain/shared"
)

func TestRecordDocument_TracksCompleteness(t *testing.T) {
	f := newFixture(1, 1)
	h := NewRecordDocumentHandler(f.store, f.pub, f.options()...)
	ctx := context.Background()

	var res *RecordDocumentResult
	for _, doc := range placement.AllDocumentTypes {
		var err error
		res, err = h.Handle(ctx, RecordDocumentCommand{StudentID: "st-01", Document: doc, Present: true})
		require.NoError(t, err)
	}
	assert.True(t, res.Complete)
	assert.Empty(t, res.Missing)
	assert.Equal(t, placement.ReviewPending, res.Review, "presence never changes review status")

	res, err := h.Handle(ctx, RecordDocumentCommand{StudentID: "st-01", Document: placement.DocMedicalCertificate})
	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Equal(t, []placement.DocumentType{placement.DocMedicalCertificate}, res.Missing)
	assert.Len(t, res.Present, len(placement.AllDocumentTypes)-1)
	assert.NotContains(t, res.Present, placement.DocMedicalCertificate)

	events := f.pub.Events()
	require.Len(t, events, len(placement.AllDocumentTypes)+1)
	last, ok := events[len(events)-1].(shared.DocumentPresenceChangedEvent)
	require.True(t, ok)
	assert.Equal(t, "st-01", last.AggregateID())
	assert.Equal(t, "medical_certificate", last.Document)
	assert.False(t, last.Present)
	assert.False(t, last.Complete)

	prev := events[len(events)-2].(shared.DocumentPresenceChangedEvent)
	assert.True(t, prev.Complete)
}

func TestRecordDocument_Errors(t *testing.T) {
	f := newFixture(1, 1)
	h := NewRecordDocumentHandler(f.store, f.pub)
	ctx := context.Background()

	_, err := h.Handle(ctx, RecordDocumentCommand{StudentID: "st-01", Document: "passport", Present: true})
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))

	_, err = h.Handle(ctx, RecordDocumentCommand{Document: placement.DocNationalID})
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))

	_, err = h.Handle(ctx, RecordDocumentCommand{StudentID: "ghost", Document: placement.DocNationalID, Present: true})
	assert.True(t, shared.IsNotFound(err))
	assert.Empty(t, f.pub.Events())
}

func TestOutcome(t *testing.T) {
	tests := map[string]error{
		"ok":                    nil,
		"insufficient_capacity": &shared.InsufficientCapacityError{},
		"ineligible":            &shared.IneligibleStudentsError{},
		"invalid_transition":    &shared.InvalidTransitionError{},
		"not_found":             shared.NewNotFound("slot", "x"),
		"company_not_accepted":  shared.NewDomainError("a", "b", shared.ErrCompanyNotAccepted, "m"),
		"slot_inactive":         shared.NewDomainError("a", "b", shared.ErrSlotInactive, "m"),
		"invalid_input":         invalid("op", "bad"),
		"repository_error":      &shared.RepositoryError{Op: "x", Err: errors.New("down")},
		"cancelled":             context.Canceled,
		"error":                 errors.New("other"),
	}
	for want, err := range tests {
		assert.Equal(t, want, Outcome(err), want)
	}
}
