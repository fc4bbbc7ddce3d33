package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasantias/plaza-hub/internal/domain/placement"
	"github.com/pasantias/plaza-hub/internal/domain/shared"
	"github.com/pasantias/plaza-hub/internal/infrastructure/persistence/memory"
)

type fakeCache struct {
	entries map[string]placement.Availability
	getErr  error
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]placement.Availability{}}
}

func (c *fakeCache) Get(_ context.Context, slotID string) (*placement.Availability, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	a, ok := c.entries[slotID]
	if !ok {
		return nil, false, nil
	}
	return &a, true, nil
}

func (c *fakeCache) Set(_ context.Context, a *placement.Availability) error {
	c.sets++
	c.entries[a.SlotID] = *a
	return nil
}

func newStore() *memory.Store {
	store := memory.NewStore()
	minAge := 16
	store.PutSlot(placement.Slot{
		ID: "slot-1", CompanyID: "acme", WorkshopID: "electricity", Capacity: 2,
		MinAge: &minAge, AllowedGender: shared.GenderFemale, Status: placement.SlotActive,
	})
	store.PutInternship(placement.Internship{ID: "i1", StudentID: "a", SlotID: "slot-1", State: placement.InternshipPending})
	store.PutInternship(placement.Internship{ID: "i2", StudentID: "b", SlotID: "slot-1", State: placement.InternshipFinished})
	store.PutStudent(placement.Student{ID: "ana", WorkshopID: "electricity", Age: 17, Gender: shared.GenderFemale})
	store.PutStudent(placement.Student{ID: "luis", WorkshopID: "carpentry", Age: 15, Gender: shared.GenderMale})
	return store
}

func TestGetSlotAvailability_ReadsThroughCache(t *testing.T) {
	cache := newFakeCache()
	h := NewGetSlotAvailabilityHandler(newStore(), nil, cache, nil)
	ctx := context.Background()

	dto, err := h.Handle(ctx, GetSlotAvailabilityQuery{SlotID: "slot-1"})
	require.NoError(t, err)
	assert.False(t, dto.FromCache)
	assert.Equal(t, 2, dto.Capacity)
	assert.Equal(t, 1, dto.Occupied)
	assert.Equal(t, 1, dto.Available)
	assert.True(t, dto.Bookable)
	assert.Equal(t, 1, cache.sets)

	dto, err = h.Handle(ctx, GetSlotAvailabilityQuery{SlotID: "slot-1"})
	require.NoError(t, err)
	assert.True(t, dto.FromCache)
	assert.Equal(t, 1, dto.Available)

	dto, err = h.Handle(ctx, GetSlotAvailabilityQuery{SlotID: "slot-1", BypassCache: true})
	require.NoError(t, err)
	assert.False(t, dto.FromCache)
	assert.Equal(t, 2, cache.sets)
}

func TestGetSlotAvailability_CacheFailureFallsBackToStore(t *testing.T) {
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	h := NewGetSlotAvailabilityHandler(newStore(), nil, cache, nil)

	dto, err := h.Handle(context.Background(), GetSlotAvailabilityQuery{SlotID: "slot-1"})
	require.NoError(t, err)
	assert.False(t, dto.FromCache)
	assert.Equal(t, 1, dto.Available)
}

func TestGetSlotAvailability_InactiveIsNotBookable(t *testing.T) {
	store := newStore()
	store.PutSlot(placement.Slot{ID: "slot-2", CompanyID: "acme", WorkshopID: "w", Capacity: 3, Status: placement.SlotInactive})
	h := NewGetSlotAvailabilityHandler(store, nil, nil, nil)

	dto, err := h.Handle(context.Background(), GetSlotAvailabilityQuery{SlotID: "slot-2"})
	require.NoError(t, err)
	assert.Equal(t, 3, dto.Available)
	assert.False(t, dto.Bookable)
	assert.Equal(t, "inactive", dto.Status)
}

func TestGetSlotAvailability_Errors(t *testing.T) {
	h := NewGetSlotAvailabilityHandler(newStore(), nil, nil, nil)

	_, err := h.Handle(context.Background(), GetSlotAvailabilityQuery{})
	assert.Error(t, err)

	_, err = h.Handle(context.Background(), GetSlotAvailabilityQuery{SlotID: "ghost"})
	assert.True(t, shared.IsNotFound(err))
}

func TestCheckEligibility(t *testing.T) {
	h := NewCheckEligibilityHandler(newStore())

	out, err := h.Handle(context.Background(), CheckEligibilityQuery{
		SlotID:     "slot-1",
		StudentIDs: []string{"ana", "luis"},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, EligibilityDTO{StudentID: "ana", Eligible: true}, out[0])
	assert.Equal(t, "luis", out[1].StudentID)
	assert.False(t, out[1].Eligible)
	assert.Equal(t, []string{"underage", "gender_mismatch", "workshop_mismatch"}, out[1].Reasons)

	_, err = h.Handle(context.Background(), CheckEligibilityQuery{SlotID: "slot-1"})
	assert.Error(t, err)

	_, err = h.Handle(context.Background(), CheckEligibilityQuery{SlotID: "slot-1", StudentIDs: []string{"ghost"}})
	assert.True(t, shared.IsNotFound(err))
}
