package placement

import (
	"context"
	"fmt"
	"time"

	"github.com/pasantias/plaza-hub/internal/domain/shared"
)

// CapacityLedger отвечает на вопросы "сколько мест занято" и "поместятся ли
// ещё N". Все ответы вычисляются через переданную транзакцию.
type CapacityLedger struct{}

// NewCapacityLedger создаёт CapacityLedger.
func NewCapacityLedger() *CapacityLedger {
	return &CapacityLedger{}
}

// Occupied - количество стажировок места в состояниях Pending и InProgress.
func (l *CapacityLedger) Occupied(ctx context.Context, tx Tx, slotID string) (int, error) {
	n, err := tx.CountActiveInternships(ctx, slotID)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Available - свободные места. Никогда не бывает отрицательным.
func (l *CapacityLedger) Available(ctx context.Context, tx Tx, slot *Slot) (int, error) {
	occupied, err := l.Occupied(ctx, tx, slot.ID)
	if err != nil {
		return 0, err
	}
	return slot.Remaining(occupied), nil
}

// Availability - снимок занятости места. Вне транзакции записи носит
// справочный характер.
type Availability struct {
	SlotID     string     `json:"slot_id"`
	CompanyID  string     `json:"company_id"`
	WorkshopID string     `json:"workshop_id"`
	Status     SlotStatus `json:"status"`
	Capacity   int        `json:"capacity"`
	Occupied   int        `json:"occupied"`
	Available  int        `json:"available"`
	ComputedAt time.Time  `json:"computed_at"`
}

// Snapshot читает место и его занятость через переданную транзакцию.
func (l *CapacityLedger) Snapshot(ctx context.Context, tx Tx, slotID string) (*Availability, error) {
	slot, err := tx.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	occupied, err := l.Occupied(ctx, tx, slot.ID)
	if err != nil {
		return nil, err
	}
	return &Availability{
		SlotID:     slot.ID,
		CompanyID:  slot.CompanyID,
		WorkshopID: slot.WorkshopID,
		Status:     slot.Status,
		Capacity:   slot.Capacity,
		Occupied:   occupied,
		Available:  slot.Remaining(occupied),
		ComputedAt: time.Now().UTC(),
	}, nil
}

// TryReserve блокирует место, заново считает занятость и резервирует n мест
// целиком или не резервирует ничего.
func (l *CapacityLedger) TryReserve(ctx context.Context, tx Tx, slotID string, n int) (*Reservation, error) {
	if n <= 0 {
		return nil, shared.NewDomainError("ledger", "TryReserve", shared.ErrValueOutOfRange, "reservation size must be positive")
	}
	slot, err := tx.LockSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	occupied, err := l.Occupied(ctx, tx, slotID)
	if err != nil {
		return nil, err
	}
	if occupied+n > slot.Capacity {
		return nil, &shared.InsufficientCapacityError{
			SlotID:    slotID,
			Requested: n,
			Available: slot.Remaining(occupied),
		}
	}
	return &Reservation{slot: slot, units: n, occupiedBefore: occupied}, nil
}

// Reservation - резерв мест, действительный до конца транзакции.
type Reservation struct {
	slot           *Slot
	units          int
	occupiedBefore int
	fulfilled      bool
}

// Slot возвращает заблокированное место.
func (r *Reservation) Slot() *Slot { return r.slot }

// OccupiedAfter - занятость после фиксации резерва.
func (r *Reservation) OccupiedAfter() int { return r.occupiedBefore + r.units }

// Fulfil фиксирует резерв, создавая ровно Units стажировок на этом месте в той
// же транзакции.
func (r *Reservation) Fulfil(ctx context.Context, tx Tx, internships []*Internship) error {
	if r.fulfilled {
		return shared.NewDomainError("ledger", "Fulfil", shared.ErrInvalidInput, "reservation already fulfilled")
	}
	if len(internships) != r.units {
		return shared.NewDomainError("ledger", "Fulfil", shared.ErrInvalidInput,
			fmt.Sprintf("reservation holds %d seats, got %d internships", r.units, len(internships)))
	}
	for _, in := range internships {
		if in.SlotID != r.slot.ID || !in.State.OccupiesSeat() {
			return shared.NewDomainError("ledger", "Fulfil", shared.ErrInvalidInput,
				fmt.Sprintf("internship %s does not belong to slot %s", in.ID, r.slot.ID))
		}
		if err := tx.CreateInternship(ctx, in); err != nil {
			return err
		}
	}
	r.fulfilled = true
	return nil
}
