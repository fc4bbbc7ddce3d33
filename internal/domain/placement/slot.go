package placement

import (
	"strings"
	"time"

	"github.com/pasantias/plaza-hub/internal/domain/lifecycle"
	"github.com/pasantias/plaza-hub/internal/domain/shared"
)

// SlotStatus - состояние места.
type SlotStatus string

const (
	SlotActive   SlotStatus = "active"
	SlotInactive SlotStatus = "inactive"
)

// SlotLifecycle - таблица переходов места. Повторная активация не сверяется
// с текущими занятыми местами: занятость всегда пересчитывается.
var SlotLifecycle = lifecycle.NewMachine(lifecycle.KindSlot, SlotActive,
	lifecycle.Edge[SlotStatus]{From: SlotActive, To: SlotInactive},
	lifecycle.Edge[SlotStatus]{From: SlotInactive, To: SlotActive},
)

// IsValid проверяет, что статус известен.
func (s SlotStatus) IsValid() bool {
	return SlotLifecycle.Valid(s)
}

// Slot - место (plaza): пара компания + специальность с конечной вместимостью.
// Занятость в структуре не хранится, её считает CapacityLedger.
type Slot struct {
	ID            string
	CompanyID     string
	WorkshopID    string
	Capacity      int
	MinAge        *int
	AllowedGender shared.Gender
	Status        SlotStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewSlotParams - параметры создания места.
type NewSlotParams struct {
	ID            string
	CompanyID     string
	WorkshopID    string
	Capacity      int
	MinAge        *int
	AllowedGender shared.Gender
}

// NewSlot создаёт активное место.
func NewSlot(p NewSlotParams) (*Slot, error) {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return nil, shared.NewDomainError("slot", "New", shared.ErrInvalidID, "slot id is required")
	case p.CompanyID == "" || p.WorkshopID == "":
		return nil, shared.NewDomainError("slot", "New", shared.ErrInvalidInput, "company and workshop are required")
	case p.Capacity <= 0:
		return nil, shared.NewDomainError("slot", "New", shared.ErrValueOutOfRange, "capacity must be positive")
	case p.MinAge != nil && *p.MinAge < 0:
		return nil, shared.NewDomainError("slot", "New", shared.ErrValueOutOfRange, "minimum age cannot be negative")
	}
	gender := p.AllowedGender
	if gender == "" {
		gender = shared.GenderAny
	}
	if !gender.IsValid() {
		return nil, shared.NewDomainError("slot", "New", shared.ErrInvalidInput, "unknown allowed gender")
	}
	now := time.Now().UTC()
	return &Slot{
		ID:            p.ID,
		CompanyID:     p.CompanyID,
		WorkshopID:    p.WorkshopID,
		Capacity:      p.Capacity,
		MinAge:        p.MinAge,
		AllowedGender: gender,
		Status:        SlotLifecycle.Initial(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// IsActive - место открыто для новых назначений.
func (s *Slot) IsActive() bool {
	return s.Status == SlotActive
}

// Remaining возвращает свободные места при заданной занятости, не меньше нуля.
// Вместимость могли уменьшить ниже занятости вручную.
func (s *Slot) Remaining(occupied int) int {
	if free := s.Capacity - occupied; free > 0 {
		return free
	}
	return 0
}
