package placement

import (
	"time"

	"github.com/pasantias/plaza-hub/internal/domain/lifecycle"
	"github.com/pasantias/plaza-hub/internal/domain/shared"
)

// InternshipState - состояние стажировки (pasantía).
type InternshipState string

const (
	// InternshipPending - назначена, ещё не началась. Занимает место.
	InternshipPending InternshipState = "pending"
	// InternshipInProgress - идёт. Занимает место.
	InternshipInProgress InternshipState = "in_progress"
	// InternshipFinished - завершена. Место освобождено.
	InternshipFinished InternshipState = "finished"
	// InternshipCancelled - отменена. Место освобождено.
	InternshipCancelled InternshipState = "cancelled"
)

// InternshipLifecycle - таблица переходов стажировки.
var InternshipLifecycle = lifecycle.NewMachine(lifecycle.KindInternship, InternshipPending,
	lifecycle.Edge[InternshipState]{From: InternshipPending, To: InternshipInProgress},
	lifecycle.Edge[InternshipState]{From: InternshipInProgress, To: InternshipFinished},
	lifecycle.Edge[InternshipState]{From: InternshipPending, To: InternshipCancelled},
	lifecycle.Edge[InternshipState]{From: InternshipInProgress, To: InternshipCancelled},
)

// ActiveInternshipStates - состояния, которые занимают место.
var ActiveInternshipStates = []InternshipState{InternshipPending, InternshipInProgress}

// IsValid проверяет, что состояние известно.
func (s InternshipState) IsValid() bool {
	return InternshipLifecycle.Valid(s)
}

// OccupiesSeat - стажировка в этом состоянии занимает место.
func (s InternshipState) OccupiesSeat() bool {
	return InternshipLifecycle.Valid(s) && !InternshipLifecycle.Terminal(s)
}

// ReleasesSeat - переход в это состояние освобождает место: из него
// переходов нет.
func (s InternshipState) ReleasesSeat() bool {
	return InternshipLifecycle.Terminal(s)
}

// Internship - связующая сущность: студент, компания, место, руководитель.
// Ссылается на место напрямую.
type Internship struct {
	ID           string
	StudentID    string
	CompanyID    string
	SlotID       string
	SupervisorID string
	StartDate    time.Time
	EndDate      *time.Time
	State        InternshipState
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewInternshipParams - параметры создания стажировки.
type NewInternshipParams struct {
	ID           string
	StudentID    string
	Slot         *Slot
	SupervisorID string
	Period       shared.DateRange
}

// NewInternship создаёт стажировку в состоянии Pending. Вызывается только
// сервисом распределения внутри транзакции резервирования.
func NewInternship(p NewInternshipParams) (*Internship, error) {
	if p.ID == "" || p.StudentID == "" || p.Slot == nil {
		return nil, shared.NewDomainError("internship", "New", shared.ErrInvalidInput, "id, student and slot are required")
	}
	if !p.Period.IsValid() {
		return nil, shared.NewDomainError("internship", "New", shared.ErrInvalidInput, "invalid internship period")
	}
	now := time.Now().UTC()
	return &Internship{
		ID:           p.ID,
		StudentID:    p.StudentID,
		CompanyID:    p.Slot.CompanyID,
		SlotID:       p.Slot.ID,
		SupervisorID: p.SupervisorID,
		StartDate:    p.Period.Start,
		EndDate:      p.Period.End,
		State:        InternshipLifecycle.Initial(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Period возвращает период стажировки.
func (i *Internship) Period() shared.DateRange {
	return shared.DateRange{Start: i.StartDate, End: i.EndDate}
}

// DueToStart - стажировка ожидает начала, а дата начала наступила.
func (i *Internship) DueToStart(asOf time.Time) bool {
	return i.State == InternshipPending && i.Period().HasStarted(asOf)
}

// DueToFinish - стажировка идёт, а дата окончания прошла.
func (i *Internship) DueToFinish(asOf time.Time) bool {
	return i.State == InternshipInProgress && i.Period().HasEnded(asOf)
}
