package query

import (
	"context"
	"errors"
	"strings"

	"github.com/pasantias/plaza-hub/internal/domain/placement"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK ELIGIBILITY QUERY
// Проверяет, подходит ли студент к месту по возрасту, полу и специальности.
// ══════════════════════════════════════════════════════════════════════════════

// CheckEligibilityQuery содержит параметры запроса.
type CheckEligibilityQuery struct {
	SlotID     string
	StudentIDs []string
}

// Validate проверяет корректность параметров запроса.
func (q CheckEligibilityQuery) Validate() error {
	if strings.TrimSpace(q.SlotID) == "" {
		return errors.New("slot_id is required")
	}
	if len(q.StudentIDs) == 0 {
		return errors.New("at least one student_id is required")
	}
	return nil
}

// EligibilityDTO - результат проверки одного студента.
type EligibilityDTO struct {
	StudentID string   `json:"student_id"`
	Eligible  bool     `json:"eligible"`
	Reasons   []string `json:"reasons,omitempty"`
}

// CheckEligibilityHandler обрабатывает запрос проверки допуска.
type CheckEligibilityHandler struct {
	txm placement.TxManager
}

// NewCheckEligibilityHandler создаёт обработчик.
func NewCheckEligibilityHandler(txm placement.TxManager) *CheckEligibilityHandler {
	return &CheckEligibilityHandler{txm: txm}
}

// Handle выполняет запрос. Результат справочный: занятость и повторные
// назначения здесь не проверяются.
func (h *CheckEligibilityHandler) Handle(ctx context.Context, q CheckEligibilityQuery) ([]EligibilityDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var out []EligibilityDTO
	err := h.txm.WithinReadTx(ctx, func(ctx context.Context, tx placement.Tx) error {
		slot, err := tx.GetSlot(ctx, q.SlotID)
		if err != nil {
			return err
		}
		students, err := tx.GetStudents(ctx, q.StudentIDs)
		if err != nil {
			return err
		}
		out = make([]EligibilityDTO, 0, len(students))
		for _, st := range students {
			v := placement.CheckEligibility(st, slot)
			dto := EligibilityDTO{StudentID: v.StudentID, Eligible: v.Eligible}
			for _, r := range v.Reasons {
				dto.Reasons = append(dto.Reasons, string(r))
			}
			out = append(out, dto)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
