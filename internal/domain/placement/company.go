package placement

import (
	"strings"
	"time"

	"github.com/pasantias/plaza-hub/internal/domain/lifecycle"
	"github.com/pasantias/plaza-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// WORKSHOP
// ══════════════════════════════════════════════════════════════════════════════

// Workshop - специальность (taller), к которой привязаны студенты и места.
// После появления ссылок изменяется только флаг Active.
type Workshop struct {
	ID                 string
	Name               string
	ProfessionalFamily string
	Active             bool
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPANY
// ══════════════════════════════════════════════════════════════════════════════

// ValidationStatus - статус проверки компании.
type ValidationStatus string

const (
	// CompanyPending - компания ожидает решения.
	CompanyPending ValidationStatus = "pending"
	// CompanyAccepted - компания может получать стажёров.
	CompanyAccepted ValidationStatus = "accepted"
	// CompanyRejected - компания отклонена.
	CompanyRejected ValidationStatus = "rejected"
)

// CompanyLifecycle - таблица переходов статуса компании.
var CompanyLifecycle = lifecycle.NewMachine(lifecycle.KindCompany, CompanyPending,
	lifecycle.Edge[ValidationStatus]{From: CompanyPending, To: CompanyAccepted},
	lifecycle.Edge[ValidationStatus]{From: CompanyPending, To: CompanyRejected},
	lifecycle.Edge[ValidationStatus]{From: CompanyAccepted, To: CompanyPending},
	lifecycle.Edge[ValidationStatus]{From: CompanyRejected, To: CompanyPending},
)

// IsValid проверяет, что статус известен.
func (s ValidationStatus) IsValid() bool {
	return CompanyLifecycle.Valid(s)
}

// IsDecision - статус является решением проверяющего.
func (s ValidationStatus) IsDecision() bool {
	return s == CompanyAccepted || s == CompanyRejected
}

// Company - компания-партнёр. Никогда не удаляется физически.
type Company struct {
	ID           string
	Name         string
	ContactEmail string
	Phone        string
	Address      string
	Validation   ValidationStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewCompanyParams - параметры регистрации компании.
type NewCompanyParams struct {
	ID           string
	Name         string
	ContactEmail string
	Phone        string
	Address      string
}

// NewCompany создаёт компанию в статусе Pending.
func NewCompany(p NewCompanyParams) (*Company, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, shared.NewDomainError("company", "New", shared.ErrInvalidID, "company id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, shared.NewDomainError("company", "New", shared.ErrEmptyValue, "company name is required")
	}
	now := time.Now().UTC()
	return &Company{
		ID:           p.ID,
		Name:         strings.TrimSpace(p.Name),
		ContactEmail: strings.TrimSpace(p.ContactEmail),
		Phone:        p.Phone,
		Address:      p.Address,
		Validation:   CompanyLifecycle.Initial(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CanHostInternships - только принятая компания получает новых стажёров.
func (c *Company) CanHostInternships() bool {
	return c.Validation == CompanyAccepted
}
