package placement

import (
	"sort"
	"time"

	"github.com/pasantias/plaza-hub/internal/domain/lifecycle"
	"github.com/pasantias/plaza-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student - студент. Данными владеет внешний сервис учёта студентов,
// здесь они только читаются.
type Student struct {
	ID         string
	FullName   string
	WorkshopID string
	Age        int
	Gender     shared.Gender
}

// ══════════════════════════════════════════════════════════════════════════════
// DOCUMENT BUNDLE
// ══════════════════════════════════════════════════════════════════════════════

// DocumentType - один из семи именованных документов пакета.
type DocumentType string

const (
	DocNationalID            DocumentType = "national_id"
	DocBirthCertificate      DocumentType = "birth_certificate"
	DocMedicalCertificate    DocumentType = "medical_certificate"
	DocParentalConsent       DocumentType = "parental_consent"
	DocInsurancePolicy       DocumentType = "insurance_policy"
	DocEnrollmentCertificate DocumentType = "enrollment_certificate"
	DocInternshipAgreement   DocumentType = "internship_agreement"
)

// AllDocumentTypes - полный набор документов в фиксированном порядке.
var AllDocumentTypes = []DocumentType{
	DocNationalID,
	DocBirthCertificate,
	DocMedicalCertificate,
	DocParentalConsent,
	DocInsurancePolicy,
	DocEnrollmentCertificate,
	DocInternshipAgreement,
}

// IsValid проверяет, что тип документа известен.
func (d DocumentType) IsValid() bool {
	for _, t := range AllDocumentTypes {
		if t == d {
			return true
		}
	}
	return false
}

// ReviewStatus - общий статус проверки пакета документов.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewSeen     ReviewStatus = "seen"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// DocumentLifecycle - таблица переходов статуса проверки документов.
var DocumentLifecycle = lifecycle.NewMachine(lifecycle.KindDocument, ReviewPending,
	lifecycle.Edge[ReviewStatus]{From: ReviewPending, To: ReviewSeen},
	lifecycle.Edge[ReviewStatus]{From: ReviewSeen, To: ReviewApproved},
	lifecycle.Edge[ReviewStatus]{From: ReviewSeen, To: ReviewRejected},
	lifecycle.Edge[ReviewStatus]{From: ReviewApproved, To: ReviewPending},
	lifecycle.Edge[ReviewStatus]{From: ReviewRejected, To: ReviewPending},
)

// IsValid проверяет, что статус известен.
func (s ReviewStatus) IsValid() bool {
	return DocumentLifecycle.Valid(s)
}

// IsDecision - статус является решением проверяющего.
func (s ReviewStatus) IsDecision() bool {
	return s == ReviewApproved || s == ReviewRejected
}

// DocumentBundle - пакет документов студента. Создаётся вместе со студентом.
// Статус проверки относится ко всему пакету, а не к отдельным документам.
type DocumentBundle struct {
	StudentID string
	Present   map[DocumentType]bool
	Review    ReviewStatus
	UpdatedAt time.Time
}

// NewDocumentBundle создаёт пустой пакет в статусе Pending.
func NewDocumentBundle(studentID string) *DocumentBundle {
	return &DocumentBundle{
		StudentID: studentID,
		Present:   make(map[DocumentType]bool, len(AllDocumentTypes)),
		Review:    DocumentLifecycle.Initial(),
		UpdatedAt: time.Now().UTC(),
	}
}

// SetPresence отмечает документ как загруженный или удалённый.
func (b *DocumentBundle) SetPresence(doc DocumentType, present bool) error {
	if !doc.IsValid() {
		return shared.NewDomainError("document", "SetPresence", shared.ErrInvalidInput, "unknown document type "+string(doc))
	}
	if b.Present == nil {
		b.Present = make(map[DocumentType]bool, len(AllDocumentTypes))
	}
	b.Present[doc] = present
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// Missing возвращает отсутствующие документы в фиксированном порядке.
func (b *DocumentBundle) Missing() []DocumentType {
	var missing []DocumentType
	for _, t := range AllDocumentTypes {
		if !b.Present[t] {
			missing = append(missing, t)
		}
	}
	return missing
}

// Complete - загружены все семь документов.
func (b *DocumentBundle) Complete() bool {
	return len(b.Missing()) == 0
}

// PresentTypes возвращает загруженные документы по алфавиту.
func (b *DocumentBundle) PresentTypes() []DocumentType {
	out := make([]DocumentType, 0, len(b.Present))
	for t, ok := range b.Present {
		if ok {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
