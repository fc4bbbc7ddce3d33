package placement

import (
	"context"
	"time"

	"github.com/pasantias/plaza-hub/internal/domain/lifecycle"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION
// ══════════════════════════════════════════════════════════════════════════════

// Tx - операции репозитория, выполняемые в рамках одной транзакции.
// Отсутствующие сущности возвращаются как *shared.EntityNotFoundError,
// сбои хранилища - как *shared.RepositoryError.
type Tx interface {
	// ─────────────────────────────────────────────────────────────────────────
	// Slots & companies
	// ─────────────────────────────────────────────────────────────────────────

	// LockSlot читает место и блокирует его до конца транзакции.
	// Все резервирования одного места сериализуются через эту блокировку.
	LockSlot(ctx context.Context, slotID string) (*Slot, error)

	// GetSlot читает место без блокировки.
	GetSlot(ctx context.Context, slotID string) (*Slot, error)

	// GetCompany возвращает компанию.
	GetCompany(ctx context.Context, companyID string) (*Company, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Students & documents
	// ─────────────────────────────────────────────────────────────────────────

	// GetStudents возвращает студентов в порядке ids. Если хотя бы один
	// не найден, возвращается ошибка по первому отсутствующему.
	GetStudents(ctx context.Context, ids []string) ([]*Student, error)

	// GetDocumentBundle возвращает пакет документов студента.
	GetDocumentBundle(ctx context.Context, studentID string) (*DocumentBundle, error)

	// SetDocumentPresence отмечает наличие документа.
	SetDocumentPresence(ctx context.Context, studentID string, doc DocumentType, present bool) error

	// ─────────────────────────────────────────────────────────────────────────
	// Internships
	// ─────────────────────────────────────────────────────────────────────────

	// CountActiveInternships - занятость места в текущей транзакции.
	CountActiveInternships(ctx context.Context, slotID string) (int, error)

	// ActiveHoldersAtSlot возвращает тех из studentIDs, у кого уже есть
	// незавершённая стажировка на этом месте.
	ActiveHoldersAtSlot(ctx context.Context, slotID string, studentIDs []string) ([]string, error)

	// StudentsWithActiveInternship возвращает тех из studentIDs, у кого есть
	// незавершённая стажировка на любом месте.
	StudentsWithActiveInternship(ctx context.Context, studentIDs []string) ([]string, error)

	// CreateInternship сохраняет новую стажировку.
	CreateInternship(ctx context.Context, in *Internship) error

	// GetInternship возвращает стажировку.
	GetInternship(ctx context.Context, id string) (*Internship, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Lifecycle
	// ─────────────────────────────────────────────────────────────────────────

	// GetEntityState возвращает сохранённое состояние сущности.
	GetEntityState(ctx context.Context, kind lifecycle.Kind, id string) (lifecycle.State, error)

	// SetEntityState записывает to, только если текущее состояние равно
	// expectedFrom. Возвращает false, если запись не произошла.
	SetEntityState(ctx context.Context, kind lifecycle.Kind, id string, expectedFrom, to lifecycle.State) (bool, error)
}

// TxManager запускает функцию в транзакции. Ошибка fn откатывает транзакцию
// и возвращается без изменений.
type TxManager interface {
	// WithinTx - транзакция на чтение и запись.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// WithinReadTx - транзакция только на чтение, для отображения.
	WithinReadTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// ══════════════════════════════════════════════════════════════════════════════
// FINDER
// ══════════════════════════════════════════════════════════════════════════════

// InternshipFinder - выборки для планировщика жизненного цикла.
type InternshipFinder interface {
	// DueToStart - стажировки в Pending с датой начала не позже asOf.
	DueToStart(ctx context.Context, asOf time.Time, limit int) ([]*Internship, error)

	// DueToFinish - стажировки в InProgress с датой окончания раньше asOf.
	DueToFinish(ctx context.Context, asOf time.Time, limit int) ([]*Internship, error)
}

// Lifecycles возвращает реестр таблиц переходов всех видов сущностей.
func Lifecycles() lifecycle.Registry {
	return lifecycle.NewRegistry(
		CompanyLifecycle,
		DocumentLifecycle,
		InternshipLifecycle,
		SlotLifecycle,
	)
}
