package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pasantias/plaza-hub/internal/domain/lifecycle"
	"github.com/pasantias/plaza-hub/internal/domain/placement"
	"github.com/pasantias/plaza-hub/internal/domain/shared"
	"github.com/pasantias/plaza-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// PLACEMENT STORE
// ══════════════════════════════════════════════════════════════════════════════

// PlacementStore implements placement.TxManager and placement.InternshipFinder.
// Reservations on one slot serialize on SELECT ... FOR UPDATE of the slot row.
type PlacementStore struct {
	conn    *Connection
	retrier *retry.Retrier
}

// NewPlacementStore creates a store over an open connection. Transactions
// aborted by a deadlock or a serialization failure are retried.
func NewPlacementStore(conn *Connection) *PlacementStore {
	return &PlacementStore{
		conn:    conn,
		retrier: retry.DatabaseRetrier(IsTxConflict),
	}
}

var (
	_ placement.TxManager        = (*PlacementStore)(nil)
	_ placement.InternshipFinder = (*PlacementStore)(nil)
	_ placement.Tx               = (*pgTx)(nil)
)

// WithinTx implements placement.TxManager. A transaction aborted by a
// serialization failure or deadlock is rerun from the start, up to three
// attempts in all; the caller then receives the last attempt's error
// unchanged. Any other error, domain errors
// included, is returned after the first attempt.
func (s *PlacementStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx placement.Tx) error) error {
	return s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.run(ctx, readWrite, fn)
	})
}

// WithinReadTx implements placement.TxManager.
func (s *PlacementStore) WithinReadTx(ctx context.Context, fn func(ctx context.Context, tx placement.Tx) error) error {
	return s.run(ctx, readOnly, fn)
}

// run returns fn's error unchanged; begin and commit failures become
// repository errors.
func (s *PlacementStore) run(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, tx placement.Tx) error) error {
	tx, err := s.conn.begin(ctx, opts)
	if err != nil {
		return shared.NewRepositoryError("begin", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return shared.NewRepositoryError("commit", err)
	}
	return nil
}

// DueToStart implements placement.InternshipFinder.
func (s *PlacementStore) DueToStart(ctx context.Context, asOf time.Time, limit int) ([]*placement.Internship, error) {
	return s.due(ctx, `
		SELECT `+internshipColumns+`
		FROM internships
		WHERE state = 'pending' AND start_date <= $1
		ORDER BY start_date, id
		LIMIT $2
	`, asOf, limit)
}

// DueToFinish implements placement.InternshipFinder.
func (s *PlacementStore) DueToFinish(ctx context.Context, asOf time.Time, limit int) ([]*placement.Internship, error) {
	return s.due(ctx, `
		SELECT `+internshipColumns+`
		FROM internships
		WHERE state = 'in_progress' AND end_date IS NOT NULL AND end_date < $1
		ORDER BY start_date, id
		LIMIT $2
	`, asOf, limit)
}

func (s *PlacementStore) due(ctx context.Context, query string, asOf time.Time, limit int) ([]*placement.Internship, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.conn.Query(ctx, query, shared.Day(asOf), limit)
	if err != nil {
		return nil, shared.NewRepositoryError("due_internships", err)
	}
	defer rows.Close()

	var out []*placement.Internship
	for rows.Next() {
		in, err := scanInternship(rows)
		if err != nil {
			return nil, shared.NewRepositoryError("due_internships", err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.NewRepositoryError("due_internships", err)
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TX
// ══════════════════════════════════════════════════════════════════════════════

type pgTx struct {
	tx pgx.Tx
}

// ─────────────────────────────────────────────────────────────────────────────
// Slots & companies
// ─────────────────────────────────────────────────────────────────────────────

const slotColumns = `id, company_id, workshop_id, capacity, min_age, allowed_gender, status, created_at, updated_at`

func scanSlot(row pgx.Row) (*placement.Slot, error) {
	var (
		sl     placement.Slot
		gender string
		status string
	)
	err := row.Scan(&sl.ID, &sl.CompanyID, &sl.WorkshopID, &sl.Capacity, &sl.MinAge,
		&gender, &status, &sl.CreatedAt, &sl.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sl.AllowedGender = shared.Gender(gender)
	sl.Status = placement.SlotStatus(status)
	return &sl, nil
}

func (t *pgTx) LockSlot(ctx context.Context, slotID string) (*placement.Slot, error) {
	sl, err := scanSlot(t.tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR UPDATE`, slotID))
	if err != nil {
		return nil, notFoundOr("lock_slot", "slot", slotID, err)
	}
	return sl, nil
}

func (t *pgTx) GetSlot(ctx context.Context, slotID string) (*placement.Slot, error) {
	sl, err := scanSlot(t.tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, slotID))
	if err != nil {
		return nil, notFoundOr("get_slot", "slot", slotID, err)
	}
	return sl, nil
}

func (t *pgTx) GetCompany(ctx context.Context, companyID string) (*placement.Company, error) {
	var (
		c          placement.Company
		validation string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, contact_email, phone, address, validation, created_at, updated_at
		FROM companies WHERE id = $1
	`, companyID).Scan(&c.ID, &c.Name, &c.ContactEmail, &c.Phone, &c.Address,
		&validation, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, notFoundOr("get_company", "company", companyID, err)
	}
	c.Validation = placement.ValidationStatus(validation)
	return &c, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Students & documents
// ─────────────────────────────────────────────────────────────────────────────

func (t *pgTx) GetStudents(ctx context.Context, ids []string) ([]*placement.Student, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, full_name, workshop_id, age, gender
		FROM students WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, shared.NewRepositoryError("get_students", err)
	}
	defer rows.Close()

	byID := make(map[string]*placement.Student, len(ids))
	for rows.Next() {
		var (
			st     placement.Student
			gender string
		)
		if err := rows.Scan(&st.ID, &st.FullName, &st.WorkshopID, &st.Age, &gender); err != nil {
			return nil, shared.NewRepositoryError("get_students", err)
		}
		st.Gender = shared.Gender(gender)
		byID[st.ID] = &st
	}
	if err := rows.Err(); err != nil {
		return nil, shared.NewRepositoryError("get_students", err)
	}

	out := make([]*placement.Student, 0, len(ids))
	for _, id := range ids {
		st, ok := byID[id]
		if !ok {
			return nil, shared.NewNotFound("student", id)
		}
		out = append(out, st)
	}
	return out, nil
}

func (t *pgTx) GetDocumentBundle(ctx context.Context, studentID string) (*placement.DocumentBundle, error) {
	var (
		b       placement.DocumentBundle
		present []byte
		review  string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT student_id, present, review, updated_at
		FROM document_bundles WHERE student_id = $1
	`, studentID).Scan(&b.StudentID, &present, &review, &b.UpdatedAt)
	if err != nil {
		return nil, notFoundOr("get_document_bundle", "document", studentID, err)
	}
	if err := json.Unmarshal(present, &b.Present); err != nil {
		return nil, shared.NewRepositoryError("get_document_bundle", err)
	}
	b.Review = placement.ReviewStatus(review)
	return &b, nil
}

func (t *pgTx) SetDocumentPresence(ctx context.Context, studentID string, doc placement.DocumentType, present bool) error {
	if !doc.IsValid() {
		return shared.NewDomainError("postgres", "SetDocumentPresence", shared.ErrInvalidInput,
			"unknown document type "+string(doc))
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE document_bundles
		SET present = jsonb_set(present, ARRAY[$2::text], to_jsonb($3::boolean)), updated_at = NOW()
		WHERE student_id = $1
	`, studentID, string(doc), present)
	if err != nil {
		return shared.NewRepositoryError("set_document_presence", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFound("document", studentID)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internships
// ─────────────────────────────────────────────────────────────────────────────

const internshipColumns = `id, student_id, company_id, slot_id, supervisor_id, start_date, end_date, state, created_at, updated_at`

// activeStates must match placement.ActiveInternshipStates.
const activeStates = `('pending', 'in_progress')`

func scanInternship(row pgx.Row) (*placement.Internship, error) {
	var (
		in    placement.Internship
		state string
	)
	err := row.Scan(&in.ID, &in.StudentID, &in.CompanyID, &in.SlotID, &in.SupervisorID,
		&in.StartDate, &in.EndDate, &state, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, err
	}
	in.State = placement.InternshipState(state)
	return &in, nil
}

func (t *pgTx) CountActiveInternships(ctx context.Context, slotID string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT count(*) FROM internships WHERE slot_id = $1 AND state IN `+activeStates,
		slotID).Scan(&n)
	if err != nil {
		return 0, shared.NewRepositoryError("count_active_internships", err)
	}
	return n, nil
}

func (t *pgTx) ActiveHoldersAtSlot(ctx context.Context, slotID string, studentIDs []string) ([]string, error) {
	return t.studentIDs(ctx, "active_holders_at_slot", `
		SELECT DISTINCT student_id FROM internships
		WHERE slot_id = $1 AND student_id = ANY($2) AND state IN `+activeStates+`
		ORDER BY student_id
	`, slotID, studentIDs)
}

func (t *pgTx) StudentsWithActiveInternship(ctx context.Context, studentIDs []string) ([]string, error) {
	return t.studentIDs(ctx, "students_with_active_internship", `
		SELECT DISTINCT student_id FROM internships
		WHERE student_id = ANY($1) AND state IN `+activeStates+`
		ORDER BY student_id
	`, studentIDs)
}

func (t *pgTx) studentIDs(ctx context.Context, op, query string, args ...interface{}) ([]string, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.NewRepositoryError(op, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, shared.NewRepositoryError(op, err)
	}
	return ids, nil
}

func (t *pgTx) CreateInternship(ctx context.Context, in *placement.Internship) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO internships (`+internshipColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, in.ID, in.StudentID, in.CompanyID, in.SlotID, in.SupervisorID,
		in.StartDate, in.EndDate, string(in.State), in.CreatedAt, in.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("postgres", "CreateInternship", shared.ErrAlreadyExists,
				"internship "+in.ID+" already exists")
		}
		if kind, ok := fkTarget(err); ok {
			return shared.NewNotFound(kind, fkID(in, kind))
		}
		return shared.NewRepositoryError("create_internship", err)
	}
	return nil
}

func (t *pgTx) GetInternship(ctx context.Context, id string) (*placement.Internship, error) {
	in, err := scanInternship(t.tx.QueryRow(ctx, `SELECT `+internshipColumns+` FROM internships WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr("get_internship", string(lifecycle.KindInternship), id, err)
	}
	return in, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// stateColumn locates the state of each entity kind.
type stateColumn struct {
	table  string
	key    string
	column string
}

var stateColumns = map[lifecycle.Kind]stateColumn{
	lifecycle.KindCompany:    {table: "companies", key: "id", column: "validation"},
	lifecycle.KindDocument:   {table: "document_bundles", key: "student_id", column: "review"},
	lifecycle.KindInternship: {table: "internships", key: "id", column: "state"},
	lifecycle.KindSlot:       {table: "slots", key: "id", column: "status"},
}

func columnFor(kind lifecycle.Kind) (stateColumn, error) {
	c, ok := stateColumns[kind]
	if !ok {
		return stateColumn{}, shared.NewDomainError("postgres", "EntityState", shared.ErrInvalidInput,
			"unknown kind "+string(kind))
	}
	return c, nil
}

func (t *pgTx) GetEntityState(ctx context.Context, kind lifecycle.Kind, id string) (lifecycle.State, error) {
	c, err := columnFor(kind)
	if err != nil {
		return "", err
	}
	var state string
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, c.column, c.table, c.key)
	if err := t.tx.QueryRow(ctx, query, id).Scan(&state); err != nil {
		return "", notFoundOr("get_entity_state", string(kind), id, err)
	}
	return lifecycle.State(state), nil
}

func (t *pgTx) SetEntityState(ctx context.Context, kind lifecycle.Kind, id string, expectedFrom, to lifecycle.State) (bool, error) {
	c, err := columnFor(kind)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`UPDATE %s SET %s = $3, updated_at = NOW() WHERE %s = $1 AND %s = $2`,
		c.table, c.column, c.key, c.column)
	tag, err := t.tx.Exec(ctx, query, id, string(expectedFrom), string(to))
	if err != nil {
		return false, shared.NewRepositoryError("set_entity_state", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	// Nothing updated: either the entity is gone or its state moved on.
	if _, err := t.GetEntityState(ctx, kind, id); err != nil {
		return false, err
	}
	return false, nil
}

func fkID(in *placement.Internship, kind string) string {
	switch kind {
	case "student":
		return in.StudentID
	case "slot":
		return in.SlotID
	}
	return in.CompanyID
}

func notFoundOr(op, kind, id string, err error) error {
	if IsNoRows(err) {
		return shared.NewNotFound(kind, id)
	}
	return shared.NewRepositoryError(op, err)
}
