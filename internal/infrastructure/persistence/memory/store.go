// Package memory provides an in-process implementation of the placement
// repository. Transactions are serialized by a single lock and applied to a
// private copy of the data that is swapped in on commit, so a failed
// transaction leaves no trace.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/pasantias/plaza-hub/internal/domain/lifecycle"
	"github.com/pasantias/plaza-hub/internal/domain/placement"
	"github.com/pasantias/plaza-hub/internal/domain/shared"
)

// ErrReadOnly is returned when a write is attempted inside WithinReadTx.
var ErrReadOnly = errors.New("memory: write in read-only transaction")

type data struct {
	workshops   map[string]placement.Workshop
	companies   map[string]placement.Company
	slots       map[string]placement.Slot
	students    map[string]placement.Student
	bundles     map[string]placement.DocumentBundle
	internships map[string]placement.Internship
}

func newData() *data {
	return &data{
		workshops:   make(map[string]placement.Workshop),
		companies:   make(map[string]placement.Company),
		slots:       make(map[string]placement.Slot),
		students:    make(map[string]placement.Student),
		bundles:     make(map[string]placement.DocumentBundle),
		internships: make(map[string]placement.Internship),
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.workshops {
		c.workshops[k] = v
	}
	for k, v := range d.companies {
		c.companies[k] = v
	}
	for k, v := range d.slots {
		c.slots[k] = v
	}
	for k, v := range d.students {
		c.students[k] = v
	}
	for k, v := range d.bundles {
		c.bundles[k] = copyBundle(v)
	}
	for k, v := range d.internships {
		c.internships[k] = v
	}
	return c
}

func copyBundle(b placement.DocumentBundle) placement.DocumentBundle {
	present := make(map[placement.DocumentType]bool, len(b.Present))
	for k, v := range b.Present {
		present[k] = v
	}
	b.Present = present
	return b
}

// Store is a mutex-guarded placement repository.
type Store struct {
	mu   sync.RWMutex
	data *data
	now  func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: newData(), now: func() time.Time { return time.Now().UTC() }}
}

// ══════════════════════════════════════════════════════════════════════════════
// SEEDING
// ══════════════════════════════════════════════════════════════════════════════

// PutWorkshop inserts or replaces a workshop.
func (s *Store) PutWorkshop(w placement.Workshop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.workshops[w.ID] = w
}

// PutCompany inserts or replaces a company.
func (s *Store) PutCompany(c placement.Company) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.companies[c.ID] = c
}

// PutSlot inserts or replaces a slot.
func (s *Store) PutSlot(sl placement.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.slots[sl.ID] = sl
}

// PutStudent inserts or replaces a student and creates an empty document
// bundle when none exists.
func (s *Store) PutStudent(st placement.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.students[st.ID] = st
	if _, ok := s.data.bundles[st.ID]; !ok {
		s.data.bundles[st.ID] = *placement.NewDocumentBundle(st.ID)
	}
}

// PutInternship inserts or replaces an internship without capacity checks.
// Used to load fixtures.
func (s *Store) PutInternship(in placement.Internship) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.internships[in.ID] = in
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTIONS
// ══════════════════════════════════════════════════════════════════════════════

// WithinTx implements placement.TxManager.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx placement.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{data: s.data.clone(), now: s.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

// WithinReadTx implements placement.TxManager.
func (s *Store) WithinReadTx(ctx context.Context, fn func(ctx context.Context, tx placement.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, &memTx{data: s.data, readOnly: true, now: s.now})
}

// DueToStart implements placement.InternshipFinder.
func (s *Store) DueToStart(ctx context.Context, asOf time.Time, limit int) ([]*placement.Internship, error) {
	return s.due(ctx, limit, func(in *placement.Internship) bool { return in.DueToStart(asOf) })
}

// DueToFinish implements placement.InternshipFinder.
func (s *Store) DueToFinish(ctx context.Context, asOf time.Time, limit int) ([]*placement.Internship, error) {
	return s.due(ctx, limit, func(in *placement.Internship) bool { return in.DueToFinish(asOf) })
}

func (s *Store) due(ctx context.Context, limit int, match func(*placement.Internship) bool) ([]*placement.Internship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*placement.Internship
	for _, in := range s.data.internships {
		in := in
		if match(&in) {
			out = append(out, &in)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TX
// ══════════════════════════════════════════════════════════════════════════════

type memTx struct {
	data     *data
	readOnly bool
	now      func() time.Time
}

func (t *memTx) writable() error {
	if t.readOnly {
		return &shared.RepositoryError{Op: "write", Err: ErrReadOnly}
	}
	return nil
}

func (t *memTx) LockSlot(ctx context.Context, slotID string) (*placement.Slot, error) {
	// The store lock is already held for the whole transaction.
	return t.GetSlot(ctx, slotID)
}

func (t *memTx) GetSlot(_ context.Context, slotID string) (*placement.Slot, error) {
	sl, ok := t.data.slots[slotID]
	if !ok {
		return nil, shared.NewNotFound(string(lifecycle.KindSlot), slotID)
	}
	return &sl, nil
}

func (t *memTx) GetCompany(_ context.Context, companyID string) (*placement.Company, error) {
	c, ok := t.data.companies[companyID]
	if !ok {
		return nil, shared.NewNotFound(string(lifecycle.KindCompany), companyID)
	}
	return &c, nil
}

func (t *memTx) GetStudents(_ context.Context, ids []string) ([]*placement.Student, error) {
	out := make([]*placement.Student, 0, len(ids))
	for _, id := range ids {
		st, ok := t.data.students[id]
		if !ok {
			return nil, shared.NewNotFound("student", id)
		}
		out = append(out, &st)
	}
	return out, nil
}

func (t *memTx) GetDocumentBundle(_ context.Context, studentID string) (*placement.DocumentBundle, error) {
	b, ok := t.data.bundles[studentID]
	if !ok {
		return nil, shared.NewNotFound(string(lifecycle.KindDocument), studentID)
	}
	b = copyBundle(b)
	return &b, nil
}

func (t *memTx) SetDocumentPresence(_ context.Context, studentID string, doc placement.DocumentType, present bool) error {
	if err := t.writable(); err != nil {
		return err
	}
	b, ok := t.data.bundles[studentID]
	if !ok {
		return shared.NewNotFound(string(lifecycle.KindDocument), studentID)
	}
	if err := b.SetPresence(doc, present); err != nil {
		return err
	}
	t.data.bundles[studentID] = b
	return nil
}

func (t *memTx) CountActiveInternships(_ context.Context, slotID string) (int, error) {
	n := 0
	for _, in := range t.data.internships {
		if in.SlotID == slotID && in.State.OccupiesSeat() {
			n++
		}
	}
	return n, nil
}

func (t *memTx) ActiveHoldersAtSlot(_ context.Context, slotID string, studentIDs []string) ([]string, error) {
	return t.holders(studentIDs, func(in placement.Internship) bool { return in.SlotID == slotID }), nil
}

func (t *memTx) StudentsWithActiveInternship(_ context.Context, studentIDs []string) ([]string, error) {
	return t.holders(studentIDs, func(placement.Internship) bool { return true }), nil
}

func (t *memTx) holders(studentIDs []string, match func(placement.Internship) bool) []string {
	wanted := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		wanted[id] = true
	}
	found := make(map[string]bool)
	for _, in := range t.data.internships {
		if wanted[in.StudentID] && in.State.OccupiesSeat() && match(in) {
			found[in.StudentID] = true
		}
	}
	var out []string
	for _, id := range studentIDs {
		if found[id] {
			out = append(out, id)
			delete(found, id)
		}
	}
	return out
}

func (t *memTx) CreateInternship(_ context.Context, in *placement.Internship) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, exists := t.data.internships[in.ID]; exists {
		return &shared.RepositoryError{Op: "create internship", Err: shared.ErrAlreadyExists}
	}
	t.data.internships[in.ID] = *in
	return nil
}

func (t *memTx) GetInternship(_ context.Context, id string) (*placement.Internship, error) {
	in, ok := t.data.internships[id]
	if !ok {
		return nil, shared.NewNotFound(string(lifecycle.KindInternship), id)
	}
	return &in, nil
}

func (t *memTx) GetEntityState(_ context.Context, kind lifecycle.Kind, id string) (lifecycle.State, error) {
	switch kind {
	case lifecycle.KindCompany:
		if c, ok := t.data.companies[id]; ok {
			return lifecycle.State(c.Validation), nil
		}
	case lifecycle.KindDocument:
		if b, ok := t.data.bundles[id]; ok {
			return lifecycle.State(b.Review), nil
		}
	case lifecycle.KindInternship:
		if in, ok := t.data.internships[id]; ok {
			return lifecycle.State(in.State), nil
		}
	case lifecycle.KindSlot:
		if sl, ok := t.data.slots[id]; ok {
			return lifecycle.State(sl.Status), nil
		}
	default:
		return "", shared.NewDomainError("memory", "GetEntityState", shared.ErrInvalidInput, "unknown kind "+string(kind))
	}
	return "", shared.NewNotFound(string(kind), id)
}

func (t *memTx) SetEntityState(ctx context.Context, kind lifecycle.Kind, id string, expectedFrom, to lifecycle.State) (bool, error) {
	if err := t.writable(); err != nil {
		return false, err
	}
	current, err := t.GetEntityState(ctx, kind, id)
	if err != nil {
		return false, err
	}
	if current != expectedFrom {
		return false, nil
	}
	now := t.now()
	switch kind {
	case lifecycle.KindCompany:
		c := t.data.companies[id]
		c.Validation, c.UpdatedAt = placement.ValidationStatus(to), now
		t.data.companies[id] = c
	case lifecycle.KindDocument:
		b := t.data.bundles[id]
		b.Review, b.UpdatedAt = placement.ReviewStatus(to), now
		t.data.bundles[id] = b
	case lifecycle.KindInternship:
		in := t.data.internships[id]
		in.State, in.UpdatedAt = placement.InternshipState(to), now
		t.data.internships[id] = in
	case lifecycle.KindSlot:
		sl := t.data.slots[id]
		sl.Status, sl.UpdatedAt = placement.SlotStatus(to), now
		t.data.slots[id] = sl
	}
	return true, nil
}

var (
	_ placement.TxManager        = (*Store)(nil)
	_ placement.InternshipFinder = (*Store)(nil)
	_ placement.Tx               = (*memTx)(nil)
)
