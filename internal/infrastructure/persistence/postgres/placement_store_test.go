package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasantias/plaza-hub/internal/domain/lifecycle"
	"github.com/pasantias/plaza-hub/internal/domain/placement"
	"github.com/pasantias/plaza-hub/internal/domain/shared"
	"github.com/pasantias/plaza-hub/pkg/retry"
)

func TestGetMigrations(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)

	names := map[string]bool{}
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version, "versions are contiguous")
		assert.NotEmpty(t, m.UpSQL, m.Name)
		assert.NotEmpty(t, m.DownSQL, m.Name)
		assert.False(t, names[m.Name], "duplicate name %s", m.Name)
		names[m.Name] = true
	}
}

func TestConfig_PoolConfig(t *testing.T) {
	pc, err := DefaultConfig().PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, "plazahub", pc.ConnConfig.Database)
	assert.Equal(t, "plazahub", pc.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, 10*time.Second, pc.ConnConfig.ConnectTimeout)

	cfg := DefaultConfig()
	cfg.URL = "postgres://plaza:secret@db:5433/plazas?sslmode=disable"
	cfg.MaxConns = 0
	pc, err = cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, "db", pc.ConnConfig.Host)
	assert.Equal(t, uint16(5433), pc.ConnConfig.Port)
	assert.Equal(t, "plazas", pc.ConnConfig.Database)
	assert.Equal(t, "plaza", pc.ConnConfig.User)
	assert.Greater(t, pc.MaxConns, int32(0), "zero keeps the pgx default")

	cfg.URL = "postgres://%zz"
	_, err = cfg.PoolConfig()
	assert.Error(t, err)
}

func TestConnection_Closed(t *testing.T) {
	conn := &Connection{}
	conn.Close()
	conn.Close()
	ctx := context.Background()

	assert.ErrorIs(t, conn.Ping(ctx), ErrConnectionClosed)
	assert.ErrorIs(t, conn.Ready(ctx), ErrConnectionClosed)
	_, err := conn.Exec(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrConnectionClosed)

	err = NewPlacementStore(conn).WithinTx(ctx, func(context.Context, placement.Tx) error {
		t.Fatal("must not run")
		return nil
	})
	assert.ErrorIs(t, err, shared.ErrRepository)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestCheckPool(t *testing.T) {
	assert.NoError(t, checkPool(3, 10))
	assert.NoError(t, checkPool(0, 0))
	err := checkPool(10, 10)
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.EqualError(t, err, "postgres: connection pool exhausted: 10/10 acquired")
}

func TestErrorClassifiers(t *testing.T) {
	pgErr := func(code string) error {
		return fmt.Errorf("exec: %w", &pgconn.PgError{Code: code})
	}

	assert.True(t, IsTxConflict(pgErr("40001")))
	assert.True(t, IsTxConflict(pgErr("40P01")))
	assert.True(t, IsTxConflict(shared.NewRepositoryError("commit", pgErr("40001"))))
	assert.False(t, IsTxConflict(pgErr("23505")))
	assert.False(t, IsTxConflict(errors.New("plain")))

	assert.True(t, IsUniqueViolation(pgErr("23505")))
	assert.False(t, IsUniqueViolation(pgErr("23503")))
	assert.True(t, IsNoRows(fmt.Errorf("scan: %w", pgx.ErrNoRows)))
}

func TestFKTarget(t *testing.T) {
	fk := func(constraint string) error {
		return &pgconn.PgError{Code: "23503", ConstraintName: constraint}
	}
	tests := []struct {
		err  error
		kind string
		ok   bool
	}{
		{fk("internships_student_id_fkey"), "student", true},
		{fk("internships_slot_id_fkey"), "slot", true},
		{fk("internships_company_id_fkey"), "company", true},
		{fk("slots_workshop_id_fkey"), "", false},
		{&pgconn.PgError{Code: "23505", ConstraintName: "internships_student_id_fkey"}, "", false},
		{errors.New("plain"), "", false},
	}
	for _, tt := range tests {
		kind, ok := fkTarget(tt.err)
		assert.Equal(t, tt.kind, kind, tt.err.Error())
		assert.Equal(t, tt.ok, ok, tt.err.Error())
	}

	in := &placement.Internship{StudentID: "st-09", SlotID: "slot-9", CompanyID: "acme"}
	assert.Equal(t, "st-09", fkID(in, "student"))
	assert.Equal(t, "slot-9", fkID(in, "slot"))
	assert.Equal(t, "acme", fkID(in, "company"))
}

// A transaction that keeps losing to a concurrent one surfaces the last
// attempt's repository error, unwrapped by the retrier.
func TestPlacementStore_ConflictRetriesReturnLastRepositoryError(t *testing.T) {
	s := NewPlacementStore(&Connection{})
	s.retrier = retry.New(retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 1}, IsTxConflict)

	var (
		calls int
		last  error
	)
	err := s.retrier.Do(context.Background(), func(context.Context) error {
		calls++
		last = shared.NewRepositoryError(fmt.Sprintf("commit#%d", calls), &pgconn.PgError{Code: "40001"})
		return last
	})

	assert.Equal(t, 3, calls)
	assert.Same(t, last, err)
	var repoErr *shared.RepositoryError
	require.True(t, errors.As(err, &repoErr))
	assert.Equal(t, "commit#3", repoErr.Op)

	calls = 0
	domainErr := &shared.InsufficientCapacityError{SlotID: "slot-1", Requested: 2, Available: 1}
	err = s.retrier.Do(context.Background(), func(context.Context) error {
		calls++
		return domainErr
	})
	assert.Equal(t, 1, calls, "domain errors are never retried")
	assert.Same(t, domainErr, err)
}

func TestStateColumns_CoverEveryKind(t *testing.T) {
	for _, kind := range []lifecycle.Kind{lifecycle.KindCompany, lifecycle.KindDocument, lifecycle.KindInternship, lifecycle.KindSlot} {
		c, err := columnFor(kind)
		require.NoError(t, err, kind)
		assert.NotEmpty(t, c.table)
	}

	_, err := columnFor("contract")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

// ══════════════════════════════════════════════════════════════════════════════
// INTEGRATION (PLAZA_TEST_DATABASE_URL)
// ══════════════════════════════════════════════════════════════════════════════

// liveStore migrates a throwaway schema and returns a store bound to it.
func liveStore(t *testing.T) (*PlacementStore, *Connection) {
	t.Helper()
	url := os.Getenv("PLAZA_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PLAZA_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	admin, err := NewConnectionFromURL(ctx, url)
	require.NoError(t, err)
	schema := "plaza_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	})

	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	conn, err := NewConnectionFromURL(ctx, url+sep+"search_path="+schema)
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	require.NoError(t, NewMigrator(conn).Migrate(ctx))
	return NewPlacementStore(conn), conn
}

func seed(t *testing.T, conn *Connection, capacity, students int) {
	t.Helper()
	ctx := context.Background()
	stmts := []string{
		`INSERT INTO workshops (id, name) VALUES ('electricity', 'Electricidad')`,
		`INSERT INTO companies (id, name, validation) VALUES ('acme', 'Acme', 'accepted')`,
		fmt.Sprintf(`INSERT INTO slots (id, company_id, workshop_id, capacity) VALUES ('slot-1', 'acme', 'electricity', %d)`, capacity),
	}
	for i := 1; i <= students; i++ {
		stmts = append(stmts, fmt.Sprintf(
			`INSERT INTO students (id, full_name, workshop_id, age, gender) VALUES ('st-%02d', 'Student %d', 'electricity', 17, 'female')`, i, i))
	}
	for _, s := range stmts {
		_, err := conn.Exec(ctx, s)
		require.NoError(t, err, s)
	}
}

func TestMigrator_Live(t *testing.T) {
	_, conn := liveStore(t)
	ctx := context.Background()
	m := NewMigrator(conn)

	require.NoError(t, m.Migrate(ctx), "second run is a no-op")
	status, err := m.Status(ctx)
	require.NoError(t, err)
	for _, s := range status {
		assert.True(t, s.Applied, s.Name)
	}

	require.NoError(t, m.Rollback(ctx))
	status, err = m.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status[len(status)-1].Applied)
	require.NoError(t, m.Migrate(ctx))
}

func TestPlacementStore_ConcurrentReservations(t *testing.T) {
	store, conn := liveStore(t)
	seed(t, conn, 2, 5)
	ledger := placement.NewCapacityLedger()
	start := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.WithinTx(context.Background(), func(ctx context.Context, tx placement.Tx) error {
				res, err := ledger.TryReserve(ctx, tx, "slot-1", 1)
				if err != nil {
					return err
				}
				in, err := placement.NewInternship(placement.NewInternshipParams{
					ID:        fmt.Sprintf("in-%d", i),
					StudentID: fmt.Sprintf("st-%02d", i),
					Slot:      res.Slot(),
					Period:    shared.DateRange{Start: start},
				})
				if err != nil {
					return err
				}
				return res.Fulfil(ctx, tx, []*placement.Internship{in})
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, shared.ErrInsufficientCapacity):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, ok)
	assert.Equal(t, 3, full)

	require.NoError(t, store.WithinReadTx(context.Background(), func(ctx context.Context, tx placement.Tx) error {
		n, err := ledger.Occupied(ctx, tx, "slot-1")
		assert.Equal(t, 2, n)
		return err
	}))
}

func TestPlacementStore_EntityStateAndDue(t *testing.T) {
	store, conn := liveStore(t)
	seed(t, conn, 3, 1)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := conn.Exec(ctx, `
		INSERT INTO internships (id, student_id, company_id, slot_id, start_date, state)
		VALUES ('in-1', 'st-01', 'acme', 'slot-1', $1, 'pending')`, start)
	require.NoError(t, err)

	due, err := store.DueToStart(ctx, start.AddDate(0, 0, 2), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "in-1", due[0].ID)

	none, err := store.DueToStart(ctx, start.AddDate(0, 0, -1), 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx placement.Tx) error {
		applied, err := tx.SetEntityState(ctx, lifecycle.KindInternship, "in-1", "in_progress", "finished")
		require.NoError(t, err)
		assert.False(t, applied, "stale expected state")

		applied, err = tx.SetEntityState(ctx, lifecycle.KindInternship, "in-1", "pending", "cancelled")
		require.NoError(t, err)
		assert.True(t, applied)

		_, err = tx.SetEntityState(ctx, lifecycle.KindInternship, "ghost", "pending", "cancelled")
		assert.ErrorIs(t, err, shared.ErrNotFound)
		return nil
	}))

	require.NoError(t, store.WithinReadTx(ctx, func(ctx context.Context, tx placement.Tx) error {
		state, err := tx.GetEntityState(ctx, lifecycle.KindInternship, "in-1")
		assert.Equal(t, lifecycle.State("cancelled"), state)
		return err
	}))
}

func TestPlacementStore_DocumentPresence(t *testing.T) {
	store, conn := liveStore(t)
	seed(t, conn, 1, 1)
	ctx := context.Background()
	_, err := conn.Exec(ctx, `INSERT INTO document_bundles (student_id) VALUES ('st-01')`)
	require.NoError(t, err)

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx placement.Tx) error {
		return tx.SetDocumentPresence(ctx, "st-01", placement.DocInsurancePolicy, true)
	}))

	require.NoError(t, store.WithinReadTx(ctx, func(ctx context.Context, tx placement.Tx) error {
		b, err := tx.GetDocumentBundle(ctx, "st-01")
		require.NoError(t, err)
		assert.Equal(t, []placement.DocumentType{placement.DocInsurancePolicy}, b.PresentTypes())
		assert.Equal(t, placement.ReviewStatus("pending"), b.Review)

		err = tx.SetDocumentPresence(ctx, "st-01", placement.DocumentType("selfie"), true)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
		return nil
	}))
}

func TestPlacementStore_CreateInternshipMissingReferences(t *testing.T) {
	store, conn := liveStore(t)
	seed(t, conn, 2, 1)
	ctx := context.Background()
	require.NoError(t, conn.Ready(ctx))

	start := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	err := store.WithinTx(ctx, func(ctx context.Context, tx placement.Tx) error {
		return tx.CreateInternship(ctx, &placement.Internship{
			ID: "in-ghost", StudentID: "st-99", CompanyID: "acme", SlotID: "slot-1",
			StartDate: start, State: placement.InternshipPending, CreatedAt: start, UpdatedAt: start,
		})
	})
	var nf *shared.EntityNotFoundError
	require.True(t, errors.As(err, &nf), "got %v", err)
	assert.Equal(t, "student", nf.Kind)
	assert.Equal(t, "st-99", nf.ID)
}
