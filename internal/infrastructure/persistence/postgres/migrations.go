package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Migration is one embedded schema change.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// MigrationStatus reports whether a migration has been applied.
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// GetMigrations returns the embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_catalog", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_students_documents", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_internships", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// migrationLock is the pg_advisory_xact_lock key held while a migration
// step runs, so instances started together apply each step once.
const migrationLock int64 = 0x706c617a61 // "plaza"

const migrationTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`

// Migrator applies and rolls back the embedded migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

// Migrate applies every pending migration, one transaction per version.
func (m *Migrator) Migrate(ctx context.Context) error {
	for _, mig := range m.migrations {
		err := m.step(ctx, func(tx pgx.Tx, applied map[int]time.Time) error {
			if _, ok := applied[mig.Version]; ok {
				return nil
			}
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("postgres: migrate %03d_%s: %w", mig.Version, mig.Name, err)
		}
	}
	return nil
}

// Rollback reverts the most recently applied migration, if any.
func (m *Migrator) Rollback(ctx context.Context) error {
	return m.step(ctx, func(tx pgx.Tx, applied map[int]time.Time) error {
		last := 0
		for v := range applied {
			last = max(last, v)
		}
		if last == 0 {
			return nil
		}
		for _, mig := range m.migrations {
			if mig.Version != last {
				continue
			}
			if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
				return fmt.Errorf("postgres: rollback %03d_%s: %w", mig.Version, mig.Name, err)
			}
			_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, last)
			return err
		}
		return fmt.Errorf("postgres: rollback: version %d is not embedded in this binary", last)
	})
}

// Status lists every embedded migration with its applied time.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	out := make([]MigrationStatus, 0, len(m.migrations))
	err := m.step(ctx, func(_ pgx.Tx, applied map[int]time.Time) error {
		for _, mig := range m.migrations {
			at, ok := applied[mig.Version]
			out = append(out, MigrationStatus{Version: mig.Version, Name: mig.Name, Applied: ok, AppliedAt: at})
		}
		return nil
	})
	return out, err
}

// step runs fn in a transaction holding the migration lock, with the set of
// applied versions read under that lock.
func (m *Migrator) step(ctx context.Context, fn func(tx pgx.Tx, applied map[int]time.Time) error) error {
	tx, err := m.conn.begin(ctx, readWrite)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLock); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, migrationTable); err != nil {
		return err
	}

	rows, err := tx.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return err
	}
	applied := map[int]time.Time{}
	for rows.Next() {
		var (
			v  int
			at time.Time
		)
		if err := rows.Scan(&v, &at); err != nil {
			rows.Close()
			return err
		}
		applied[v] = at
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if err := fn(tx, applied); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CATALOG (workshops, companies, slots)
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create catalog tables
-- Version: 001

CREATE TABLE IF NOT EXISTS workshops (
    id TEXT PRIMARY KEY,
    name VARCHAR(150) NOT NULL,
    professional_family VARCHAR(150) NOT NULL DEFAULT '',
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS companies (
    id TEXT PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    contact_email VARCHAR(200) NOT NULL DEFAULT '',
    phone VARCHAR(50) NOT NULL DEFAULT '',
    address TEXT NOT NULL DEFAULT '',
    validation VARCHAR(20) NOT NULL DEFAULT 'pending',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_company_validation CHECK (validation IN ('pending', 'accepted', 'rejected'))
);

CREATE INDEX IF NOT EXISTS idx_companies_validation ON companies(validation);

CREATE TABLE IF NOT EXISTS slots (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE RESTRICT,
    workshop_id TEXT NOT NULL REFERENCES workshops(id) ON DELETE RESTRICT,
    capacity INTEGER NOT NULL,
    min_age INTEGER,
    allowed_gender VARCHAR(10) NOT NULL DEFAULT 'any',
    status VARCHAR(20) NOT NULL DEFAULT 'active',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_slot_capacity CHECK (capacity >= 1),
    CONSTRAINT valid_slot_min_age CHECK (min_age IS NULL OR min_age >= 0),
    CONSTRAINT valid_slot_gender CHECK (allowed_gender IN ('male', 'female', 'any')),
    CONSTRAINT valid_slot_status CHECK (status IN ('active', 'inactive'))
);

CREATE INDEX IF NOT EXISTS idx_slots_company ON slots(company_id);
CREATE INDEX IF NOT EXISTS idx_slots_workshop ON slots(workshop_id);
`

const migration001Down = `
DROP TABLE IF EXISTS slots;
DROP TABLE IF EXISTS companies;
DROP TABLE IF EXISTS workshops;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: STUDENTS & DOCUMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create students and document bundles
-- Version: 002

CREATE TABLE IF NOT EXISTS students (
    id TEXT PRIMARY KEY,
    full_name VARCHAR(200) NOT NULL,
    workshop_id TEXT NOT NULL REFERENCES workshops(id) ON DELETE RESTRICT,
    age INTEGER NOT NULL,
    gender VARCHAR(10) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_student_age CHECK (age >= 0),
    CONSTRAINT valid_student_gender CHECK (gender IN ('male', 'female'))
);

CREATE INDEX IF NOT EXISTS idx_students_workshop ON students(workshop_id);

-- One bundle per student; presence flags are stored as a JSONB object
-- keyed by document type.
CREATE TABLE IF NOT EXISTS document_bundles (
    student_id TEXT PRIMARY KEY REFERENCES students(id) ON DELETE CASCADE,
    present JSONB NOT NULL DEFAULT '{}'::jsonb,
    review VARCHAR(20) NOT NULL DEFAULT 'pending',
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_bundle_review CHECK (review IN ('pending', 'seen', 'approved', 'rejected'))
);
`

const migration002Down = `
DROP TABLE IF EXISTS document_bundles;
DROP TABLE IF EXISTS students;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: INTERNSHIPS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create internships
-- Version: 003

CREATE TABLE IF NOT EXISTS internships (
    id TEXT PRIMARY KEY,
    student_id TEXT NOT NULL REFERENCES students(id) ON DELETE RESTRICT,
    company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE RESTRICT,
    slot_id TEXT NOT NULL REFERENCES slots(id) ON DELETE RESTRICT,
    supervisor_id TEXT NOT NULL DEFAULT '',
    start_date DATE NOT NULL,
    end_date DATE,
    state VARCHAR(20) NOT NULL DEFAULT 'pending',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_internship_state CHECK (state IN ('pending', 'in_progress', 'finished', 'cancelled')),
    CONSTRAINT valid_internship_period CHECK (end_date IS NULL OR end_date >= start_date)
);

-- Occupancy counts and duplicate checks only look at seat-holding rows.
CREATE INDEX IF NOT EXISTS idx_internships_slot_active
    ON internships(slot_id) WHERE state IN ('pending', 'in_progress');
CREATE INDEX IF NOT EXISTS idx_internships_student_active
    ON internships(student_id) WHERE state IN ('pending', 'in_progress');
CREATE INDEX IF NOT EXISTS idx_internships_state_dates
    ON internships(state, start_date, end_date);
`

const migration003Down = `
DROP TABLE IF EXISTS internships;
`
