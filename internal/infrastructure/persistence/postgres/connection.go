// Package postgres implements the PostgreSQL persistence layer for plaza-hub.
// Slot occupancy is never stored; it is counted from the internships table
// under a row lock on the slot.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrConnectionClosed is returned by every call made after Close.
	ErrConnectionClosed = errors.New("postgres: connection pool is closed")

	// ErrPoolExhausted is reported by Ready while every pooled connection
	// is checked out.
	ErrPoolExhausted = errors.New("postgres: connection pool exhausted")
)

// DefaultURL is used when no DATABASE_URL is configured.
const DefaultURL = "postgres://postgres@localhost:5432/plazahub?sslmode=disable"

// ══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// Config holds the pool settings. Credentials, host and database all come
// from URL.
type Config struct {
	URL               string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
	ApplicationName   string
}

// DefaultConfig returns the pool settings used by plazahub.
func DefaultConfig() Config {
	return Config{
		URL:               DefaultURL,
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
		ConnectTimeout:    10 * time.Second,
		ApplicationName:   "plazahub",
	}
}

// PoolConfig parses URL and applies the pool limits on top of it.
func (c Config) PoolConfig() (*pgxpool.Config, error) {
	url := c.URL
	if url == "" {
		url = DefaultURL
	}
	pc, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse database url: %w", err)
	}

	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	pc.MinConns = c.MinConns
	pc.MaxConnLifetime = c.MaxConnLifetime
	pc.MaxConnIdleTime = c.MaxConnIdleTime
	pc.HealthCheckPeriod = c.HealthCheckPeriod
	if c.ConnectTimeout > 0 {
		pc.ConnConfig.ConnectTimeout = c.ConnectTimeout
	}
	if c.ApplicationName != "" {
		pc.ConnConfig.RuntimeParams["application_name"] = c.ApplicationName
	}
	return pc, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION
// ══════════════════════════════════════════════════════════════════════════════

// Connection wraps the pgx pool shared by the placement store and the
// migrator.
type Connection struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
}

// NewConnection opens the pool and pings the server once.
func NewConnection(ctx context.Context, cfg Config) (*Connection, error) {
	pc, err := cfg.PoolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Connection{pool: pool}, nil
}

// NewConnectionFromURL opens a pool with the default limits.
func NewConnectionFromURL(ctx context.Context, databaseURL string) (*Connection, error) {
	cfg := DefaultConfig()
	cfg.URL = databaseURL
	return NewConnection(ctx, cfg)
}

// Close closes the pool. Further calls are no-ops.
func (c *Connection) Close() {
	if c.closed.Swap(true) || c.pool == nil {
		return
	}
	c.pool.Close()
}

// Ping checks that the server answers.
func (c *Connection) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	return c.pool.Ping(ctx)
}

// Ready is the readiness probe: the server answers and the pool still has
// a connection to hand out.
func (c *Connection) Ready(ctx context.Context) error {
	if err := c.Ping(ctx); err != nil {
		return err
	}
	stat := c.pool.Stat()
	return checkPool(stat.AcquiredConns(), stat.MaxConns())
}

func checkPool(acquired, limit int32) error {
	if limit > 0 && acquired >= limit {
		return fmt.Errorf("%w: %d/%d acquired", ErrPoolExhausted, acquired, limit)
	}
	return nil
}

var (
	readWrite = pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}
	readOnly  = pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly}
)

func (c *Connection) begin(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}
	return c.pool.BeginTx(ctx, opts)
}

// Exec runs a statement outside any transaction.
func (c *Connection) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	if c.closed.Load() {
		return pgconn.CommandTag{}, ErrConnectionClosed
	}
	return c.pool.Exec(ctx, sql, args...)
}

// Query runs a query outside any transaction.
func (c *Connection) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}
	return c.pool.Query(ctx, sql, args...)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR CLASSIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// SQLSTATE codes the store reacts to.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func pgCode(err error) (string, *pgconn.PgError) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr
	}
	return "", nil
}

// IsUniqueViolation reports a unique constraint violation.
func IsUniqueViolation(err error) bool {
	code, _ := pgCode(err)
	return code == codeUniqueViolation
}

// IsTxConflict reports whether err aborted a transaction that may succeed
// when retried.
func IsTxConflict(err error) bool {
	code, _ := pgCode(err)
	return code == codeSerializationFailure || code == codeDeadlockDetected
}

// fkTarget names the entity kind a violated foreign key points at, taken
// from PostgreSQL's default "<table>_<column>_fkey" constraint names.
func fkTarget(err error) (string, bool) {
	code, pgErr := pgCode(err)
	if code != codeForeignKeyViolation {
		return "", false
	}
	switch pgErr.ConstraintName {
	case "internships_student_id_fkey":
		return "student", true
	case "internships_slot_id_fkey":
		return "slot", true
	case "internships_company_id_fkey":
		return "company", true
	}
	return "", false
}

// IsNoRows reports pgx.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
