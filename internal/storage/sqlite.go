package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// Pool defaults.
const (
	DefaultMaxConns       = 50
	DefaultAcquireTimeout = 2 * time.Second
	DefaultBusyTimeout    = 5 * time.Second
)

const memoryPath = ":memory:"

// Options bounds the connection pool and the time spent waiting on it.
type Options struct {
	// MaxConns is the fixed pool size.
	MaxConns int
	// AcquireTimeout is how long a request waits for a free connection
	// before it is rejected as congested.
	AcquireTimeout time.Duration
	// BusyTimeout is how long SQLite waits on a database lock held by
	// another connection before reporting SQLITE_BUSY.
	BusyTimeout time.Duration
}

// DefaultOptions returns the production pool settings.
func DefaultOptions() Options {
	return Options{
		MaxConns:       DefaultMaxConns,
		AcquireTimeout: DefaultAcquireTimeout,
		BusyTimeout:    DefaultBusyTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxConns <= 0 {
		o.MaxConns = DefaultMaxConns
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = DefaultAcquireTimeout
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = DefaultBusyTimeout
	}
	return o
}

// SQLiteStorage implements service.Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
	opts   Options
}

var _ service.Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string, opts Options) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	if dbPath != memoryPath {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("%w: failed to create database directory: %w", common.ErrUnavailable, err)
		}
	} else {
		// Every connection to :memory: is a separate database.
		opts.MaxConns = 1
	}

	// WAL keeps readers unblocked by the writer. _txlock=immediate makes
	// every write transaction take the write lock at BEGIN, so two
	// committers can never both read the report and then race to update it.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate&_foreign_keys=on",
		dbPath, opts.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", common.ErrUnavailable, err)
	}

	db.SetMaxOpenConns(opts.MaxConns)
	db.SetMaxIdleConns(opts.MaxConns)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %w", common.ErrUnavailable, err)
	}

	return &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
		opts:   opts,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Options returns the effective pool settings.
func (s *SQLiteStorage) Options() Options {
	return s.opts
}

// Ping checks that a connection can be acquired and used.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	var one int
	if err := conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return classify(err)
	}
	return nil
}

// acquire takes a dedicated connection from the pool, waiting at most
// AcquireTimeout. The caller must Close the connection to return it.
func (s *SQLiteStorage) acquire(ctx context.Context) (*sql.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, s.opts.AcquireTimeout)
	defer cancel()

	conn, err := s.db.Conn(acquireCtx)
	if err == nil {
		return conn, nil
	}

	// The caller gave up; that is neither congestion nor an outage.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		slog.Warn("Connection pool exhausted",
			"max_conns", s.opts.MaxConns,
			"waited", s.opts.AcquireTimeout)
		return nil, fmt.Errorf("%w: no connection free after %s", common.ErrCongested, s.opts.AcquireTimeout)
	}
	if isClosed(err) {
		return nil, fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}

	classified := classify(err)
	if errors.Is(classified, common.ErrPersistenceFailed) {
		// Failing to open a connection is never a statement problem.
		return nil, fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}
	return nil, classified
}

// WithinTx runs fn inside one BEGIN IMMEDIATE transaction on a dedicated
// connection.
func (s *SQLiteStorage) WithinTx(ctx context.Context, fn func(service.Transaction) error) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&sqliteTransaction{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classify(err))
	}
	committed = true
	return nil
}

// WithinSnapshot runs fn inside a deferred read transaction. Under WAL the
// view is fixed at the first read and writers are not blocked.
func (s *SQLiteStorage) WithinSnapshot(ctx context.Context, fn func(service.Snapshot) error) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "BEGIN DEFERRED"); err != nil {
		return fmt.Errorf("failed to begin snapshot: %w", classify(err))
	}
	defer func() { _, _ = conn.ExecContext(context.Background(), "ROLLBACK") }()

	return fn(&sqliteSnapshot{q: conn})
}

// sqliteTransaction wraps sql.Tx to implement service.Transaction.
type sqliteTransaction struct {
	tx *sql.Tx
}

func (t *sqliteTransaction) InsertTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}
	return insertTransactions(ctx, t.tx, transactions)
}

func (t *sqliteTransaction) GetReport(ctx context.Context) (model.Report, error) {
	if err := validateContext(ctx); err != nil {
		return model.Report{}, err
	}
	return getReport(ctx, t.tx)
}

func (t *sqliteTransaction) PutReport(ctx context.Context, report model.Report) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateReport(report); err != nil {
		return err
	}
	return putReport(ctx, t.tx, report)
}

// sqliteSnapshot implements service.Snapshot over a connection holding an
// open read transaction.
type sqliteSnapshot struct {
	q queryable
}

func (s *sqliteSnapshot) GetReport(ctx context.Context) (model.Report, error) {
	return getReport(ctx, s.q)
}

func (s *sqliteSnapshot) CountTransactions(ctx context.Context) (int, error) {
	return countTransactions(ctx, s.q)
}

func (s *sqliteSnapshot) ScanTransactions(ctx context.Context, fn func(model.Transaction) error) error {
	return scanAllTransactions(ctx, s.q, fn)
}

// classify maps driver errors onto the request outcome taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %w", common.ErrCongested, err)
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrCorrupt,
			sqlite3.ErrNotADB, sqlite3.ErrFull, sqlite3.ErrReadonly, sqlite3.ErrPerm:
			return fmt.Errorf("%w: %w", common.ErrUnavailable, err)
		}
		return fmt.Errorf("%w: %w", common.ErrPersistenceFailed, err)
	}

	if isClosed(err) {
		return fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %w", common.ErrPersistenceFailed, err)
}

func isClosed(err error) bool {
	return errors.Is(err, sql.ErrConnDone) ||
		strings.Contains(err.Error(), "sql: database is closed")
}
