// Package testutil provides shared helpers for tests that need a real ledger
// database or realistic transaction data.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/Veraticus/tally/internal/storage"
)

// TestDB represents a migrated test database on a temporary file.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
	Path    string
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, *storage.SQLiteStorage) error
	Seed           []model.Transaction
	Pool           storage.Options
	SkipMigrations bool
}

// SetupTestDB creates a migrated database in t.TempDir with default pool
// settings. A file is used rather than :memory: so the pool can hold more
// than one connection.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	svc := ledger.New(db.Storage, ledger.Options{})
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tally.db")
	store, err := storage.NewSQLiteStorage(path, opts.Pool)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Register cleanup
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()

	// Run migrations unless skipped
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	if len(opts.Seed) > 0 {
		err := store.WithinTx(ctx, func(tx service.Transaction) error {
			if err := tx.InsertTransactions(ctx, opts.Seed); err != nil {
				return err
			}
			report, err := tx.GetReport(ctx)
			if err != nil {
				return err
			}
			return tx.PutReport(ctx, report.Apply(opts.Seed...))
		})
		if err != nil {
			t.Fatalf("failed to seed transactions: %v", err)
		}
	}

	// Run custom setup
	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{
		Storage: store,
		Path:    path,
		t:       t,
	}
}

// MustReport returns the persisted report or fails the test.
func (db *TestDB) MustReport() model.Report {
	db.t.Helper()
	report, err := db.Storage.GetReport(context.Background())
	if err != nil {
		db.t.Fatalf("failed to read report: %v", err)
	}
	return report
}

// MustCount returns the number of persisted transactions or fails the test.
func (db *TestDB) MustCount() int {
	db.t.Helper()
	count, err := db.Storage.CountTransactions(context.Background())
	if err != nil {
		db.t.Fatalf("failed to count transactions: %v", err)
	}
	return count
}
