package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/model"
)

func TestSQLiteStorage_Migrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	store1, err := NewSQLiteStorage(dbPath, DefaultOptions())
	require.NoError(t, err)

	version, err := store1.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)

	require.NoError(t, store1.Migrate(ctx), "initial migration failed")
	require.NoError(t, commit(ctx, store1, createTestTransactions(2)))
	_ = store1.Close()

	// Running migrations again must not reseed the report.
	store2, err := NewSQLiteStorage(dbPath, DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = store2.Close() }()

	require.NoError(t, store2.Migrate(ctx), "repeated migration failed")

	version, err = store2.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	report, err := store2.GetReport(ctx)
	require.NoError(t, err)
	assert.True(t, report.Equal(model.ReportFromTransactions(createTestTransactions(2))))
}

func TestMigration1_SeedsZeroReport(t *testing.T) {
	store := createTestStorage(t)

	report, err := store.GetReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0", report.GrossRevenue.String())
	assert.Equal(t, "0", report.Expenses.String())
	assert.Equal(t, "0", report.NetRevenue.String())
}

func TestMigration1_Constraints(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
	}{
		{
			name:  "unknown direction",
			query: `INSERT INTO transactions (id, date, direction, amount) VALUES ('x', '2024-01-01', 'transfer', '1')`,
		},
		{
			name:  "malformed date",
			query: `INSERT INTO transactions (id, date, direction, amount) VALUES ('x', '01/02/2024', 'income', '1')`,
		},
		{
			name:  "second report row",
			query: `INSERT INTO report (id, gross_revenue, expenses, net_revenue) VALUES (1, '0', '0', '0')`,
		},
		{
			name:  "long memo",
			query: `INSERT INTO transactions (id, date, direction, amount, memo) VALUES ('x', '2024-01-01', 'income', '1', replace(hex(zeroblob(101)), '00', 'x'))`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.db.ExecContext(ctx, tt.query)
			assert.Error(t, err)
		})
	}
}

func TestMigration2_DateIndex(t *testing.T) {
	store := createTestStorage(t)

	var name string
	err := store.db.QueryRowContext(context.Background(),
		`SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_transactions_date'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "idx_transactions_date", name)
}
