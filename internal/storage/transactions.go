package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// reportID is the fixed key of the singleton report row.
const reportID = 0

// maxParamsPerStatement is SQLite's historical SQLITE_MAX_VARIABLE_NUMBER.
// Newer builds allow more; staying under the old limit works everywhere.
const maxParamsPerStatement = 999

const insertColumns = 5

// rowsPerInsert is how many transactions fit in one INSERT statement.
const rowsPerInsert = maxParamsPerStatement / insertColumns

// queryable is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type queryable interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertTransactions writes transactions in statement-sized chunks. All
// chunks run on q, so inside a transaction they commit or roll back
// together.
func insertTransactions(ctx context.Context, q queryable, transactions []model.Transaction) error {
	for start := 0; start < len(transactions); start += rowsPerInsert {
		end := min(start+rowsPerInsert, len(transactions))
		chunk := transactions[start:end]

		var sb strings.Builder
		sb.WriteString("INSERT INTO transactions (id, date, direction, amount, memo) VALUES ")
		args := make([]any, 0, len(chunk)*insertColumns)
		for i, txn := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?, ?, ?)")
			args = append(args, txn.ID, txn.DateString(), string(txn.Direction), txn.Amount, txn.Memo)
		}

		if _, err := q.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("failed to insert transactions %d-%d: %w", start, end-1, classify(err))
		}
	}
	return nil
}

func getReport(ctx context.Context, q queryable) (model.Report, error) {
	var report model.Report
	err := q.QueryRowContext(ctx, `
		SELECT gross_revenue, expenses, net_revenue
		FROM report
		WHERE id = ?
	`, reportID).Scan(&report.GrossRevenue, &report.Expenses, &report.NetRevenue)

	if errors.Is(err, sql.ErrNoRows) {
		return model.Report{}, fmt.Errorf("%w: report row missing, run migrations", common.ErrUnavailable)
	}
	if err != nil {
		return model.Report{}, fmt.Errorf("failed to get report: %w", classify(err))
	}
	return report, nil
}

func putReport(ctx context.Context, q queryable, report model.Report) error {
	result, err := q.ExecContext(ctx, `
		UPDATE report
		SET gross_revenue = ?, expenses = ?, net_revenue = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, report.GrossRevenue, report.Expenses, report.NetRevenue, reportID)
	if err != nil {
		return fmt.Errorf("failed to update report: %w", classify(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update report: %w", classify(err))
	}
	if affected != 1 {
		return fmt.Errorf("%w: report update touched %d rows", common.ErrPersistenceFailed, affected)
	}
	return nil
}

func countTransactions(ctx context.Context, q queryable) (int, error) {
	var count int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get transaction count: %w", classify(err))
	}
	return count, nil
}

// scanAllTransactions streams every transaction in insertion order.
func scanAllTransactions(ctx context.Context, q queryable, fn func(model.Transaction) error) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, date, direction, amount, memo
		FROM transactions
		ORDER BY rowid ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to query transactions: %w", classify(err))
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return err
		}
		if err := fn(txn); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read transactions: %w", classify(err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (model.Transaction, error) {
	var txn model.Transaction
	var date, direction string

	if err := row.Scan(&txn.ID, &date, &direction, &txn.Amount, &txn.Memo); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Transaction{}, err
		}
		return model.Transaction{}, fmt.Errorf("failed to scan transaction: %w", classify(err))
	}

	parsed, err := model.ParseDate(date)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: transaction %s has date %q", common.ErrPersistenceFailed, txn.ID, date)
	}
	txn.Date = parsed
	txn.Direction = model.Direction(direction)

	return txn, nil
}

// GetReport returns the current report row.
func (s *SQLiteStorage) GetReport(ctx context.Context) (model.Report, error) {
	if err := validateContext(ctx); err != nil {
		return model.Report{}, err
	}

	conn, err := s.acquire(ctx)
	if err != nil {
		return model.Report{}, err
	}
	defer func() { _ = conn.Close() }()

	return getReport(ctx, conn)
}

// CountTransactions returns the total number of transactions.
func (s *SQLiteStorage) CountTransactions(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	conn, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = conn.Close() }()

	return countTransactions(ctx, conn)
}

// GetTransactionByID retrieves a single transaction by ID.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	txn, err := scanTransaction(conn.QueryRowContext(ctx, `
		SELECT id, date, direction, amount, memo
		FROM transactions
		WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// ListTransactions returns transactions in insertion order.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, ErrInvalidPage
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, *filter.EndDate, *filter.StartDate)
	}

	query := `
		SELECT id, date, direction, amount, memo
		FROM transactions
		WHERE 1 = 1
	`
	args := []any{}

	if filter.StartDate != nil {
		query += " AND date >= ?"
		args = append(args, filter.StartDate.Format(model.DateLayout))
	}
	if filter.EndDate != nil {
		query += " AND date <= ?"
		args = append(args, filter.EndDate.Format(model.DateLayout))
	}

	query += " ORDER BY rowid ASC"

	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	} else if filter.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, filter.Offset)
	}

	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", classify(err))
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", classify(err))
	}
	return transactions, nil
}
