// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/tally/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// Storage defines the contract for our persistence layer.
//
// Every method first acquires a pooled connection. When none is available
// within the configured budget the error wraps common.ErrCongested.
type Storage interface {
	// WithinTx runs fn inside one write transaction. The transaction
	// commits only if fn returns nil; any error leaves no trace.
	WithinTx(ctx context.Context, fn func(Transaction) error) error
	// WithinSnapshot runs fn against a consistent read view.
	WithinSnapshot(ctx context.Context, fn func(Snapshot) error) error

	// Point reads
	GetReport(ctx context.Context) (model.Report, error)
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	CountTransactions(ctx context.Context) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Transaction is the write side of one atomic unit of work.
type Transaction interface {
	InsertTransactions(ctx context.Context, transactions []model.Transaction) error
	GetReport(ctx context.Context) (model.Report, error)
	PutReport(ctx context.Context, report model.Report) error
}

// Snapshot is a read-only view that does not change while fn runs.
type Snapshot interface {
	GetReport(ctx context.Context) (model.Report, error)
	CountTransactions(ctx context.Context) (int, error)
	ScanTransactions(ctx context.Context, fn func(model.Transaction) error) error
}
