// Package ledger commits validated transaction batches and keeps the running
// report in step with them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/csvbatch"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// Options configures a Service.
type Options struct {
	// IDGenerator overrides the ID assigned to parsed rows. Nil means UUIDs.
	IDGenerator func() string
}

// Service is the only writer of the ledger.
type Service struct {
	store     service.Storage
	parseOpts []csvbatch.Option
}

// CommitResult describes a committed batch.
type CommitResult struct {
	Report    model.Report
	Committed int
}

// New creates a ledger service over store.
func New(store service.Storage, opts Options) *Service {
	s := &Service{store: store}
	if opts.IDGenerator != nil {
		s.parseOpts = append(s.parseOpts, csvbatch.WithIDGenerator(opts.IDGenerator))
	}
	return s
}

// Commit inserts candidates and folds them into the report as one atomic
// unit. Either every candidate is persisted and the report reflects all of
// them, or nothing changes. An empty batch succeeds without touching the
// store and the returned report is the zero value.
//
// Commit does not retry. When the pool or the database lock is saturated the
// error wraps common.ErrCongested and the caller decides what to do.
func (s *Service) Commit(ctx context.Context, candidates []model.Transaction) (CommitResult, error) {
	if len(candidates) == 0 {
		return CommitResult{}, nil
	}

	for i, c := range candidates {
		if err := c.Validate(); err != nil {
			return CommitResult{}, fmt.Errorf("%w: %w: candidate %d: %w",
				common.ErrInvalidBatch, common.ErrValidationFailed, i, err)
		}
	}

	var next model.Report
	err := s.store.WithinTx(ctx, func(tx service.Transaction) error {
		if err := tx.InsertTransactions(ctx, candidates); err != nil {
			return err
		}

		current, err := tx.GetReport(ctx)
		if err != nil {
			return err
		}

		next = current.Apply(candidates...)
		return tx.PutReport(ctx, next)
	})
	if err != nil {
		logCommitFailure(ctx, err, len(candidates))
		return CommitResult{}, err
	}

	common.LogDebug(ctx, "Committed batch", common.Fields{
		"rows":          len(candidates),
		"gross_revenue": next.GrossRevenue.String(),
		"expenses":      next.Expenses.String(),
		"net_revenue":   next.NetRevenue.String(),
	})

	return CommitResult{Committed: len(candidates), Report: next}, nil
}

func logCommitFailure(ctx context.Context, err error, rows int) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		common.LogDebug(ctx, "Commit abandoned by caller", common.Fields{"rows": rows, "error": err.Error()})
	case errors.Is(err, common.ErrCongested):
		slog.Warn("Commit rejected, store congested", "rows", rows, "error", err)
	default:
		common.LogError(ctx, err, "Commit failed", common.Fields{"rows": rows})
	}
}

// Report returns the persisted report. Nothing is computed on read.
func (s *Service) Report(ctx context.Context) (model.Report, error) {
	return s.store.GetReport(ctx)
}

// Transactions lists persisted transactions.
func (s *Service) Transactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	return s.store.ListTransactions(ctx, filter)
}

// Transaction returns one persisted transaction. The error wraps
// common.ErrNotFound when no transaction has that ID.
func (s *Service) Transaction(ctx context.Context, id string) (*model.Transaction, error) {
	return s.store.GetTransactionByID(ctx, id)
}

// Count returns the number of persisted transactions.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.CountTransactions(ctx)
}

// Health checks that the store can serve a request.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}
