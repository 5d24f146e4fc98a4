package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// VerifyResult compares the persisted report with one rebuilt from every
// stored transaction.
type VerifyResult struct {
	Persisted  model.Report `json:"persisted"`
	Recomputed model.Report `json:"recomputed"`
	Count      int          `json:"count"`
	OK         bool         `json:"ok"`
}

// Verify recomputes the report from the full transaction set inside a single
// read snapshot, so concurrent commits cannot produce a false mismatch.
func (s *Service) Verify(ctx context.Context) (VerifyResult, error) {
	var result VerifyResult

	err := s.store.WithinSnapshot(ctx, func(snap service.Snapshot) error {
		persisted, err := snap.GetReport(ctx)
		if err != nil {
			return err
		}

		recomputed := model.NewReport()
		count := 0
		err = snap.ScanTransactions(ctx, func(txn model.Transaction) error {
			recomputed = recomputed.Apply(txn)
			count++
			return nil
		})
		if err != nil {
			return err
		}

		result = VerifyResult{
			Persisted:  persisted,
			Recomputed: recomputed,
			Count:      count,
			OK:         persisted.Equal(recomputed),
		}
		return nil
	})
	if err != nil {
		return VerifyResult{}, fmt.Errorf("failed to verify report: %w", err)
	}

	if !result.OK {
		slog.Warn("Persisted report does not match transactions",
			"count", result.Count,
			"persisted_net", result.Persisted.NetRevenue.String(),
			"recomputed_net", result.Recomputed.NetRevenue.String())
	}
	return result, nil
}
