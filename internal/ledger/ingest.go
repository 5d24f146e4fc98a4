package ledger

import (
	"context"
	"fmt"
	"io"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/csvbatch"
	"github.com/Veraticus/tally/internal/model"
)

// Outcome summarizes what an upload did.
type Outcome string

// Ingest outcomes.
const (
	OutcomeCommitted    Outcome = "committed"
	OutcomePartial      Outcome = "partial"
	OutcomeNothingValid Outcome = "nothing_valid"
	OutcomeEmpty        Outcome = "empty"
)

// IngestResult is the per-upload response.
type IngestResult struct {
	// Report is the report right after the commit; nil when nothing was
	// committed.
	Report    *model.Report        `json:"report,omitempty"`
	Outcome   Outcome              `json:"outcome"`
	Rejected  []csvbatch.Rejection `json:"rejected"`
	Rows      int                  `json:"rows"`
	Committed int                  `json:"committed"`
}

// Ingest parses a CSV upload and commits its valid rows as one batch.
// Invalid rows are reported and never block the valid ones. When maxBytes is
// positive and r holds more, the whole upload is refused with
// common.ErrTooLarge before anything is committed.
func (s *Service) Ingest(ctx context.Context, r io.Reader, maxBytes int64) (IngestResult, error) {
	if maxBytes > 0 {
		r = &limitedReader{r: r, remaining: maxBytes, limit: maxBytes}
	}

	batch, err := csvbatch.Parse(r, s.parseOpts...)
	if err != nil {
		return IngestResult{}, err
	}

	result := IngestResult{
		Rows:     batch.Rows,
		Rejected: batch.Rejected,
	}
	if result.Rejected == nil {
		result.Rejected = []csvbatch.Rejection{}
	}

	switch {
	case batch.Rows == 0:
		result.Outcome = OutcomeEmpty
		return result, nil
	case len(batch.Valid) == 0:
		result.Outcome = OutcomeNothingValid
		return result, nil
	}

	committed, err := s.Commit(ctx, batch.Valid)
	if err != nil {
		return result, err
	}

	result.Committed = committed.Committed
	result.Report = &committed.Report
	result.Outcome = OutcomeCommitted
	if len(batch.Rejected) > 0 {
		result.Outcome = OutcomePartial
	}
	return result, nil
}

// limitedReader fails with common.ErrTooLarge once more than limit bytes
// are available, unlike io.LimitReader which truncates silently.
type limitedReader struct {
	r         io.Reader
	remaining int64
	limit     int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		var probe [1]byte
		n, err := l.r.Read(probe[:])
		if n > 0 {
			return 0, fmt.Errorf("%w: limit is %d bytes", common.ErrTooLarge, l.limit)
		}
		return 0, err
	}

	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}
