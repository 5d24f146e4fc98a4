package cli

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/csvbatch"
	"github.com/Veraticus/tally/internal/ledger"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/money"
)

func testReport(gross, expenses string) model.Report {
	return model.NewReport().Apply(
		model.Transaction{Direction: model.DirectionIncome, Amount: money.MustParse(gross)},
		model.Transaction{Direction: model.DirectionExpense, Amount: money.MustParse(expenses)},
	)
}

func TestRenderReport(t *testing.T) {
	out := RenderReport(testReport("100.50", "30.25"))

	assert.Contains(t, out, "Gross revenue")
	assert.Contains(t, out, "100.50")
	assert.Contains(t, out, "30.25")
	assert.Contains(t, out, "70.25")
}

func TestRenderReport_Negative(t *testing.T) {
	out := RenderReport(testReport("1", "3.5"))
	assert.Contains(t, out, "-2.5")
}

func TestRenderIngestResult(t *testing.T) {
	report := testReport("100.50", "30.25")

	tests := []struct {
		name   string
		want   []string
		result ledger.IngestResult
	}{
		{
			name:   "committed",
			result: ledger.IngestResult{Outcome: ledger.OutcomeCommitted, Committed: 2, Rows: 2, Report: &report},
			want:   []string{"Committed 2 rows", "70.25"},
		},
		{
			name: "partial",
			result: ledger.IngestResult{
				Outcome:   ledger.OutcomePartial,
				Committed: 2,
				Rows:      3,
				Report:    &report,
				Rejected: []csvbatch.Rejection{
					{Line: 4, Reason: csvbatch.ReasonInvalidAmount, Field: "amount", Detail: `"abc"`},
				},
			},
			want: []string{"Committed 2 of 3 rows", "invalid_amount", "amount", "70.25"},
		},
		{
			name:   "nothing valid",
			result: ledger.IngestResult{Outcome: ledger.OutcomeNothingValid, Rows: 1},
			want:   []string{"None of 1 rows"},
		},
		{
			name:   "empty",
			result: ledger.IngestResult{Outcome: ledger.OutcomeEmpty},
			want:   []string{"No rows found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := RenderIngestResult(tt.result)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestRenderRejections_Truncates(t *testing.T) {
	rejections := make([]csvbatch.Rejection, maxRejectionsShown+5)
	for i := range rejections {
		rejections[i] = csvbatch.Rejection{Line: i + 2, Reason: csvbatch.ReasonBadDate}
	}

	out := RenderRejections(rejections)
	assert.Contains(t, out, "... and 5 more")
	assert.Equal(t, maxRejectionsShown, strings.Count(out, "bad_date"))
}

func TestRenderVerifyResult(t *testing.T) {
	report := testReport("5", "1")

	ok := RenderVerifyResult(ledger.VerifyResult{Persisted: report, Recomputed: report, Count: 2, OK: true})
	assert.Contains(t, ok, "matches 2 transactions")

	bad := RenderVerifyResult(ledger.VerifyResult{Persisted: model.NewReport(), Recomputed: report, Count: 2})
	assert.Contains(t, bad, "does not match")
	assert.Contains(t, bad, "Recomputed")
}

func TestRenderTransactions(t *testing.T) {
	assert.Contains(t, RenderTransactions(nil, 0), "No transactions")

	d, err := model.ParseDate("2024-03-01")
	require.NoError(t, err)
	out := RenderTransactions([]model.Transaction{
		{ID: "a", Date: d, Direction: model.DirectionExpense, Amount: money.MustParse("12.00"), Memo: "coffee"},
	}, 9)
	assert.Contains(t, out, "2024-03-01")
	assert.Contains(t, out, "12.00")
	assert.Contains(t, out, "coffee")
	assert.Contains(t, out, "1 of 9 transactions")
}

func TestProgressReader(t *testing.T) {
	var drawn bytes.Buffer
	src := strings.Repeat("2024-01-01,income,1,x\n", 50)

	pr := NewProgressReader(strings.NewReader(src), &drawn, int64(len(src)), "Uploading", false)
	data, err := io.ReadAll(pr)
	require.NoError(t, err)
	pr.Finish()

	assert.Equal(t, src, string(data))
	assert.Equal(t, int64(len(src)), pr.Bytes())
	assert.Empty(t, drawn.String())
}
