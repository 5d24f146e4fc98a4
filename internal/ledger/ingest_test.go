package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/csvbatch"
	"github.com/Veraticus/tally/internal/testutil"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestService_Ingest(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantOutcome   Outcome
		wantLines     []int
		wantCommitted int
		wantNet       string
	}{
		{
			name: "all valid",
			body: testutil.CSV(
				[4]string{"2021-07-12", "Income", "100.50", "consulting"},
				[4]string{"2021-07-13", "Expense", "30.25", "hosting"},
			),
			wantOutcome:   OutcomeCommitted,
			wantCommitted: 2,
			wantNet:       "70.25",
		},
		{
			name: "partial",
			body: testutil.CSV(
				[4]string{"2021-07-12", "Income", "100.50", "ok"},
				[4]string{"12/07/2021", "Income", "1", "bad date"},
				[4]string{"2021-07-13", "Expense", "abc", "bad amount"},
				[4]string{"2021-07-14", "Expense", "0.25", "ok"},
			),
			wantOutcome:   OutcomePartial,
			wantCommitted: 2,
			wantLines:     []int{3, 4},
			wantNet:       "100.25",
		},
		{
			name: "nothing valid",
			body: testutil.CSV(
				[4]string{"2021-07-12", "Transfer", "1", ""},
				[4]string{"2021-07-12", "Income", "-1", ""},
			),
			wantOutcome: OutcomeNothingValid,
			wantLines:   []int{2, 3},
			wantNet:     "0",
		},
		{
			name:        "header only",
			body:        "date,direction,amount,memo\n",
			wantOutcome: OutcomeEmpty,
			wantNet:     "0",
		},
		{
			name:        "no bytes",
			body:        "",
			wantOutcome: OutcomeEmpty,
			wantNet:     "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.SetupTestDB(t)
			svc := New(db.Storage, Options{IDGenerator: sequentialIDs()})

			res, err := svc.Ingest(context.Background(), strings.NewReader(tt.body), 1<<20)
			require.NoError(t, err)

			assert.Equal(t, tt.wantOutcome, res.Outcome)
			assert.Equal(t, tt.wantCommitted, res.Committed)
			assert.Equal(t, tt.wantCommitted, db.MustCount())
			assert.NotNil(t, res.Rejected)

			lines := make([]int, 0, len(res.Rejected))
			for _, r := range res.Rejected {
				lines = append(lines, r.Line)
			}
			if tt.wantLines == nil {
				assert.Empty(t, lines)
			} else {
				assert.Equal(t, tt.wantLines, lines)
			}

			if tt.wantCommitted > 0 {
				require.NotNil(t, res.Report)
				assert.Equal(t, tt.wantNet, res.Report.NetRevenue.String())
			} else {
				assert.Nil(t, res.Report)
			}
			assert.Equal(t, tt.wantNet, db.MustReport().NetRevenue.String())
		})
	}
}

func TestService_IngestEdgeRowsStandAlone(t *testing.T) {
	tests := []struct {
		name         string
		row          string
		wantRejected bool
	}{
		{name: "zero time date", row: "0001-01-01,income,2.00,b", wantRejected: true},
		{name: "year zero", row: "0000-01-01,income,2.00,b", wantRejected: true},
		{name: "earliest date", row: "0002-01-01,income,2.00,b"},
		{name: "zero amount", row: "2024-01-01,income,0,b"},
		{name: "explicit plus", row: "2024-01-01,income,+1,b"},
		{name: "memo at limit", row: "2024-01-01,income,1," + strings.Repeat("m", 100)},
		{name: "multibyte memo at limit", row: "2024-01-01,income,1," + strings.Repeat("ü", 100)},
		{name: "invalid utf-8 memo", row: "2024-01-01,income,1,caf\xe9", wantRejected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.SetupTestDB(t)
			svc := New(db.Storage, Options{})

			body := "2024-01-01,income,1.00,a\n" + tt.row + "\n2024-01-02,expense,0.50,c\n"
			res, err := svc.Ingest(context.Background(), strings.NewReader(body), 0)
			require.NoError(t, err)
			assert.Equal(t, 3, res.Rows)

			if tt.wantRejected {
				assert.Equal(t, OutcomePartial, res.Outcome)
				assert.Equal(t, 2, res.Committed)
				require.Len(t, res.Rejected, 1)
				assert.Equal(t, 2, res.Rejected[0].Line)
			} else {
				assert.Equal(t, OutcomeCommitted, res.Outcome)
				assert.Equal(t, 3, res.Committed)
				assert.Empty(t, res.Rejected)
			}
			assert.Equal(t, res.Committed, db.MustCount())

			verify, err := svc.Verify(context.Background())
			require.NoError(t, err)
			assert.True(t, verify.OK)
		})
	}
}

func TestService_IngestZeroTimeDateKeepsNeighbours(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db.Storage, Options{})

	body := "2024-01-01,income,1.00,a\n0001-01-01,income,2.00,b\n2024-01-02,expense,0.50,c\n"
	res, err := svc.Ingest(context.Background(), strings.NewReader(body), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Committed)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, csvbatch.ReasonBadDate, res.Rejected[0].Reason)
	require.NotNil(t, res.Report)
	assert.Equal(t, "0.50", res.Report.NetRevenue.String())
}

func TestService_IngestRejectionReasons(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db.Storage, Options{})

	body := testutil.CSV(
		[4]string{"2021-13-01", "Income", "1", ""},
		[4]string{"2021-01-01", "Income", "1.5e3", ""},
		[4]string{"2021-01-01", "Income", "1", strings.Repeat("m", 101)},
		[4]string{"2021-01-01", "Sideways", "1", ""},
	)
	res, err := svc.Ingest(context.Background(), strings.NewReader(body), 0)
	require.NoError(t, err)

	reasons := make([]csvbatch.Reason, 0, len(res.Rejected))
	for _, r := range res.Rejected {
		reasons = append(reasons, r.Reason)
		assert.ErrorIs(t, r, common.ErrValidationFailed)
	}
	assert.Equal(t, []csvbatch.Reason{
		csvbatch.ReasonBadDate,
		csvbatch.ReasonInvalidAmount,
		csvbatch.ReasonMemoTooLong,
		csvbatch.ReasonBadDirection,
	}, reasons)
}

func TestService_IngestTooLarge(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db.Storage, Options{})

	body := testutil.CSV(
		[4]string{"2021-07-12", "Income", "100.50", "first"},
		[4]string{"2021-07-13", "Income", "1.00", "second"},
	)

	_, err := svc.Ingest(context.Background(), strings.NewReader(body), int64(len(body)-1))
	require.ErrorIs(t, err, common.ErrTooLarge)
	assert.Zero(t, db.MustCount())

	res, err := svc.Ingest(context.Background(), strings.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Committed)
}

func TestService_IngestReaderFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db.Storage, Options{})

	boom := errors.New("connection reset")
	r := io.MultiReader(
		strings.NewReader("2021-07-12,Income,1.00,ok\n"),
		&errReader{err: boom},
	)

	_, err := svc.Ingest(context.Background(), r, 0)
	require.ErrorIs(t, err, boom)
	assert.Zero(t, db.MustCount())
}

func TestLimitedReader(t *testing.T) {
	r := &limitedReader{r: strings.NewReader("abcdef"), remaining: 6, limit: 6}
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))

	r = &limitedReader{r: strings.NewReader("abcdefg"), remaining: 6, limit: 6}
	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, common.ErrTooLarge)
}

type errReader struct {
	err error
}

func (e *errReader) Read([]byte) (int, error) {
	return 0, e.err
}
