package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/Veraticus/tally/internal/storage"
	"github.com/Veraticus/tally/internal/testutil"
)

func newTestService(t *testing.T) (*Service, *testutil.TestDB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return New(db.Storage, Options{}), db
}

func TestService_CommitScenarioAB(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	batchA := testutil.NewTransactionBuilder(t).
		Income("2021-07-12", "100.50").
		Expense("2021-07-13", "30.25").
		Build()
	batchB := testutil.NewTransactionBuilder(t).
		Income("2021-07-14", "0.01").WithID("b-1").
		Build()

	// Readers only ever see the report before A, after A, or after B.
	allowed := map[string]bool{"0": true, "70.25": true, "70.26": true}
	done := make(chan struct{})
	var readerErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			report, err := svc.Report(ctx)
			if err != nil {
				readerErr = err
				return
			}
			if !allowed[report.NetRevenue.String()] || !report.Balanced() {
				readerErr = fmt.Errorf("observed intermediate report %+v", report)
				return
			}
		}
	}()

	resA, err := svc.Commit(ctx, batchA)
	require.NoError(t, err)
	assert.Equal(t, 2, resA.Committed)
	assert.Equal(t, "100.50", resA.Report.GrossRevenue.String())
	assert.Equal(t, "30.25", resA.Report.Expenses.String())
	assert.Equal(t, "70.25", resA.Report.NetRevenue.String())

	resB, err := svc.Commit(ctx, batchB)
	require.NoError(t, err)

	close(done)
	wg.Wait()
	require.NoError(t, readerErr)

	assert.Equal(t, "100.51", resB.Report.GrossRevenue.String())
	assert.Equal(t, "30.25", resB.Report.Expenses.String())
	assert.Equal(t, "70.26", resB.Report.NetRevenue.String())
	assert.Equal(t, 3, db.MustCount())

	persisted, err := svc.Report(ctx)
	require.NoError(t, err)
	assert.True(t, persisted.Equal(resB.Report))
}

func TestService_CommitEmptyTouchesNothing(t *testing.T) {
	store := &failingStore{err: errors.New("store must not be called")}
	svc := New(store, Options{})

	res, err := svc.Commit(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Committed)
	assert.Zero(t, store.calls)
}

func TestService_CommitRejectsInvalidCandidates(t *testing.T) {
	store := &failingStore{err: errors.New("store must not be called")}
	svc := New(store, Options{})

	bad := testutil.NewTransactionBuilder(t).Income("2024-01-01", "1").Build()
	bad[0].Direction = "transfer"

	_, err := svc.Commit(context.Background(), bad)
	assert.ErrorIs(t, err, common.ErrInvalidBatch)
	assert.ErrorIs(t, err, common.ErrValidationFailed)
	assert.ErrorIs(t, err, model.ErrInvalidTransaction)
	assert.Zero(t, store.calls)
}

func TestService_CommitIsAtomic(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.Commit(ctx, testutil.NewTransactionBuilder(t).Income("2024-01-01", "10").WithID("taken").Build())
	require.NoError(t, err)
	before := db.MustReport()

	// The collision is the last row, after the others were inserted.
	batch := testutil.NewTransactionBuilder(t).Repeat(300, "1.00").Build()
	batch[len(batch)-1].ID = "taken"

	_, err = svc.Commit(ctx, batch)
	require.ErrorIs(t, err, common.ErrPersistenceFailed)
	assert.False(t, common.IsRetryable(err))

	assert.Equal(t, 1, db.MustCount())
	assert.True(t, db.MustReport().Equal(before))
}

func TestService_CommitCanceledContext(t *testing.T) {
	svc, db := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Commit(ctx, testutil.NewTransactionBuilder(t).Income("2024-01-01", "1").Build())
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, db.MustCount())
}

func TestService_CongestedWhenPoolHeld(t *testing.T) {
	db := testutil.SetupTestDBWithOptions(t, testutil.TestDBOptions{
		Pool: storage.Options{MaxConns: 1, AcquireTimeout: 50 * time.Millisecond},
	})
	svc := New(db.Storage, Options{})
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	holderDone := make(chan error, 1)
	go func() {
		holderDone <- db.Storage.WithinSnapshot(ctx, func(service.Snapshot) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	_, err := svc.Ingest(ctx, strings.NewReader(testutil.CSV([4]string{"2024-01-01", "income", "5", ""})), 0)
	assert.ErrorIs(t, err, common.ErrCongested)
	assert.True(t, common.IsRetryable(err))

	_, err = svc.Report(ctx)
	assert.ErrorIs(t, err, common.ErrCongested)

	close(release)
	require.NoError(t, <-holderDone)

	// Congestion left nothing behind and the pool recovers.
	assert.Zero(t, db.MustCount())
	res, err := svc.Ingest(ctx, strings.NewReader(testutil.CSV([4]string{"2024-01-01", "income", "5", ""})), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Committed)
}

func TestService_ConcurrentCommitsLoseNothing(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	const uploads = 20
	const rowsPerUpload = 5

	var wg sync.WaitGroup
	errs := make(chan error, uploads)
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows := make([][4]string, rowsPerUpload)
			for j := range rows {
				rows[j] = [4]string{"2024-05-01", "Income", "1.01", "tip"}
			}
			if _, err := svc.Ingest(ctx, strings.NewReader(testutil.CSV(rows...)), 0); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("upload failed: %v", err)
	}

	report := db.MustReport()
	assert.Equal(t, "101.00", report.GrossRevenue.String())
	assert.Equal(t, "101.00", report.NetRevenue.String())
	assert.Equal(t, uploads*rowsPerUpload, db.MustCount())

	verified, err := svc.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, verified.OK)
}

func TestService_Verify(t *testing.T) {
	seed := testutil.NewTransactionBuilder(t).
		Income("2024-01-01", "87.32").
		Expense("2024-01-02", "12.13").
		Build()
	db := testutil.SetupTestDBWithOptions(t, testutil.TestDBOptions{Seed: seed})
	svc := New(db.Storage, Options{})

	res, err := svc.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, "75.19", res.Recomputed.NetRevenue.String())
}

func TestService_VerifyDetectsDrift(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	// Write transactions without updating the report.
	err := db.Storage.WithinTx(ctx, func(tx service.Transaction) error {
		return tx.InsertTransactions(ctx, testutil.NewTransactionBuilder(t).Income("2024-01-01", "3").Build())
	})
	require.NoError(t, err)

	res, err := New(db.Storage, Options{}).Verify(ctx)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "0", res.Persisted.NetRevenue.String())
	assert.Equal(t, "3", res.Recomputed.NetRevenue.String())
}

func TestService_ReadPassThrough(t *testing.T) {
	seed := testutil.NewTransactionBuilder(t).Repeat(4, "2.50").Build()
	db := testutil.SetupTestDBWithOptions(t, testutil.TestDBOptions{Seed: seed})
	svc := New(db.Storage, Options{})
	ctx := context.Background()

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	page, err := svc.Transactions(ctx, service.TransactionFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, seed[0].ID, page[0].ID)

	txn, err := svc.Transaction(ctx, seed[3].ID)
	require.NoError(t, err)
	assert.Equal(t, "2.50", txn.Amount.String())

	_, err = svc.Transaction(ctx, "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, svc.Health(ctx))
}

// failingStore counts calls and fails every one of them.
type failingStore struct {
	err   error
	calls int
}

func (f *failingStore) fail() error {
	f.calls++
	return f.err
}

func (f *failingStore) WithinTx(context.Context, func(service.Transaction) error) error {
	return f.fail()
}

func (f *failingStore) WithinSnapshot(context.Context, func(service.Snapshot) error) error {
	return f.fail()
}

func (f *failingStore) GetReport(context.Context) (model.Report, error) {
	return model.Report{}, f.fail()
}

func (f *failingStore) GetTransactionByID(context.Context, string) (*model.Transaction, error) {
	return nil, f.fail()
}

func (f *failingStore) ListTransactions(context.Context, service.TransactionFilter) ([]model.Transaction, error) {
	return nil, f.fail()
}

func (f *failingStore) CountTransactions(context.Context) (int, error) {
	return 0, f.fail()
}

func (f *failingStore) Ping(context.Context) error    { return f.fail() }
func (f *failingStore) Migrate(context.Context) error { return f.fail() }
func (f *failingStore) Close() error                  { return nil }
