package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/money"
)

// TransactionBuilder builds transaction fixtures fluently.
//
//	txns := testutil.NewTransactionBuilder(t).
//		Income("2021-07-12", "100.50").
//		Expense("2021-07-13", "30.25").
//		Build()
type TransactionBuilder struct {
	t      *testing.T
	prefix string
	txns   []model.Transaction
}

// NewTransactionBuilder returns an empty builder whose generated IDs are
// unique within the test.
func NewTransactionBuilder(t *testing.T) *TransactionBuilder {
	t.Helper()
	return &TransactionBuilder{t: t, prefix: strings.ReplaceAll(t.Name(), "/", "_")}
}

// Income adds an income transaction.
func (b *TransactionBuilder) Income(date, amount string) *TransactionBuilder {
	b.t.Helper()
	return b.add(date, model.DirectionIncome, amount, "")
}

// Expense adds an expense transaction.
func (b *TransactionBuilder) Expense(date, amount string) *TransactionBuilder {
	b.t.Helper()
	return b.add(date, model.DirectionExpense, amount, "")
}

// WithMemo sets the memo of the most recently added transaction.
func (b *TransactionBuilder) WithMemo(memo string) *TransactionBuilder {
	b.t.Helper()
	if len(b.txns) == 0 {
		b.t.Fatal("WithMemo called before adding a transaction")
	}
	b.txns[len(b.txns)-1].Memo = memo
	return b
}

// WithID sets the ID of the most recently added transaction.
func (b *TransactionBuilder) WithID(id string) *TransactionBuilder {
	b.t.Helper()
	if len(b.txns) == 0 {
		b.t.Fatal("WithID called before adding a transaction")
	}
	b.txns[len(b.txns)-1].ID = id
	return b
}

// Repeat adds n income transactions of amount on consecutive days.
func (b *TransactionBuilder) Repeat(n int, amount string) *TransactionBuilder {
	b.t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		b.add(start.AddDate(0, 0, i).Format(model.DateLayout), model.DirectionIncome, amount, "")
	}
	return b
}

// Build returns a copy of the accumulated transactions.
func (b *TransactionBuilder) Build() []model.Transaction {
	out := make([]model.Transaction, len(b.txns))
	copy(out, b.txns)
	return out
}

func (b *TransactionBuilder) add(date string, dir model.Direction, amount, memo string) *TransactionBuilder {
	b.t.Helper()

	d, err := model.ParseDate(date)
	if err != nil {
		b.t.Fatalf("bad fixture date %q: %v", date, err)
	}
	amt, err := money.Parse(amount)
	if err != nil {
		b.t.Fatalf("bad fixture amount %q: %v", amount, err)
	}

	b.txns = append(b.txns, model.Transaction{
		ID:        fmt.Sprintf("%s-%d", b.prefix, len(b.txns)+1),
		Date:      d,
		Direction: dir,
		Amount:    amt,
		Memo:      memo,
	})
	return b
}

// CSV renders rows as comma separated lines with a header. Each row is
// date, direction, amount, memo.
func CSV(rows ...[4]string) string {
	var sb strings.Builder
	sb.WriteString("date,direction,amount,memo\n")
	for _, r := range rows {
		sb.WriteString(strings.Join(r[:], ","))
		sb.WriteByte('\n')
	}
	return sb.String()
}
