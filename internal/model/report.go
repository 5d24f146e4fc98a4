package model

import "github.com/Veraticus/tally/internal/money"

// Report is the running aggregate over every committed transaction.
//
// NetRevenue is persisted for O(1) reads but is always derived from the
// other two fields. Apply and Add are the only code paths that change
// totals, which keeps NetRevenue == GrossRevenue - Expenses by construction.
type Report struct {
	GrossRevenue money.Amount `json:"gross_revenue"`
	Expenses     money.Amount `json:"expenses"`
	NetRevenue   money.Amount `json:"net_revenue"`
}

// NewReport returns the all-zero report.
func NewReport() Report {
	return Report{
		GrossRevenue: money.Zero,
		Expenses:     money.Zero,
		NetRevenue:   money.Zero,
	}
}

// Apply returns r with the given transactions folded in.
func (r Report) Apply(txns ...Transaction) Report {
	gross := r.GrossRevenue
	expenses := r.Expenses
	for _, txn := range txns {
		switch txn.Direction {
		case DirectionIncome:
			gross = gross.Add(txn.Amount)
		case DirectionExpense:
			expenses = expenses.Add(txn.Amount)
		}
	}
	return derive(gross, expenses)
}

// Add returns the field-wise sum of two reports.
func (r Report) Add(other Report) Report {
	return derive(r.GrossRevenue.Add(other.GrossRevenue), r.Expenses.Add(other.Expenses))
}

// Balanced reports whether the stored net matches gross minus expenses.
func (r Report) Balanced() bool {
	return r.NetRevenue.Equal(r.GrossRevenue.Sub(r.Expenses))
}

// Equal compares all three fields by value.
func (r Report) Equal(other Report) bool {
	return r.GrossRevenue.Equal(other.GrossRevenue) &&
		r.Expenses.Equal(other.Expenses) &&
		r.NetRevenue.Equal(other.NetRevenue)
}

// ReportFromTransactions computes a report from scratch.
func ReportFromTransactions(txns []Transaction) Report {
	return NewReport().Apply(txns...)
}

func derive(gross, expenses money.Amount) Report {
	return Report{
		GrossRevenue: gross,
		Expenses:     expenses,
		NetRevenue:   gross.Sub(expenses),
	}
}
