// Package model defines the ledger's domain types.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Veraticus/tally/internal/money"
)

// DateLayout is the only accepted calendar date format.
const DateLayout = "2006-01-02"

// MaxMemoLength is the memo limit in characters (Unicode code points).
const MaxMemoLength = 100

// Direction says whether money came in or went out.
type Direction string

const (
	// DirectionIncome counts toward gross revenue.
	DirectionIncome Direction = "income"
	// DirectionExpense counts toward expenses.
	DirectionExpense Direction = "expense"
)

// ParseDirection accepts "income" or "expense" in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(DirectionIncome):
		return DirectionIncome, nil
	case string(DirectionExpense):
		return DirectionExpense, nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == DirectionIncome || d == DirectionExpense
}

// Transaction is a single ledger entry. Once persisted it is never changed.
type Transaction struct {
	Date      time.Time // midnight UTC of the calendar date
	ID        string
	Memo      string
	Direction Direction
	Amount    money.Amount // always non-negative; Direction carries the sign
}

// ErrInvalidDate marks a calendar date the ledger cannot hold.
var ErrInvalidDate = errors.New("invalid date")

const minYear = 2

// ParseDate parses a YYYY-MM-DD calendar date into midnight UTC. Years
// before 0002 are refused: 0001-01-01 is the zero time.Time, which
// Validate treats as a missing date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	if d.Year() < minYear {
		return time.Time{}, fmt.Errorf("%w: year %d is before %d", ErrInvalidDate, d.Year(), minYear)
	}
	return d, nil
}

// ErrInvalidTransaction marks a candidate that must not reach storage.
var ErrInvalidTransaction = errors.New("invalid transaction")

// Validate checks the invariants every persisted transaction holds.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if !t.Direction.Valid() {
		return fmt.Errorf("%w: direction %q", ErrInvalidTransaction, t.Direction)
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", ErrInvalidTransaction, t.Amount)
	}
	if !utf8.ValidString(t.Memo) {
		return fmt.Errorf("%w: memo is not valid UTF-8", ErrInvalidTransaction)
	}
	if utf8.RuneCountInString(t.Memo) > MaxMemoLength {
		return fmt.Errorf("%w: memo longer than %d characters", ErrInvalidTransaction, MaxMemoLength)
	}
	return nil
}

// DateString returns the transaction date in DateLayout.
func (t Transaction) DateString() string {
	return t.Date.Format(DateLayout)
}

type transactionJSON struct {
	ID        string       `json:"id"`
	Date      string       `json:"date"`
	Direction Direction    `json:"direction"`
	Amount    money.Amount `json:"amount"`
	Memo      string       `json:"memo"`
}

// MarshalJSON renders the date without a time-of-day component.
func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(transactionJSON{
		ID:        t.ID,
		Date:      t.DateString(),
		Direction: t.Direction,
		Amount:    t.Amount,
		Memo:      t.Memo,
	})
}
