// Package csvbatch turns uploaded CSV bytes into transaction candidates.
//
// Each record is validated on its own: a bad row becomes a Rejection and
// never affects its neighbours. The package does no I/O beyond reading the
// supplied stream.
package csvbatch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/money"
)

// Column order of an upload.
const (
	colDate = iota
	colDirection
	colAmount
	colMemo
	numFields
)

var fieldNames = [numFields]string{"date", "direction", "amount", "memo"}

// Reason classifies why a row was rejected.
type Reason string

// Rejection reasons.
const (
	ReasonBadDate       Reason = "bad_date"
	ReasonBadDirection  Reason = "bad_direction"
	ReasonInvalidAmount Reason = "invalid_amount"
	ReasonMissingField  Reason = "missing_field"
	ReasonMemoTooLong   Reason = "memo_too_long"
	ReasonMalformed     Reason = "malformed"
)

// Rejection describes one row excluded from a batch.
type Rejection struct {
	Reason Reason `json:"reason"`
	Field  string `json:"field,omitempty"`
	Detail string `json:"detail,omitempty"`
	Line   int    `json:"line"`
}

func (r Rejection) Error() string {
	if r.Field != "" {
		return fmt.Sprintf("line %d: %s (%s): %s", r.Line, r.Reason, r.Field, r.Detail)
	}
	return fmt.Sprintf("line %d: %s: %s", r.Line, r.Reason, r.Detail)
}

// Unwrap lets callers match any rejection with common.ErrValidationFailed.
func (r Rejection) Unwrap() error {
	return common.ErrValidationFailed
}

// Row is the outcome for a single record: a candidate or a rejection.
type Row struct {
	Rejection   *Rejection
	Transaction model.Transaction
	Line        int
}

// Valid reports whether the row produced a transaction candidate.
func (r Row) Valid() bool {
	return r.Rejection == nil
}

// Option configures a Parser.
type Option func(*Parser)

// WithIDGenerator replaces the UUID generator used for candidate IDs.
func WithIDGenerator(fn func() string) Option {
	return func(p *Parser) {
		p.newID = fn
	}
}

// Parser reads records one at a time so memory stays bounded by the
// longest record, not the upload.
type Parser struct {
	cr           *csv.Reader
	newID        func() string
	sawFirstData bool
}

// NewParser returns a Parser reading from r.
func NewParser(r io.Reader, opts ...Option) *Parser {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	p := &Parser{
		cr:    cr,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Next returns the next row. It returns io.EOF once the input is
// exhausted and any other error only when the underlying reader fails.
func (p *Parser) Next() (Row, error) {
	for {
		record, err := p.cr.Read()
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				p.sawFirstData = true
				return rejected(parseErr.StartLine, ReasonMalformed, "", parseErr.Err.Error()), nil
			}
			return Row{}, err
		}

		line, _ := p.cr.FieldPos(0)

		if !p.sawFirstData {
			p.sawFirstData = true
			if strings.EqualFold(strings.TrimSpace(record[0]), fieldNames[colDate]) {
				continue
			}
		}

		return p.validate(line, record), nil
	}
}

func (p *Parser) validate(line int, record []string) Row {
	if len(record) > numFields {
		return rejected(line, ReasonMalformed, "", fmt.Sprintf("expected %d fields, got %d", numFields, len(record)))
	}
	if len(record) < numFields {
		return rejected(line, ReasonMissingField, fieldNames[len(record)], "field not present")
	}

	var fields [numFields]string
	for i := range fields {
		fields[i] = strings.TrimSpace(record[i])
	}

	for _, col := range []int{colDate, colDirection, colAmount} {
		if fields[col] == "" {
			return rejected(line, ReasonMissingField, fieldNames[col], "field is empty")
		}
	}

	date, err := model.ParseDate(fields[colDate])
	if err != nil {
		return rejected(line, ReasonBadDate, fieldNames[colDate], fmt.Sprintf("%q is not a %s date", fields[colDate], model.DateLayout))
	}

	direction, err := model.ParseDirection(fields[colDirection])
	if err != nil {
		return rejected(line, ReasonBadDirection, fieldNames[colDirection], err.Error())
	}

	amount, err := money.Parse(fields[colAmount])
	if err != nil {
		return rejected(line, ReasonInvalidAmount, fieldNames[colAmount], err.Error())
	}

	if !utf8.ValidString(fields[colMemo]) {
		return rejected(line, ReasonMalformed, fieldNames[colMemo], "memo is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(fields[colMemo]); n > model.MaxMemoLength {
		return rejected(line, ReasonMemoTooLong, fieldNames[colMemo], fmt.Sprintf("%d characters, limit is %d", n, model.MaxMemoLength))
	}

	txn := model.Transaction{
		ID:        p.newID(),
		Date:      date,
		Direction: direction,
		Amount:    amount,
		Memo:      fields[colMemo],
	}
	// Every candidate must pass the committer's own check, or one row
	// would fail the whole batch.
	if err := txn.Validate(); err != nil {
		return rejected(line, ReasonMalformed, "", err.Error())
	}
	return Row{Line: line, Transaction: txn}
}

func rejected(line int, reason Reason, field, detail string) Row {
	return Row{
		Line: line,
		Rejection: &Rejection{
			Line:   line,
			Reason: reason,
			Field:  field,
			Detail: detail,
		},
	}
}

// Batch is the partitioned result of parsing a whole upload.
type Batch struct {
	Valid    []model.Transaction
	Rejected []Rejection
	Rows     int
}

// Parse reads r to the end and partitions its rows, preserving order.
func Parse(r io.Reader, opts ...Option) (Batch, error) {
	p := NewParser(r, opts...)

	var batch Batch
	for {
		row, err := p.Next()
		if errors.Is(err, io.EOF) {
			return batch, nil
		}
		if err != nil {
			return batch, fmt.Errorf("reading CSV: %w", err)
		}

		batch.Rows++
		if row.Valid() {
			batch.Valid = append(batch.Valid, row.Transaction)
		} else {
			batch.Rejected = append(batch.Rejected, *row.Rejection)
		}
	}
}
