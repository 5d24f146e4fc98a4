// Package money provides the exact decimal type used for every monetary value.
// Binary floating point never appears in the money path.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MaxScale is the largest number of fractional digits accepted by Parse.
	MaxScale = 28
	// MaxIntegerDigits bounds the integer part accepted by Parse.
	MaxIntegerDigits = 40
)

// ErrInvalidAmount is returned for text that is not an exact, plain,
// non-negative decimal.
var ErrInvalidAmount = errors.New("invalid amount")

// Amount is an exact decimal value. The zero value is 0.
type Amount struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Amount{d: decimal.Zero}

// Parse converts plain decimal text such as "100.50" into an Amount.
// Signs other than a leading '+', exponents, separators and special values
// are rejected so the stored value is exactly what the source said.
func Parse(text string) (Amount, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	intPart, fracPart, hasPoint := strings.Cut(s, ".")
	if intPart == "" && fracPart == "" {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
	}
	if hasPoint && fracPart == "" {
		return Amount{}, fmt.Errorf("%w: %q has a trailing point", ErrInvalidAmount, text)
	}
	if !allDigits(intPart) || !allDigits(fracPart) {
		return Amount{}, fmt.Errorf("%w: %q is not a plain decimal", ErrInvalidAmount, text)
	}
	if len(fracPart) > MaxScale {
		return Amount{}, fmt.Errorf("%w: %q has more than %d fractional digits", ErrInvalidAmount, text, MaxScale)
	}
	if len(strings.TrimLeft(intPart, "0")) > MaxIntegerDigits {
		return Amount{}, fmt.Errorf("%w: %q has more than %d integer digits", ErrInvalidAmount, text, MaxIntegerDigits)
	}

	if intPart == "" {
		s = "0" + s
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, text, err)
	}
	return Amount{d: d}, nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(text string) Amount {
	a, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return a
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{d: a.d.Add(b.d)}
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	return Amount{d: a.d.Sub(b.d)}
}

// Cmp compares a and b, returning -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	return a.d.Cmp(b.d)
}

// Equal reports whether a and b have the same value. Scale is ignored:
// 1.5 equals 1.50.
func (a Amount) Equal(b Amount) bool {
	return a.d.Equal(b.d)
}

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool {
	return a.d.IsZero()
}

// IsNegative reports whether a < 0.
func (a Amount) IsNegative() bool {
	return a.d.IsNegative()
}

// String renders the value keeping its scale, so "100.50" stays "100.50".
func (a Amount) String() string {
	if exp := a.d.Exponent(); exp < 0 {
		return a.d.StringFixed(-exp)
	}
	return a.d.String()
}

// Value stores the amount as TEXT.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan reads an amount previously written by Value. Only textual
// representations are accepted; a REAL column would already have lost
// precision.
func (a *Amount) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case nil:
		return fmt.Errorf("%w: NULL", ErrInvalidAmount)
	default:
		return fmt.Errorf("%w: unsupported column type %T", ErrInvalidAmount, src)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	a.d = d
	return nil
}

// MarshalJSON encodes the amount as a JSON string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a JSON string holding a plain decimal.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: amounts must be JSON strings", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	a.d = d
	return nil
}
