// Package money wraps shopspring/decimal with the fixed-point discipline the
// ledger requires: scale-4 fractional precision, no implicit float
// conversion, never negative where the domain forbids it.
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every Amount is normalized to.
const Scale = 4

// ErrNegativeAmount is returned by Positive when the amount is not strictly
// greater than zero (zero included); no constructor returns it.
var ErrNegativeAmount = errors.New("money: amount must be greater than zero")

// Amount is a fixed-point monetary value. The zero value is zero.
type Amount struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Amount{d: decimal.Zero}

// NewFromString parses a decimal string (e.g. from a JSON payload) into an Amount.
func NewFromString(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return Amount{d: d.Round(Scale)}, nil
}

// NewFromInt builds an Amount from integer minor units is intentionally NOT
// provided: the source data is always decimal strings or decimal.Decimal,
// never floats or ad-hoc integer cents, to keep one canonical representation.

// FromDecimal wraps an existing decimal.Decimal, rounding to Scale.
func FromDecimal(d decimal.Decimal) Amount {
	return Amount{d: d.Round(Scale)}
}

// Positive validates that the amount is strictly greater than zero, per the
// ledger_entry.amount > 0 and reservation.amount > 0 invariants.
func (a Amount) Positive() error {
	if !a.d.IsPositive() {
		return ErrNegativeAmount
	}
	return nil
}

func (a Amount) IsZero() bool     { return a.d.IsZero() }
func (a Amount) IsNegative() bool { return a.d.IsNegative() }

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d).Round(Scale)} }
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d).Round(Scale)} }
func (a Amount) Neg() Amount         { return Amount{d: a.d.Neg()} }
func (a Amount) Abs() Amount         { return Amount{d: a.d.Abs()} }

func (a Amount) Cmp(b Amount) int        { return a.d.Cmp(b.d) }
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }
func (a Amount) LessThan(b Amount) bool    { return a.d.LessThan(b.d) }

// MulFloat scales an amount by a plain ratio (e.g. the 1.5 spike multiplier).
// The ratio itself is policy configuration, never a persisted monetary value,
// so a float64 multiplier is acceptable here without violating the no-float
// discipline on stored amounts.
func (a Amount) MulFloat(ratio float64) Amount {
	return Amount{d: a.d.Mul(decimal.NewFromFloat(ratio)).Round(Scale)}
}

func (a Amount) String() string { return a.d.StringFixed(Scale) }

func (a Amount) Decimal() decimal.Decimal { return a.d }

// Value implements driver.Valuer so Amount can be written directly by database/sql and GORM.
func (a Amount) Value() (driver.Value, error) {
	return a.d.StringFixed(Scale), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		a.d = decimal.Zero
		return nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return err
		}
		a.d = d.Round(Scale)
		return nil
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return err
		}
		a.d = d.Round(Scale)
		return nil
	case float64:
		// Defensive only: a driver should never hand back a float for a
		// NUMERIC column, but some sqlite shims do.
		a.d = decimal.NewFromFloat(v).Round(Scale)
		return nil
	default:
		return fmt.Errorf("money: unsupported scan type %T", src)
	}
}

// MarshalJSON serializes as a decimal string, never a JSON number, to preserve precision.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.d.StringFixed(Scale) + `"`), nil
}

// UnmarshalJSON accepts only a quoted decimal string.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		a.d = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("money: unmarshal %q: %w", s, err)
	}
	a.d = d.Round(Scale)
	return nil
}

// Sum totals a slice of Amounts.
func Sum(amounts ...Amount) Amount {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
