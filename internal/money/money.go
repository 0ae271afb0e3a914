// Package money provides exact currency arithmetic for the receivables ledger.
// All ledger math goes through Money; float64 amounts never enter the core.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an immutable currency amount backed by an arbitrary-precision decimal.
type Money struct {
	amount decimal.Decimal
}

// Zero returns a zero amount.
func Zero() Money {
	return Money{}
}

// New wraps a decimal as Money.
func New(d decimal.Decimal) Money {
	return Money{amount: d}
}

// FromString parses a decimal string such as "1234.56".
func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return Money{amount: d}, nil
}

// MustFromString parses a decimal string and panics on failure. Test fixtures only.
func MustFromString(s string) Money {
	m, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

// FromMinorUnits builds Money from an integer count of minor units (cents).
func FromMinorUnits(units int64) Money {
	return Money{amount: decimal.New(units, -2)}
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{amount: m.amount.Add(o.amount)}
}

// Sub returns m - o.
func (m Money) Sub(o Money) Money {
	return Money{amount: m.amount.Sub(o.amount)}
}

// SubFloor returns m - o clamped at zero. Used where the domain forbids
// negative balances.
func (m Money) SubFloor(o Money) Money {
	r := m.amount.Sub(o.amount)
	if r.IsNegative() {
		return Money{}
	}
	return Money{amount: r}
}

// MulInt returns m multiplied by an integer factor (line quantity math).
func (m Money) MulInt(n int64) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(n))}
}

// Cmp compares m against o: -1 when less, 0 when equal, 1 when greater.
func (m Money) Cmp(o Money) int {
	return m.amount.Cmp(o.amount)
}

// Equal reports whether the two amounts are numerically equal.
func (m Money) Equal(o Money) bool {
	return m.amount.Equal(o.amount)
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsPositive reports whether the amount is greater than zero.
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// IsNegative reports whether the amount is less than zero.
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// Min returns the smaller of m and o.
func (m Money) Min(o Money) Money {
	if m.Cmp(o) <= 0 {
		return m
	}
	return o
}

// Decimal exposes the underlying decimal for persistence scanning.
func (m Money) Decimal() decimal.Decimal {
	return m.amount
}

// MinorUnits returns the amount as minor units, rounding half away from zero.
func (m Money) MinorUnits() int64 {
	return m.amount.Round(2).Shift(2).IntPart()
}

// String renders the amount with two decimal places.
func (m Money) String() string {
	return m.amount.StringFixed(2)
}

// MarshalJSON encodes the amount as a quoted 2-decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts either a quoted decimal string or a bare number.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("money: unmarshal %s: %w", data, err)
	}
	m.amount = d
	return nil
}
