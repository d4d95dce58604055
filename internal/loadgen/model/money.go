package model

import (
	"database/sql/driver"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Money is a fixed-point amount with two decimal places, stored as integer cents.
type Money int64

// MoneyFromDecimal rounds d half away from zero to cents.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money(d.Round(2).Shift(2).IntPart())
}

// MoneyFromFloat rounds f half away from zero to cents. Rounding works on the shortest decimal
// representation of f, so 2.675 becomes 2.68 rather than 2.67.
func MoneyFromFloat(f float64) Money {
	return MoneyFromDecimal(decimal.NewFromFloat(f))
}

// MoneyFromCents builds a Money from a whole number of cents.
func MoneyFromCents(c int64) Money {
	return Money(c)
}

// ParseMoney parses a decimal string such as "12.345" or "-3", rounding half away from zero to cents.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid money value %q", s)
	}
	return MoneyFromDecimal(d), nil
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

func (m Money) Cents() int64 {
	return int64(m)
}

func (m Money) Float64() float64 {
	f, _ := m.Decimal().Float64()
	return f
}

// Mul multiplies by an integer quantity. Exact.
func (m Money) Mul(qty int) Money {
	return m * Money(qty)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts both numbers and quoted strings.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		return nil
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value renders the amount as a decimal string, which NUMERIC columns accept without loss.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan accepts whatever the drivers return for NUMERIC: strings or bytes from postgres, and floats or
// integers from sqlite's NUMERIC affinity.
func (m *Money) Scan(src interface{}) error {
	if src == nil {
		*m = 0
		return nil
	}
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return errors.Wrapf(err, "cannot scan %T into Money", src)
	}
	*m = MoneyFromDecimal(d)
	return nil
}
