// Package core holds the ledger's record model and the pure derivation rules
// shared by every consumer.
//
// Money is kept in integer cents. Conversions from user input and floating
// point products go through shopspring/decimal with half-up rounding to the
// cent, so that sums stay exact.
package core

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Money struct {
	Cents int64
}

var ErrInvalidAmount = errors.New("invalid amount")

// maxCents bounds parsed amounts well inside int64.
var maxCents = decimal.NewFromInt(1 << 62)

// ParseMoney converts a decimal string to Money with half-up rounding to the cent.
//
// Both dot (12.34) and comma (12,34) separators are accepted, as is a leading
// minus. Amounts beyond ±2^62 cents are rejected.
//
//	ParseMoney("12.345") -> 12.35
//	ParseMoney("12,34")  -> 12.34
func ParseMoney(s string) (Money, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" || strings.HasPrefix(s, "+") {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	cents := d.Round(2).Shift(2)
	if cents.Abs().GreaterThan(maxCents) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

// NewMoney builds Money from a whole amount and cents, e.g. NewMoney(12, 34).
func NewMoney(units, cents int64) Money {
	return Money{Cents: units*100 + cents}
}

// MoneyFromDecimal rounds d half-up to the cent.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.Round(2).Shift(2).IntPart()}
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

// Times multiplies by an integer count, exact in cents.
func (m Money) Times(n int) Money { return Money{Cents: m.Cents * int64(n)} }

// DivInt divides by n, rounding half-up to the cent. n must be positive.
func (m Money) DivInt(n int) Money {
	return MoneyFromDecimal(m.Decimal().Div(decimal.NewFromInt(int64(n))))
}

func (m Money) IsZero() bool { return m.Cents == 0 }

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// String formats with exactly two decimals, e.g. "150.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Float returns the value for display and spreadsheets only.
func (m Money) Float() float64 {
	return m.Decimal().InexactFloat64()
}

// MarshalJSON writes a plain JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or numeric string within ParseMoney's range.
func (m *Money) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := strings.Trim(string(data), `"`)
	if raw == "" {
		*m = Money{}
		return nil
	}
	parsed, err := ParseMoney(raw)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, data)
	}
	*m = parsed
	return nil
}
