package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Money is a fixed-point amount in minor units (cents, fils, ...) of a single
// currency. The zero value is "0" with an empty currency code and only
// compares against itself; construct values with NewMoney.
type Money struct {
	amount   int64
	currency string
}

// NewMoney builds a Money from minor units. Negative amounts are rejected.
func NewMoney(minorUnits int64, currency string) (Money, error) {
	if minorUnits < 0 {
		return Money{}, ErrNegativeAmount
	}
	if currency == "" {
		return Money{}, fmt.Errorf("money: %w: empty currency code", ErrCurrencyMismatch)
	}
	return Money{amount: minorUnits, currency: currency}, nil
}

// MustMoney is NewMoney that panics; for constants and tests.
func MustMoney(minorUnits int64, currency string) Money {
	m, err := NewMoney(minorUnits, currency)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Amount() int64    { return m.amount }
func (m Money) Currency() string { return m.currency }
func (m Money) IsZero() bool     { return m.amount == 0 }

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.amount, m.currency)
}

func (m Money) sameCurrency(o Money) error {
	if m.currency != o.currency {
		return fmt.Errorf("money: %w: %q vs %q", ErrCurrencyMismatch, m.currency, o.currency)
	}
	return nil
}

// Add returns m+o, rejecting mixed currencies and int64 overflow.
func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	if m.amount > math.MaxInt64-o.amount {
		return Money{}, ErrAmountOverflow
	}
	return Money{amount: m.amount + o.amount, currency: m.currency}, nil
}

// Sub returns m-o; a negative result is an error, not a value.
func (m Money) Sub(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	if o.amount > m.amount {
		return Money{}, ErrNegativeAmount
	}
	return Money{amount: m.amount - o.amount, currency: m.currency}, nil
}

// Cmp returns -1, 0 or +1. Comparing different currencies is an error.
func (m Money) Cmp(o Money) (int, error) {
	if err := m.sameCurrency(o); err != nil {
		return 0, err
	}
	switch {
	case m.amount < o.amount:
		return -1, nil
	case m.amount > o.amount:
		return 1, nil
	default:
		return 0, nil
	}
}

// GTE reports m >= o for same-currency values.
func (m Money) GTE(o Money) (bool, error) {
	c, err := m.Cmp(o)
	return c >= 0, err
}

// MulRatio scales the amount by num/den, rounding half up to the nearest
// minor unit. Used for increment suggestions ("next bid +5%").
func (m Money) MulRatio(num, den int64) (Money, error) {
	if den == 0 {
		return Money{}, fmt.Errorf("money: zero denominator")
	}
	r := decimal.NewFromInt(m.amount).
		Mul(decimal.NewFromInt(num)).
		DivRound(decimal.NewFromInt(den), 0)
	if !r.IsInteger() || !r.BigInt().IsInt64() {
		return Money{}, ErrAmountOverflow
	}
	v := r.IntPart()
	if v < 0 {
		return Money{}, ErrNegativeAmount
	}
	return Money{amount: v, currency: m.currency}, nil
}

// MoneyMin returns the smaller of two same-currency values.
func MoneyMin(a, b Money) (Money, error) {
	c, err := a.Cmp(b)
	if err != nil {
		return Money{}, err
	}
	if c <= 0 {
		return a, nil
	}
	return b, nil
}
