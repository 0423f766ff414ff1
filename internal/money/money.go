package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an immutable amount in minor units of a currency.
// Amounts are int64 minor units (e.g., cents); Scale is the number of minor
// digits for the currency and is only used when converting to/from decimals.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Scale    int32  `json:"scale"`
}

var (
	ErrCurrencyMismatch = errors.New("money: currency mismatch")
	ErrInvalidCurrency  = errors.New("money: invalid currency")
	ErrInvalidAmount    = errors.New("money: invalid amount")
)

// zeroDecimalCurrencies have no minor unit.
var zeroDecimalCurrencies = map[string]struct{}{
	"JPY": {}, "KRW": {}, "VND": {}, "CLP": {}, "ISK": {}, "UGX": {}, "XAF": {}, "XOF": {},
}

// ScaleOf returns the minor-unit digits for an ISO 4217 currency code.
func ScaleOf(currency string) int32 {
	if _, ok := zeroDecimalCurrencies[currency]; ok {
		return 0
	}
	return 2
}

// NormalizeCurrency upper-cases and validates a three-letter currency code.
func NormalizeCurrency(currency string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if len(c) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", ErrInvalidCurrency
		}
	}
	return c, nil
}

// New returns an amount of minor units in currency.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: currency, Scale: ScaleOf(currency)}
}

// Parse converts a decimal string such as "300.00" into minor units.
// More fractional digits than the currency allows is an error, not a rounding.
func Parse(s, currency string) (Money, error) {
	cur, err := NormalizeCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	scale := ScaleOf(cur)
	minor := d.Shift(scale)
	if !minor.Equal(minor.Truncate(0)) {
		return Money{}, fmt.Errorf("%w: too many decimal places for %s", ErrInvalidAmount, cur)
	}
	if !minor.IsInteger() || minor.GreaterThan(decimal.NewFromInt(1<<62)) || minor.LessThan(decimal.NewFromInt(-(1 << 62))) {
		return Money{}, fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	return Money{Amount: minor.IntPart(), Currency: cur, Scale: scale}, nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -m.Scale)
}

// String formats as "300.00 USD".
func (m Money) String() string {
	return m.Decimal().StringFixed(m.Scale) + " " + m.Currency
}

func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsPositive() bool { return m.Amount > 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }

func (m Money) sameCurrency(o Money) error {
	if m.Currency != o.Currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return nil
}

// Add returns m+o.
func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount + o.Amount, Currency: m.Currency, Scale: m.Scale}, nil
}

// Sub returns m-o.
func (m Money) Sub(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount - o.Amount, Currency: m.Currency, Scale: m.Scale}, nil
}

// Cmp returns -1, 0 or +1. Currencies must match.
func (m Money) Cmp(o Money) (int, error) {
	if err := m.sameCurrency(o); err != nil {
		return 0, err
	}
	switch {
	case m.Amount < o.Amount:
		return -1, nil
	case m.Amount > o.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

// Percent returns pct percent of m, rounded down to the minor unit.
func (m Money) Percent(pct int64) Money {
	return Money{Amount: m.Amount * pct / 100, Currency: m.Currency, Scale: m.Scale}
}

// Min returns the smaller of m and o (o's currency is assumed equal).
func (m Money) Min(o Money) Money {
	if o.Amount < m.Amount {
		return Money{Amount: o.Amount, Currency: m.Currency, Scale: m.Scale}
	}
	return m
}
