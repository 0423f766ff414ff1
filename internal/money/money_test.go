package money

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in       string
		currency string
		want     int64
		wantErr  bool
	}{
		{"300.00", "usd", 30000, false},
		{"0.5", "EUR", 50, false},
		{"1000", "JPY", 1000, false},
		{"1.001", "USD", 0, true},
		{"1.5", "JPY", 0, true},
		{"abc", "USD", 0, true},
		{"1", "US", 0, true},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in, tc.currency)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("Parse(%q,%q): expected error", tc.in, tc.currency)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Parse(%q,%q): %v", tc.in, tc.currency, err)
		}
		if got.Amount != tc.want {
			t.Fatalf("Parse(%q,%q) = %d, want %d", tc.in, tc.currency, got.Amount, tc.want)
		}
	}
}

func TestString(t *testing.T) {
	if got := New(30000, "USD").String(); got != "300.00 USD" {
		t.Fatalf("got %q", got)
	}
	if got := New(1500, "JPY").String(); got != "1500 JPY" {
		t.Fatalf("got %q", got)
	}
}

func TestArithmeticRequiresSameCurrency(t *testing.T) {
	if _, err := New(1, "USD").Add(New(1, "EUR")); !errors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("expected currency mismatch, got %v", err)
	}
	sum, err := New(100, "USD").Add(New(50, "USD"))
	if err != nil || sum.Amount != 150 {
		t.Fatalf("unexpected sum %v err %v", sum, err)
	}
	c, err := New(100, "USD").Cmp(New(50, "USD"))
	if err != nil || c != 1 {
		t.Fatalf("unexpected cmp %d err %v", c, err)
	}
}

func TestPercentAndMin(t *testing.T) {
	m := New(1000000, "USD")
	hold := m.Percent(10).Min(New(50000, "USD"))
	if hold.Amount != 50000 {
		t.Fatalf("expected cap to win, got %d", hold.Amount)
	}
	small := New(1999, "USD").Percent(10)
	if small.Amount != 199 {
		t.Fatalf("expected floor rounding, got %d", small.Amount)
	}
}
