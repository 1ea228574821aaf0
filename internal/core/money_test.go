package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"0", 0, true},
		{"0.004", 0, true},
		{"-1.5", -150, true},
		{"46116860184273879.04", 1 << 62, true},
		{"46116860184273879.05", 0, false},
		{"184467440737095517.17", 0, false},
		{"-184467440737095517.17", 0, false},
		{"+1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseMoney(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		0:     "0.00",
		5:     "0.05",
		15000: "150.00",
		-250:  "-2.50",
	}
	for cents, want := range cases {
		if got := (Money{Cents: cents}).String(); got != want {
			t.Errorf("Money{%d}.String() = %q, want %q", cents, got, want)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	type wrapper struct {
		Amount   Money  `json:"amount"`
		Override *Money `json:"override"`
	}

	out, err := json.Marshal(wrapper{Amount: Money{Cents: 2500}})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"amount":25.00,"override":null}` {
		t.Fatalf("unexpected encoding %s", out)
	}

	var w wrapper
	if err := json.Unmarshal([]byte(`{"amount":12.345,"override":"7.5"}`), &w); err != nil {
		t.Fatal(err)
	}
	if w.Amount.Cents != 1235 {
		t.Errorf("amount = %d cents, want 1235", w.Amount.Cents)
	}
	if w.Override == nil || w.Override.Cents != 750 {
		t.Errorf("override = %v, want 7.50", w.Override)
	}

	if err := json.Unmarshal([]byte(`{"amount":"lots"}`), &w); err == nil {
		t.Error("expected error for non-numeric amount")
	}

	for _, huge := range []string{`{"amount":184467440737095517.17}`, `{"amount":"-92233720368547758.08"}`} {
		var h wrapper
		err := json.Unmarshal([]byte(huge), &h)
		if !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("%s: err = %v, want ErrInvalidAmount", huge, err)
		}
		if h.Amount.Cents != 0 {
			t.Errorf("%s: amount = %d cents, want untouched", huge, h.Amount.Cents)
		}
	}
}

func TestMoneyArithmetic(t *testing.T) {
	five := NewMoney(5, 0)
	if got := five.Times(10); got.Cents != 5000 {
		t.Errorf("Times = %d", got.Cents)
	}
	if got := NewMoney(10, 0).DivInt(3); got.Cents != 333 {
		t.Errorf("DivInt = %d, want 333", got.Cents)
	}
	if got := NewMoney(1, 50).Sub(NewMoney(2, 0)); got.Cents != -50 {
		t.Errorf("Sub = %d, want -50", got.Cents)
	}
}
