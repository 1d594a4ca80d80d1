package money

import "testing"

func TestString(t *testing.T) {
	cases := []struct {
		in   Cents
		want string
	}{
		{0, "$0.00"},
		{7, "$0.07"},
		{123456, "$1,234.56"},
		{-7, "-$0.07"},
		{-123456, "-$1,234.56"},
		{100000000, "$1,000,000.00"},
	}
	for _, tc := range cases {
		if got := tc.in.String(); got != tc.want {
			t.Errorf("Cents(%d).String() = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFromDollars(t *testing.T) {
	if got := FromDollars(25000); got != 2500000 {
		t.Fatalf("FromDollars(25000) = %d, want 2500000", got)
	}
	if got := Cents(2599).Dollars(); got != 25 {
		t.Fatalf("Dollars() = %d, want 25", got)
	}
	if got := Cents(-2599).Dollars(); got != -25 {
		t.Fatalf("Dollars() = %d, want -25 (truncate toward zero)", got)
	}
}

func TestMulBasisPoints(t *testing.T) {
	cases := []struct {
		amount Cents
		bps    int64
		want   Cents
	}{
		{2000, 1500, 300},  // 15% of $20.00
		{1999, 1500, 300},  // 299.85 rounds half up
		{1, 1500, 0},       // 0.15 rounds down
		{3, 1500, 0},       // 0.45 rounds down
		{4, 1500, 1},       // 0.60 rounds up
		{-2000, 1500, -300},
		{-1999, 1500, -300}, // symmetric away from zero
		{2000, 0, 0},
		{2000, 10000, 2000}, // 100%
	}
	for _, tc := range cases {
		if got := tc.amount.MulBasisPoints(tc.bps); got != tc.want {
			t.Errorf("Cents(%d).MulBasisPoints(%d) = %d, want %d",
				tc.amount, tc.bps, got, tc.want)
		}
	}
}

func TestMulQty(t *testing.T) {
	if got := Cents(322).MulQty(3); got != 966 {
		t.Fatalf("MulQty = %d, want 966", got)
	}
	if got := Cents(322).MulQty(0); got != 0 {
		t.Fatalf("MulQty zero = %d, want 0", got)
	}
}
