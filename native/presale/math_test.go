package presale

import (
	"errors"
	"math"
	"testing"
)

func TestCheckedAdd(t *testing.T) {
	sum, err := checkedAdd(math.MaxUint64-1, 1)
	if err != nil || sum != math.MaxUint64 {
		t.Fatalf("checkedAdd = %d, %v", sum, err)
	}
	if _, err := checkedAdd(math.MaxUint64, 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
}

func TestCheckedSub(t *testing.T) {
	diff, err := checkedSub(10, 4)
	if err != nil || diff != 6 {
		t.Fatalf("checkedSub = %d, %v", diff, err)
	}
	if _, err := checkedSub(4, 10); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
}

func TestMulDiv(t *testing.T) {
	cases := []struct {
		a, b, den uint64
		want      uint64
	}{
		{50_000_000, 1_000_000, onePerToken, 50},
		{50, onePerToken, 1_000_000, 50_000_000},
		{7, 3, 2, 10}, // floors
		{math.MaxUint64, 2, 4, math.MaxUint64 / 2},
		{0, onePerToken, 1_000_000, 0},
	}
	for _, tc := range cases {
		got, err := mulDiv(tc.a, tc.b, tc.den)
		if err != nil {
			t.Fatalf("mulDiv(%d,%d,%d): %v", tc.a, tc.b, tc.den, err)
		}
		if got != tc.want {
			t.Fatalf("mulDiv(%d,%d,%d) = %d, want %d", tc.a, tc.b, tc.den, got, tc.want)
		}
	}

	if _, err := mulDiv(1, 1, 0); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice for zero denominator, got %v", err)
	}
	if _, err := mulDiv(math.MaxUint64, math.MaxUint64, 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
}
