package market

import (
	"testing"

	"github.com/shopspring/decimal"
)

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestComputePrice(t *testing.T) {
	// 760 TKN vs 2.5 ZIG, both exponent 6: one TKN costs 2.5/760 ZIG.
	got, err := ComputePrice("760000000", "2500000", 6, 6)
	if err != nil {
		t.Fatalf("ComputePrice: %v", err)
	}
	want := mustDec(t, "2.5").DivRound(mustDec(t, "760"), 18)
	if !got.Equal(want) {
		t.Errorf("price = %v, want %v", got, want)
	}
}

func TestComputePriceExponentMismatch(t *testing.T) {
	// An exponent-0 base token: 500 units vs 2 ZIG.
	got, err := ComputePrice("500", "2000000", 0, 6)
	if err != nil {
		t.Fatalf("ComputePrice: %v", err)
	}
	if !got.Equal(mustDec(t, "0.004")) {
		t.Errorf("price = %v, want 0.004", got)
	}
}

func TestComputePriceZeroBase(t *testing.T) {
	if _, err := ComputePrice("0", "2500000", 6, 6); err == nil {
		t.Error("expected error on zero base reserve")
	}
}

func TestComputePriceBadInput(t *testing.T) {
	if _, err := ComputePrice("abc", "1", 6, 6); err == nil {
		t.Error("expected error on non-numeric base")
	}
	if _, err := ComputePrice("1", "", 6, 6); err == nil {
		t.Error("expected error on empty quote")
	}
}
