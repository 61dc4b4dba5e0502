package rollup

import (
	"testing"

	"zigscan/internal/models"

	"github.com/shopspring/decimal"
)

func TestPickTokenPrice(t *testing.T) {
	d := decimal.RequireFromString
	cases := []struct {
		name      string
		a         string
		hasA      bool
		b         string
		hasB      bool
		exp       int
		heuristic bool
		want      string
	}{
		{"leak in range divides by 1e6", "2500000", true, "2.5", true, 6, true, "2.5"},
		{"ratio below range keeps A", "1000", true, "2.5", true, 6, true, "1000"},
		{"ratio above range keeps A", "50000000", true, "2.5", true, 6, true, "50000000"},
		{"non-6 exponent keeps A", "2500000", true, "2.5", true, 8, true, "2500000"},
		{"heuristic off keeps A", "2500000", true, "2.5", true, 6, false, "2500000"},
		{"A wins over B", "1.2", true, "1.1", true, 6, false, "1.2"},
		{"B when no A", "0", false, "1.1", true, 6, false, "1.1"},
		{"zero when neither", "0", false, "0", false, 6, false, "0"},
		{"zero B disables correction", "2500000", true, "0", true, 6, true, "2500000"},
	}
	for _, c := range cases {
		got := pickTokenPrice(d(c.a), c.hasA, d(c.b), c.hasB, c.exp, c.heuristic)
		if !got.Equal(d(c.want)) {
			t.Errorf("%s: pickTokenPrice = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestExponentOrDefault(t *testing.T) {
	if got := exponentOrDefault(nil); got != 6 {
		t.Errorf("exponentOrDefault(nil) = %d, want 6", got)
	}
	zero := 0
	if got := exponentOrDefault(&zero); got != 0 {
		t.Errorf("exponentOrDefault(0) = %d, want 0", got)
	}
	eight := 8
	if got := exponentOrDefault(&eight); got != 8 {
		t.Errorf("exponentOrDefault(8) = %d, want 8", got)
	}
}

func TestQuoteExponent(t *testing.T) {
	nine := 9
	native := &models.Pool{IsNativeQuote: true, QuoteExponent: &nine}
	if got := quoteExponent(native); got != 6 {
		t.Errorf("native-quoted pool exponent = %d, want 6", got)
	}

	nonNative := &models.Pool{IsNativeQuote: false, QuoteExponent: &nine}
	if got := quoteExponent(nonNative); got != 9 {
		t.Errorf("non-native quote exponent = %d, want 9", got)
	}

	unknown := &models.Pool{IsNativeQuote: false}
	if got := quoteExponent(unknown); got != 6 {
		t.Errorf("unknown quote exponent = %d, want default 6", got)
	}
}
