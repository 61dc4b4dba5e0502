package security

import (
	"testing"

	"zigscan/internal/chain"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestMintable(t *testing.T) {
	cases := []struct {
		name string
		fd   chain.FactoryDenom
		want *bool
	}{
		{"movable cap", chain.FactoryDenom{CanChangeMintingCap: true, TotalMinted: "0", MaxSupply: "0"}, boolPtr(true)},
		{"headroom left", chain.FactoryDenom{TotalMinted: "500", MaxSupply: "1000"}, boolPtr(true)},
		{"fully minted", chain.FactoryDenom{TotalMinted: "1000", MaxSupply: "1000"}, boolPtr(false)},
		{"unreadable amounts", chain.FactoryDenom{TotalMinted: "", MaxSupply: "1000"}, nil},
	}
	for _, c := range cases {
		got := mintable(&c.fd)
		if (got == nil) != (c.want == nil) {
			t.Errorf("%s: mintable = %v, want %v", c.name, got, c.want)
			continue
		}
		if got != nil && *got != *c.want {
			t.Errorf("%s: mintable = %t, want %t", c.name, *got, *c.want)
		}
	}
}

func TestConcentration(t *testing.T) {
	top := []decimal.Decimal{dec("500"), dec("300"), dec("100")}
	topShare, top10 := concentration(top, dec("1000"))
	if topShare == nil || !topShare.Equal(dec("0.5")) {
		t.Errorf("top holder share = %v, want 0.5", topShare)
	}
	if top10 == nil || !top10.Equal(dec("0.9")) {
		t.Errorf("top10 share = %v, want 0.9", top10)
	}
}

func TestConcentrationEmpty(t *testing.T) {
	if a, b := concentration(nil, dec("1000")); a != nil || b != nil {
		t.Errorf("expected nil shares for no holders, got %v/%v", a, b)
	}
	if a, b := concentration([]decimal.Decimal{dec("5")}, decimal.Zero); a != nil || b != nil {
		t.Errorf("expected nil shares for zero total, got %v/%v", a, b)
	}
}

func boolPtr(v bool) *bool { return &v }
