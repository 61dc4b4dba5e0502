package meta

import (
	"testing"

	"zigscan/internal/chain"
	"zigscan/internal/repository"
)

func TestSetIf(t *testing.T) {
	var dst *string
	setIf(&dst, "")
	if dst != nil {
		t.Error("empty value must not set")
	}
	setIf(&dst, "first")
	if dst == nil || *dst != "first" {
		t.Fatalf("dst = %v", dst)
	}
	setIf(&dst, "second")
	if *dst != "first" {
		t.Error("set value must not be clobbered")
	}
}

func TestUDenomRe(t *testing.T) {
	cases := []struct {
		denom string
		core  string
		match bool
	}{
		{"uzig", "zig", true},
		{"uatom", "atom", true},
		{"u123", "123", true},
		{"zig", "", false},
		{"uZIG", "", false},
		{"u", "", false},
		{"coin.zig1abc.tkn", "", false},
	}
	for _, c := range cases {
		m := uDenomRe.FindStringSubmatch(c.denom)
		if (m != nil) != c.match {
			t.Errorf("uDenomRe(%q) match = %t, want %t", c.denom, m != nil, c.match)
			continue
		}
		if c.match && m[1] != c.core {
			t.Errorf("uDenomRe(%q) core = %q, want %q", c.denom, m[1], c.core)
		}
	}
}

func TestApplyBankMetadataExponentFromDisplayUnit(t *testing.T) {
	md := &chain.DenomMetadata{
		Base:    "coin.zig1abc.tkn",
		Display: "tkn",
		Name:    "Token",
		Symbol:  "TKN",
		DenomUnits: []chain.DenomUnit{
			{Denom: "coin.zig1abc.tkn", Exponent: 0},
			{Denom: "tkn", Exponent: 6},
		},
	}
	var u repository.TokenMetaUpdate
	applyBankMetadata(&u, md)
	if u.Exponent == nil || *u.Exponent != 6 {
		t.Errorf("exponent = %v, want 6", u.Exponent)
	}
	if u.Name == nil || *u.Name != "Token" {
		t.Errorf("name = %v", u.Name)
	}
	if u.Symbol == nil || *u.Symbol != "TKN" {
		t.Errorf("symbol = %v", u.Symbol)
	}
}

func TestApplyBankMetadataExponentFromAlias(t *testing.T) {
	md := &chain.DenomMetadata{
		Base:    "uzig",
		Display: "zig",
		DenomUnits: []chain.DenomUnit{
			{Denom: "uzig", Exponent: 0},
			{Denom: "ZIG", Exponent: 6, Aliases: []string{"zig"}},
		},
	}
	var u repository.TokenMetaUpdate
	applyBankMetadata(&u, md)
	if u.Exponent == nil || *u.Exponent != 6 {
		t.Errorf("exponent = %v, want 6 via alias", u.Exponent)
	}
}

func TestApplyBankMetadataNoMatchingUnit(t *testing.T) {
	md := &chain.DenomMetadata{
		Base:    "coin.zig1abc.tkn",
		Display: "tkn",
		DenomUnits: []chain.DenomUnit{
			{Denom: "coin.zig1abc.tkn", Exponent: 0},
		},
	}
	var u repository.TokenMetaUpdate
	applyBankMetadata(&u, md)
	if u.Exponent != nil {
		t.Errorf("exponent = %v, want nil when no unit matches display", u.Exponent)
	}
}
