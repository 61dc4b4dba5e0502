package ingester

import (
	"testing"

	"zigscan/internal/chain"
	"zigscan/internal/models"
)

func TestMatchEvents(t *testing.T) {
	events := []chain.Event{
		{Type: "swap", Attributes: []chain.EventAttribute{{Key: "msg_index", Value: "0"}}},
		{Type: "wasm-swap", Attributes: []chain.EventAttribute{{Key: "msg_index", Value: "1"}}},
		{Type: "wasm", Attributes: []chain.EventAttribute{
			{Key: "action", Value: "swap"},
			{Key: "msg_index", Value: "2"},
		}},
		{Type: "wasm", Attributes: []chain.EventAttribute{
			{Key: "action", Value: "provide_liquidity"},
			{Key: "msg_index", Value: "3"},
		}},
	}
	wasms := chain.ByType(events, "wasm")

	got := matchEvents(events, wasms, "swap")
	if len(got) != 3 {
		t.Fatalf("expected 3 swap events across surfacings, got %d", len(got))
	}
	indexes := map[string]bool{}
	for _, a := range got {
		indexes[a["msg_index"]] = true
	}
	for _, want := range []string{"0", "1", "2"} {
		if !indexes[want] {
			t.Errorf("missing event with msg_index %s", want)
		}
	}
}

func TestPoolAddressPrefersRegister(t *testing.T) {
	task := poolTask{
		registers: []chain.Attrs{
			{"pair_contract_addr": "zig1pair"},
		},
		instantiates: []chain.Attrs{
			{"_contract_address": "zig1lp"},
		},
	}
	if addr := poolAddress(task); addr != "zig1pair" {
		t.Errorf("poolAddress = %q, want register address", addr)
	}
}

func TestPoolAddressFallsBackToLastInstantiate(t *testing.T) {
	task := poolTask{
		instantiates: []chain.Attrs{
			{"_contract_address": "zig1first"},
			{"_contract_address": "zig1last"},
		},
	}
	if addr := poolAddress(task); addr != "zig1last" {
		t.Errorf("poolAddress = %q, want last instantiate", addr)
	}
	if addr := poolAddress(poolTask{}); addr != "" {
		t.Errorf("poolAddress of empty task = %q", addr)
	}
}

func TestAlignReserves(t *testing.T) {
	pool := &models.Pool{BaseDenom: "coin.zig1abc.tkn", QuoteDenom: "uzig"}
	assets := []chain.AssetAmount{
		{Denom: "uzig", AmountBase: "2500000"},
		{Denom: "coin.zig1abc.tkn", AmountBase: "760000000"},
	}
	rb, rq, ok := alignReserves(assets, pool)
	if !ok {
		t.Fatal("expected both legs found")
	}
	if rb != "760000000" || rq != "2500000" {
		t.Errorf("reserves = %q, %q", rb, rq)
	}

	_, _, ok = alignReserves(assets[:1], pool)
	if ok {
		t.Error("expected missing base leg to report !ok")
	}
	_, _, ok = alignReserves(nil, pool)
	if ok {
		t.Error("expected empty assets to report !ok")
	}
}

func TestLiquidityReservesPrefersExplicitAttrs(t *testing.T) {
	attrs := chain.Attrs{
		"reserve_asset1_denom":  "coin.zig1abc.tkn",
		"reserve_asset1_amount": "760000000",
		"reserve_asset2_denom":  "uzig",
		"reserve_asset2_amount": "2500000",
		"reserves":              "other:1,uzig:2",
	}
	got := liquidityReserves(attrs)
	if len(got) != 2 {
		t.Fatalf("expected 2 legs, got %v", got)
	}
	if got[0].Denom != "coin.zig1abc.tkn" || got[1].AmountBase != "2500000" {
		t.Errorf("legs = %v", got)
	}
}

func TestLiquidityReservesFallsBackToKV(t *testing.T) {
	attrs := chain.Attrs{
		"reserve_asset1_denom": "coin.zig1abc.tkn", // amount missing
		"reserves":             "coin.zig1abc.tkn:760000000,uzig:2500000",
	}
	got := liquidityReserves(attrs)
	if len(got) != 2 {
		t.Fatalf("expected fallback to reserves attribute, got %v", got)
	}
	if got[1].Denom != "uzig" {
		t.Errorf("legs = %v", got)
	}
}

func TestAtoiDefault(t *testing.T) {
	if got := atoiDefault("7", 0); got != 7 {
		t.Errorf("atoiDefault(7) = %d", got)
	}
	if got := atoiDefault("", 3); got != 3 {
		t.Errorf("atoiDefault(empty) = %d", got)
	}
	if got := atoiDefault("x", -1); got != -1 {
		t.Errorf("atoiDefault(x) = %d", got)
	}
}

func TestPtrNonEmpty(t *testing.T) {
	if ptrNonEmpty("") != nil {
		t.Error("expected nil for empty string")
	}
	if p := ptrNonEmpty("zig1addr"); p == nil || *p != "zig1addr" {
		t.Errorf("ptrNonEmpty = %v", p)
	}
}
