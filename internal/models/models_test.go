package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestBuckets(t *testing.T) {
	want := map[string]int{"30m": 30, "1h": 60, "4h": 240, "24h": 1440}
	if len(Buckets) != len(want) {
		t.Fatalf("expected %d buckets, got %d", len(want), len(Buckets))
	}
	for _, b := range Buckets {
		if want[b.Label] != b.Minutes {
			t.Errorf("bucket %s = %d minutes, want %d", b.Label, b.Minutes, want[b.Label])
		}
	}
}

func TestAlertDecodeParams(t *testing.T) {
	a := Alert{
		Kind:   AlertKindPriceCross,
		Params: json.RawMessage(`{"threshold":"0.05","direction":"above"}`),
	}
	v, err := a.DecodeParams()
	if err != nil {
		t.Fatalf("DecodeParams: %v", err)
	}
	p, ok := v.(*PriceCrossParams)
	if !ok {
		t.Fatalf("wrong params type %T", v)
	}
	if p.Direction != "above" || !p.Threshold.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("params = %+v", p)
	}

	a.Kind = "bogus"
	if _, err := a.DecodeParams(); err == nil {
		t.Error("expected error for unknown kind")
	}
}
