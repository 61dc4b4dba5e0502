package chain

import (
	"encoding/base64"
	"testing"
)

func TestDecodeMaybeBase64(t *testing.T) {
	// Plain strings survive unchanged even when they happen to be valid
	// base64 of non-printable bytes.
	cases := []struct {
		in, want string
	}{
		{"offer_asset", "offer_asset"},
		{base64.StdEncoding.EncodeToString([]byte("offer_asset")), "offer_asset"},
		{"uzig", "uzig"},
		{"", ""},
		{base64.StdEncoding.EncodeToString([]byte{0x00, 0x01}), base64.StdEncoding.EncodeToString([]byte{0x00, 0x01})},
		{"not base64!!", "not base64!!"},
	}
	for _, c := range cases {
		if got := decodeMaybeBase64(c.in); got != c.want {
			t.Errorf("decodeMaybeBase64(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDecodeAttrsLaterDuplicateWins(t *testing.T) {
	ev := Event{
		Type: "wasm",
		Attributes: []EventAttribute{
			{Key: "action", Value: "swap"},
			{Key: "action", Value: "provide_liquidity"},
		},
	}
	attrs := DecodeAttrs(ev)
	if attrs["action"] != "provide_liquidity" {
		t.Fatalf("expected later duplicate to win, got %q", attrs["action"])
	}
}

func TestByType(t *testing.T) {
	events := []Event{
		{Type: "message", Attributes: []EventAttribute{{Key: "sender", Value: "zig1aaa"}}},
		{Type: "wasm", Attributes: []EventAttribute{{Key: "action", Value: "swap"}}},
		{Type: "message", Attributes: []EventAttribute{{Key: "sender", Value: "zig1bbb"}}},
	}
	msgs := ByType(events, "message")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 message events, got %d", len(msgs))
	}
	if msgs[0]["sender"] != "zig1aaa" || msgs[1]["sender"] != "zig1bbb" {
		t.Fatalf("events out of emission order: %v", msgs)
	}
}

func TestWasmByAction(t *testing.T) {
	wasms := []Attrs{
		{"action": "swap", "msg_index": "0"},
		{"action": "provide_liquidity", "msg_index": "1"},
		{"action": "swap", "msg_index": "2"},
	}
	swaps := WasmByAction(wasms, "swap")
	if len(swaps) != 2 {
		t.Fatalf("expected 2 swaps, got %d", len(swaps))
	}
	if swaps[1]["msg_index"] != "2" {
		t.Fatalf("wrong swap kept: %v", swaps[1])
	}
}

func TestMsgSenderByIndex(t *testing.T) {
	messages := []Attrs{
		{"sender": "zig1signer", "msg_index": "0"},
		{"sender": "zig1module", "msg_index": "0"}, // first writer wins
		{"sender": "zig1other", "msg_index": "2"},
		{"sender": "zig1nomsgidx"},
		{"msg_index": "3"},
	}
	got := MsgSenderByIndex(messages)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %v", got)
	}
	if got[0] != "zig1signer" {
		t.Errorf("msg 0 sender = %q, want zig1signer", got[0])
	}
	if got[2] != "zig1other" {
		t.Errorf("msg 2 sender = %q, want zig1other", got[2])
	}
}

func TestParsePair(t *testing.T) {
	cases := []struct {
		pair, base, quote string
	}{
		{"coin.zig1abc.tkn-uzig", "coin.zig1abc.tkn", "uzig"},
		{"uzig-coin.zig1abc.tkn", "coin.zig1abc.tkn", "uzig"},
		{"coin.zig1abc.aaa-coin.zig1def.bbb", "coin.zig1abc.aaa", "coin.zig1def.bbb"},
		{"nodash", "nodash", ""},
	}
	for _, c := range cases {
		base, quote := ParsePair(c.pair, "uzig")
		if base != c.base || quote != c.quote {
			t.Errorf("ParsePair(%q) = (%q, %q), want (%q, %q)", c.pair, base, quote, c.base, c.quote)
		}
	}
}

func TestParseReservesKV(t *testing.T) {
	got := ParseReservesKV("coin.zig1abc.tkn:760000000, uzig:2500000")
	if len(got) != 2 {
		t.Fatalf("expected 2 legs, got %v", got)
	}
	if got[0].Denom != "coin.zig1abc.tkn" || got[0].AmountBase != "760000000" {
		t.Errorf("leg 0 = %+v", got[0])
	}
	if got[1].Denom != "uzig" || got[1].AmountBase != "2500000" {
		t.Errorf("leg 1 = %+v", got[1])
	}
	if got := ParseReservesKV("garbage"); got != nil {
		t.Errorf("expected nil for malformed input, got %v", got)
	}
	if got := ParseReservesKV(""); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}

func TestParseAssetsList(t *testing.T) {
	got := ParseAssetsList("1000000000coin.zig1abc.tkn,2000000uzig")
	if len(got) != 2 {
		t.Fatalf("expected 2 legs, got %v", got)
	}
	if got[0].Denom != "coin.zig1abc.tkn" || got[0].AmountBase != "1000000000" {
		t.Errorf("leg 0 = %+v", got[0])
	}
	if got[1].Denom != "uzig" || got[1].AmountBase != "2000000" {
		t.Errorf("leg 1 = %+v", got[1])
	}
	// No digits, and digits-only, are both skipped.
	if got := ParseAssetsList("uzig,123456"); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestClassifyDirection(t *testing.T) {
	if d := ClassifyDirection("uzig", "uzig"); d != "buy" {
		t.Errorf("offering the quote should buy the base, got %q", d)
	}
	if d := ClassifyDirection("coin.zig1abc.tkn", "uzig"); d != "sell" {
		t.Errorf("offering the base should sell, got %q", d)
	}
}

func TestTxHash(t *testing.T) {
	// SHA-256 of the three bytes "abc", a standard test vector.
	hash, err := TxHash(base64.StdEncoding.EncodeToString([]byte("abc")))
	if err != nil {
		t.Fatalf("TxHash: %v", err)
	}
	want := "BA7816BF8F01CFEA414140DE5DAE2223B00361A396177A9CB410FF61F20015AD"
	if hash != want {
		t.Errorf("TxHash = %s, want %s", hash, want)
	}
	if _, err := TxHash("not base64!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}
