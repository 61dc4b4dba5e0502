package chain

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"
)

// Attrs is one event's decoded attribute map.
type Attrs map[string]string

// AssetAmount is one {denom, amount} leg parsed from an event attribute.
type AssetAmount struct {
	Denom      string
	AmountBase string
}

// decodeMaybeBase64 decodes s from base64 only when the decode is safe:
// the decoded bytes must re-encode to exactly s and contain only printable
// ASCII. Chains emit both plain and base64-coded attributes depending on
// version, so anything ambiguous is kept verbatim.
func decodeMaybeBase64(s string) string {
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return s
	}
	if base64.StdEncoding.EncodeToString(decoded) != s {
		return s
	}
	for _, b := range decoded {
		if b < 0x20 || b > 0x7e {
			return s
		}
	}
	return string(decoded)
}

// DecodeAttrs converts a raw event's attributes into a map, decoding
// base64 keys and values where safe. Later duplicates win.
func DecodeAttrs(ev Event) Attrs {
	out := make(Attrs, len(ev.Attributes))
	for _, a := range ev.Attributes {
		out[decodeMaybeBase64(a.Key)] = decodeMaybeBase64(a.Value)
	}
	return out
}

// ByType returns the decoded attribute maps of all events with the given
// type, in emission order.
func ByType(events []Event, typ string) []Attrs {
	var out []Attrs
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, DecodeAttrs(ev))
		}
	}
	return out
}

// WasmByAction filters wasm attribute maps down to those whose action
// attribute equals action.
func WasmByAction(wasms []Attrs, action string) []Attrs {
	var out []Attrs
	for _, w := range wasms {
		if w["action"] == action {
			out = append(out, w)
		}
	}
	return out
}

// MsgSenderByIndex builds a msg-index -> signer map from the tx's message
// events. Events without a parseable msg_index are skipped.
func MsgSenderByIndex(messages []Attrs) map[int]string {
	out := make(map[int]string)
	for _, m := range messages {
		sender := m["sender"]
		if sender == "" {
			continue
		}
		idx, err := strconv.Atoi(m["msg_index"])
		if err != nil {
			continue
		}
		if _, seen := out[idx]; !seen {
			out[idx] = sender
		}
	}
	return out
}

// ParsePair splits a factory pair string like "TKN-uzig" into base and
// quote denoms. Whichever side equals the native denom becomes the quote.
func ParsePair(pair, nativeDenom string) (base, quote string) {
	if strings.HasSuffix(pair, "-"+nativeDenom) {
		return strings.TrimSuffix(pair, "-"+nativeDenom), nativeDenom
	}
	if strings.HasPrefix(pair, nativeDenom+"-") {
		return strings.TrimPrefix(pair, nativeDenom+"-"), nativeDenom
	}
	parts := strings.SplitN(pair, "-", 2)
	if len(parts) != 2 {
		return pair, ""
	}
	return parts[0], parts[1]
}

// ParseReservesKV parses "TKN:760000000,uzig:2500000" style reserve
// attributes.
func ParseReservesKV(s string) []AssetAmount {
	var out []AssetAmount
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(kv) != 2 || kv[0] == "" || kv[1] == "" {
			continue
		}
		out = append(out, AssetAmount{Denom: kv[0], AmountBase: kv[1]})
	}
	return out
}

// ParseAssetsList parses "1000000000TKN,2000000uzig" style asset lists:
// leading digits are the base amount, the remainder is the denom.
func ParseAssetsList(s string) []AssetAmount {
	var out []AssetAmount
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		i := 0
		for i < len(part) && part[i] >= '0' && part[i] <= '9' {
			i++
		}
		if i == 0 || i == len(part) {
			continue
		}
		out = append(out, AssetAmount{Denom: part[i:], AmountBase: part[:i]})
	}
	return out
}

// ClassifyDirection maps a swap's offer denom to a trade direction:
// offering the quote asset buys the base asset.
func ClassifyDirection(offerDenom, quoteDenom string) string {
	if offerDenom == quoteDenom {
		return "buy"
	}
	return "sell"
}

// TxHash computes the canonical tx hash (uppercase hex SHA-256) from the
// base64 tx bytes of a /block response.
func TxHash(rawBase64Tx string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(rawBase64Tx)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return strings.ToUpper(hex.EncodeToString(sum[:])), nil
}
