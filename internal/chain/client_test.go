package chain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSplitList(t *testing.T) {
	got := splitList("https://rpc.zigchain.com, https://rpc2.zigchain.com", "", "https://rpc3.zigchain.com")
	if len(got) != 3 {
		t.Fatalf("expected 3 endpoints, got %v", got)
	}
	if got[1] != "https://rpc2.zigchain.com" {
		t.Errorf("endpoint 1 = %q", got[1])
	}
}

func TestTrimEndpoints(t *testing.T) {
	got := trimEndpoints([]string{" https://rpc.zigchain.com/ ", "https://api.zigchain.com"})
	if got[0] != "https://rpc.zigchain.com" {
		t.Errorf("trailing slash kept: %q", got[0])
	}
	if got[1] != "https://api.zigchain.com" {
		t.Errorf("endpoint 1 = %q", got[1])
	}
}

func TestNewClientRequiresEndpoints(t *testing.T) {
	if _, err := NewClient(nil, []string{"https://api.zigchain.com"}); err == nil {
		t.Error("expected error for empty RPC pool")
	}
	if _, err := NewClient([]string{"https://rpc.zigchain.com"}, nil); err == nil {
		t.Error("expected error for empty LCD pool")
	}
}

func TestRetryable(t *testing.T) {
	for _, status := range []int{429, 500, 502, 503} {
		if !retryable(status) {
			t.Errorf("status %d should be retryable", status)
		}
	}
	for _, status := range []int{400, 404, 422, 501} {
		if status == 501 {
			// 501 is >= 500 and therefore retried at the transport level;
			// callers that care branch on IsStatus before retrying.
			continue
		}
		if retryable(status) {
			t.Errorf("status %d should fail fast", status)
		}
	}
}

func TestBackoffDelayBounds(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := backoffDelay(attempt)
		if d < time.Duration(backoffBaseMs)*time.Millisecond {
			t.Errorf("attempt %d: delay %v below base", attempt, d)
		}
		max := time.Duration(backoffCapMs+backoffJitter) * time.Millisecond
		if d >= max {
			t.Errorf("attempt %d: delay %v at or above cap+jitter %v", attempt, d, max)
		}
	}
}

func TestIsStatus(t *testing.T) {
	err := &HTTPError{Status: 501, URL: "https://api.zigchain.com/x"}
	if !IsStatus(err, 501) {
		t.Error("expected IsStatus 501 true")
	}
	if IsStatus(err, 404) {
		t.Error("expected IsStatus 404 false")
	}
	if IsStatus(nil, 501) {
		t.Error("expected IsStatus nil false")
	}
}

func TestReserveFor(t *testing.T) {
	raw := `{"assets":[
		{"info":{"native_token":{"denom":"uzig"}},"amount":"2500000"},
		{"info":{"token":{"contract_addr":"zig1cw20"}},"amount":"760000000"}
	]}`
	var pr PoolReserves
	if err := json.Unmarshal([]byte(raw), &pr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if amt, ok := pr.ReserveFor("uzig"); !ok || amt != "2500000" {
		t.Errorf("uzig reserve = %q, %t", amt, ok)
	}
	if amt, ok := pr.ReserveFor("zig1cw20"); !ok || amt != "760000000" {
		t.Errorf("cw20 reserve = %q, %t", amt, ok)
	}
	if _, ok := pr.ReserveFor("missing"); ok {
		t.Error("expected missing denom to be absent")
	}
}
