package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zigscan.yaml")
	doc := `database_url: postgres://zigscan:pw@localhost:5432/zigscan
rpc_primary: https://rpc.zigchain.com
lcd_primary: https://api.zigchain.com
native_denom: uzig
api_port: 9090
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://zigscan:pw@localhost:5432/zigscan" {
		t.Errorf("database_url = %q", cfg.DatabaseURL)
	}
	if cfg.RPCPrimary != "https://rpc.zigchain.com" {
		t.Errorf("rpc_primary = %q", cfg.RPCPrimary)
	}
	if cfg.NativeDenom != "uzig" {
		t.Errorf("native_denom = %q", cfg.NativeDenom)
	}
	if cfg.APIPort != 9090 {
		t.Errorf("api_port = %d", cfg.APIPort)
	}
	if cfg.RPCBackup != "" {
		t.Errorf("rpc_backup should be empty, got %q", cfg.RPCBackup)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNetworkDefault(t *testing.T) {
	t.Setenv("ZIGCHAIN_NETWORK", "")
	if n := Network(); n != "mainnet" {
		t.Errorf("Network() = %q, want mainnet", n)
	}
	t.Setenv("ZIGCHAIN_NETWORK", "TestNet")
	if n := Network(); n != "testnet" {
		t.Errorf("Network() = %q, want testnet", n)
	}
	t.Setenv("ZIGCHAIN_NETWORK", "garbage")
	if n := Network(); n != "mainnet" {
		t.Errorf("Network() = %q, want mainnet fallback", n)
	}
}
