package config

import (
	"os"
	"strings"
	"sync"
)

// ChainAddresses holds network-specific well-known addresses and denoms.
type ChainAddresses struct {
	FactoryAddr  string
	RouterAddr   string
	NativeDenom  string
	RPCPrimary   string
	LCDPrimary   string
	AssetListURL string
}

var (
	addresses     *ChainAddresses
	addressesOnce sync.Once
)

var mainnetAddresses = ChainAddresses{
	FactoryAddr:  "zig1v5n2j9rqrtv5jrrycupyp8mjs85q5sc6dyydrl4x3qwxvk0tsw6q5462y5",
	RouterAddr:   "zig15l8wg9c7gm206r2zf4890cek4k2uh0nkrnvmfezy77m6z9t9vg0s9mgfrm",
	NativeDenom:  "uzig",
	RPCPrimary:   "https://rpc.zigchain.com",
	LCDPrimary:   "https://api.zigchain.com",
	AssetListURL: "https://raw.githubusercontent.com/zigchain/chain-registry/main/zigchain/assetlist.json",
}

var testnetAddresses = ChainAddresses{
	FactoryAddr:  "zig1xr9rmgkrvu6f5tzmkkc6astvlrfmwa9gsgxvyvp9vpwp3f9ez4vq7n2rwx",
	RouterAddr:   "zig1jdp0hwmwyazmw2v9s9rf429cgl7me44lc3cmyvqhy2g0qf6z29mq5ew3k5",
	NativeDenom:  "uzig",
	RPCPrimary:   "https://testnet-rpc.zigchain.com",
	LCDPrimary:   "https://testnet-api.zigchain.com",
	AssetListURL: "https://raw.githubusercontent.com/zigchain/chain-registry/main/testnets/zigchaintestnet/assetlist.json",
}

// Addr returns the global ChainAddresses for the configured network.
// Reads ZIGCHAIN_NETWORK env var on first call ("testnet" or "mainnet",
// default "mainnet").
func Addr() *ChainAddresses {
	addressesOnce.Do(func() {
		switch Network() {
		case "testnet":
			a := testnetAddresses
			addresses = &a
		default:
			a := mainnetAddresses
			addresses = &a
		}
	})
	return addresses
}

// Network returns "testnet" or "mainnet" based on ZIGCHAIN_NETWORK env var.
func Network() string {
	network := strings.TrimSpace(strings.ToLower(os.Getenv("ZIGCHAIN_NETWORK")))
	if network == "testnet" {
		return "testnet"
	}
	return "mainnet"
}
