package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Alert kinds. The alert engine itself lives outside this process; these
// types exist so every writer of the alerts table agrees on the params
// shape per kind.
const (
	AlertKindPriceCross  = "price_cross"
	AlertKindWalletTrade = "wallet_trade"
	AlertKindLargeTrade  = "large_trade"
	AlertKindTVLChange   = "tvl_change"
)

// Alert is one row of the 'alerts' table. Params holds the kind-specific
// record, serialized as JSONB.
type Alert struct {
	ID        int64           `json:"id"`
	Kind      string          `json:"kind"`
	Owner     string          `json:"owner"`
	PoolID    *int64          `json:"pool_id,omitempty"`
	TokenID   *int64          `json:"token_id,omitempty"`
	Params    json.RawMessage `json:"params"`
	Enabled   bool            `json:"enabled"`
	CreatedAt time.Time       `json:"created_at"`
}

// PriceCrossParams fires when price crosses Threshold in Direction
// ("above" or "below").
type PriceCrossParams struct {
	Threshold decimal.Decimal `json:"threshold"`
	Direction string          `json:"direction"`
}

// WalletTradeParams fires on any trade signed by Address.
type WalletTradeParams struct {
	Address string `json:"address"`
}

// LargeTradeParams fires on trades above MinQuoteDisp quote DISPLAY units.
type LargeTradeParams struct {
	MinQuoteDisp decimal.Decimal `json:"min_quote_disp"`
}

// TVLChangeParams fires when TVL moves more than PercentChange within
// Bucket.
type TVLChangeParams struct {
	PercentChange decimal.Decimal `json:"percent_change"`
	Bucket        string          `json:"bucket"`
}

// DecodeParams unmarshals the params blob into the variant matching Kind.
func (a *Alert) DecodeParams() (interface{}, error) {
	switch a.Kind {
	case AlertKindPriceCross:
		var p PriceCrossParams
		return &p, json.Unmarshal(a.Params, &p)
	case AlertKindWalletTrade:
		var p WalletTradeParams
		return &p, json.Unmarshal(a.Params, &p)
	case AlertKindLargeTrade:
		var p LargeTradeParams
		return &p, json.Unmarshal(a.Params, &p)
	case AlertKindTVLChange:
		var p TVLChangeParams
		return &p, json.Unmarshal(a.Params, &p)
	default:
		return nil, fmt.Errorf("unknown alert kind %q", a.Kind)
	}
}
