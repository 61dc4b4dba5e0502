package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Token kinds as stored in tokens.kind.
const (
	TokenKindNative  = "native"
	TokenKindFactory = "factory"
	TokenKindIBC     = "ibc"
	TokenKindCW20    = "cw20"
)

// Pair types as stored in pools.pair_type.
const (
	PairTypeXYK                = "xyk"
	PairTypeConcentrated       = "concentrated"
	PairTypeCustomConcentrated = "custom-concentrated"
)

// Trade actions and directions.
const (
	ActionSwap     = "swap"
	ActionProvide  = "provide"
	ActionWithdraw = "withdraw"

	DirectionBuy      = "buy"
	DirectionSell     = "sell"
	DirectionProvide  = "provide"
	DirectionWithdraw = "withdraw"
)

// Token represents the 'tokens' table. Base-unit supplies are carried as
// strings bound to NUMERIC(78,0).
type Token struct {
	ID              int64     `json:"id"`
	Denom           string    `json:"denom"`
	Kind            string    `json:"kind"`
	Name            *string   `json:"name,omitempty"`
	Symbol          *string   `json:"symbol,omitempty"`
	Display         *string   `json:"display,omitempty"`
	Image           *string   `json:"image,omitempty"`
	Website         *string   `json:"website,omitempty"`
	Twitter         *string   `json:"twitter,omitempty"`
	Telegram        *string   `json:"telegram,omitempty"`
	Description     *string   `json:"description,omitempty"`
	Exponent        *int      `json:"exponent,omitempty"`
	MaxSupplyBase   *string   `json:"max_supply_base,omitempty"`
	TotalSupplyBase *string   `json:"total_supply_base,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Pool represents the 'pools' table.
type Pool struct {
	ID            int64     `json:"id"`
	PairContract  string    `json:"pair_contract"`
	BaseTokenID   int64     `json:"base_token_id"`
	QuoteTokenID  int64     `json:"quote_token_id"`
	BaseDenom     string    `json:"base_denom"`
	QuoteDenom    string    `json:"quote_denom"`
	LPDenom       *string   `json:"lp_denom,omitempty"`
	PairType      string    `json:"pair_type"`
	IsNativeQuote bool      `json:"is_native_quote"`
	FactoryAddr   *string   `json:"factory_addr,omitempty"`
	RouterAddr    *string   `json:"router_addr,omitempty"`
	CreatedHeight int64     `json:"created_height"`
	CreatedTx     string    `json:"created_tx"`
	CreatedSigner *string   `json:"created_signer,omitempty"`
	CreatedAt     time.Time `json:"created_at"`

	// BaseExponent/QuoteExponent are joined from tokens when loading pool
	// context; nil when the token's exponent is not yet known.
	BaseExponent  *int `json:"base_exponent,omitempty"`
	QuoteExponent *int `json:"quote_exponent,omitempty"`
}

// PoolState is the latest raw reserves for one pool ('pool_state' table).
type PoolState struct {
	PoolID           int64     `json:"pool_id"`
	ReserveBaseBase  string    `json:"reserve_base_base"`
	ReserveQuoteBase string    `json:"reserve_quote_base"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Trade is an immutable event row in the monthly-partitioned 'trades' table.
// Natural key: (created_at, tx_hash, pool_id, msg_index).
type Trade struct {
	CreatedAt        time.Time `json:"created_at"`
	TxHash           string    `json:"tx_hash"`
	PoolID           int64     `json:"pool_id"`
	MsgIndex         int       `json:"msg_index"`
	Action           string    `json:"action"`
	Direction        string    `json:"direction"`
	OfferDenom       *string   `json:"offer_denom,omitempty"`
	OfferAmountBase  *string   `json:"offer_amount_base,omitempty"`
	AskDenom         *string   `json:"ask_denom,omitempty"`
	ReturnAmountBase *string   `json:"return_amount_base,omitempty"`
	ReserveBaseBase  *string   `json:"reserve_base_base,omitempty"`
	ReserveQuoteBase *string   `json:"reserve_quote_base,omitempty"`
	Height           int64     `json:"height"`
	Signer           *string   `json:"signer,omitempty"`
	IsRouter         bool      `json:"is_router"`
}

// Price is the latest scalar price per (token, pool): native units per one
// DISPLAY unit of the base token.
type Price struct {
	TokenID      int64           `json:"token_id"`
	PoolID       int64           `json:"pool_id"`
	PriceNative  decimal.Decimal `json:"price_native"`
	IsPairNative bool            `json:"is_pair_native"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Candle is one row of the monthly-partitioned 'ohlcv_1m' table, keyed on
// (pool_id, minute-aligned bucket_start).
type Candle struct {
	PoolID       int64            `json:"pool_id"`
	BucketStart  time.Time        `json:"bucket_start"`
	Open         decimal.Decimal  `json:"open"`
	High         decimal.Decimal  `json:"high"`
	Low          decimal.Decimal  `json:"low"`
	Close        decimal.Decimal  `json:"close"`
	VolumeNative decimal.Decimal  `json:"volume_native"`
	TradeCount   int64            `json:"trade_count"`
	Liquidity    *decimal.Decimal `json:"liquidity,omitempty"`
}

// PoolMatrix is one (pool, bucket) row of rolling aggregates.
type PoolMatrix struct {
	PoolID           int64           `json:"pool_id"`
	Bucket           string          `json:"bucket"`
	VolBuyQuote      decimal.Decimal `json:"vol_buy_quote"`
	VolSellQuote     decimal.Decimal `json:"vol_sell_quote"`
	VolBuyNative     decimal.Decimal `json:"vol_buy_native"`
	VolSellNative    decimal.Decimal `json:"vol_sell_native"`
	TxBuy            int64           `json:"tx_buy"`
	TxSell           int64           `json:"tx_sell"`
	Traders          int64           `json:"traders"`
	TVLNative        decimal.Decimal `json:"tvl_native"`
	ReserveBaseDisp  decimal.Decimal `json:"reserve_base_disp"`
	ReserveQuoteDisp decimal.Decimal `json:"reserve_quote_disp"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// TokenMatrix is one (token, bucket) row of rolling aggregates.
type TokenMatrix struct {
	TokenID     int64           `json:"token_id"`
	Bucket      string          `json:"bucket"`
	PriceNative decimal.Decimal `json:"price_native"`
	McapNative  decimal.Decimal `json:"mcap_native"`
	FDVNative   decimal.Decimal `json:"fdv_native"`
	Holders     int64           `json:"holders"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Holder is one (token, address) balance row.
type Holder struct {
	TokenID     int64     `json:"token_id"`
	Address     string    `json:"address"`
	BalanceBase string    `json:"balance_base"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HolderStats is the per-token positive-balance holder count.
type HolderStats struct {
	TokenID      int64     `json:"token_id"`
	HoldersCount int64     `json:"holders_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FXRate is one minute-bucketed native-per-USD observation.
type FXRate struct {
	TS           time.Time       `json:"ts"`
	NativePerUSD decimal.Decimal `json:"native_per_usd"`
}

// PairCreated is the JSON payload published on the pair_created channel.
type PairCreated struct {
	PoolID        int64  `json:"pool_id"`
	PairContract  string `json:"pair_contract"`
	BaseDenom     string `json:"base_denom"`
	QuoteDenom    string `json:"quote_denom"`
	BaseTokenID   int64  `json:"base_token_id"`
	QuoteTokenID  int64  `json:"quote_token_id"`
	IsNativeQuote bool   `json:"is_native_quote"`
}

// Bucket is one rolling aggregation window. Order in Buckets matters:
// refreshers iterate smallest to largest.
type Bucket struct {
	Label   string
	Minutes int
}

var Buckets = []Bucket{
	{"30m", 30},
	{"1h", 60},
	{"4h", 240},
	{"24h", 1440},
}
