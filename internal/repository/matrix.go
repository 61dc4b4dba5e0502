package repository

import (
	"context"
	"fmt"

	"zigscan/internal/models"

	"github.com/shopspring/decimal"
)

// SwapAggregate is the raw per-pool swap rollup over one window. Quote
// sums are BASE units: buys sum offer_amount_base (quote offered), sells
// sum return_amount_base (quote returned).
type SwapAggregate struct {
	PoolID       int64
	BuyQuoteRaw  decimal.Decimal
	SellQuoteRaw decimal.Decimal
	TxBuy        int64
	TxSell       int64
	Traders      int64
}

// SwapAggregates rolls up swaps from the last `minutes`, grouped by pool.
// poolID > 0 scopes to one pool.
func (r *Repository) SwapAggregates(ctx context.Context, minutes int, poolID int64) ([]SwapAggregate, error) {
	rows, err := r.db.Query(ctx, `
		SELECT pool_id,
			COALESCE(SUM(offer_amount_base) FILTER (WHERE direction = 'buy'), 0),
			COALESCE(SUM(return_amount_base) FILTER (WHERE direction = 'sell'), 0),
			COUNT(*) FILTER (WHERE direction = 'buy'),
			COUNT(*) FILTER (WHERE direction = 'sell'),
			COUNT(DISTINCT signer) FILTER (WHERE signer IS NOT NULL)
		FROM trades
		WHERE action = 'swap'
		  AND created_at >= NOW() - ($1 || ' minutes')::INTERVAL
		  AND ($2 = 0 OR pool_id = $2)
		GROUP BY pool_id`,
		minutes, poolID)
	if err != nil {
		return nil, fmt.Errorf("swap aggregates: %w", err)
	}
	defer rows.Close()

	var out []SwapAggregate
	for rows.Next() {
		var a SwapAggregate
		if err := rows.Scan(&a.PoolID, &a.BuyQuoteRaw, &a.SellQuoteRaw, &a.TxBuy, &a.TxSell, &a.Traders); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertPoolMatrixVolumes writes the volume/count columns for one
// (pool, bucket) row, leaving TVL columns alone.
func (r *Repository) UpsertPoolMatrixVolumes(ctx context.Context, m models.PoolMatrix) error {
	return r.withRetry(ctx, func() error {
		_, err := r.db.Exec(ctx, `
			INSERT INTO pool_matrix (
				pool_id, bucket, vol_buy_quote, vol_sell_quote,
				vol_buy_native, vol_sell_native, tx_buy, tx_sell, traders, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
			ON CONFLICT (pool_id, bucket) DO UPDATE SET
				vol_buy_quote = EXCLUDED.vol_buy_quote,
				vol_sell_quote = EXCLUDED.vol_sell_quote,
				vol_buy_native = EXCLUDED.vol_buy_native,
				vol_sell_native = EXCLUDED.vol_sell_native,
				tx_buy = EXCLUDED.tx_buy,
				tx_sell = EXCLUDED.tx_sell,
				traders = EXCLUDED.traders,
				updated_at = NOW()`,
			m.PoolID, m.Bucket, m.VolBuyQuote, m.VolSellQuote,
			m.VolBuyNative, m.VolSellNative, m.TxBuy, m.TxSell, m.Traders)
		return err
	})
}

// UpdatePoolMatrixTVL writes the TVL and display-reserve columns for one
// (pool, bucket) row.
func (r *Repository) UpdatePoolMatrixTVL(ctx context.Context, poolID int64, bucket string, tvl, reserveBaseDisp, reserveQuoteDisp decimal.Decimal) error {
	return r.withRetry(ctx, func() error {
		_, err := r.db.Exec(ctx, `
			INSERT INTO pool_matrix (pool_id, bucket, tvl_native, reserve_base_disp, reserve_quote_disp, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (pool_id, bucket) DO UPDATE SET
				tvl_native = EXCLUDED.tvl_native,
				reserve_base_disp = EXCLUDED.reserve_base_disp,
				reserve_quote_disp = EXCLUDED.reserve_quote_disp,
				updated_at = NOW()`,
			poolID, bucket, tvl, reserveBaseDisp, reserveQuoteDisp)
		return err
	})
}

// UpsertTokenMatrix writes one (token, bucket) row.
func (r *Repository) UpsertTokenMatrix(ctx context.Context, m models.TokenMatrix) error {
	return r.withRetry(ctx, func() error {
		_, err := r.db.Exec(ctx, `
			INSERT INTO token_matrix (token_id, bucket, price_native, mcap_native, fdv_native, holders, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (token_id, bucket) DO UPDATE SET
				price_native = EXCLUDED.price_native,
				mcap_native = EXCLUDED.mcap_native,
				fdv_native = EXCLUDED.fdv_native,
				holders = EXCLUDED.holders,
				updated_at = NOW()`,
			m.TokenID, m.Bucket, m.PriceNative, m.McapNative, m.FDVNative, m.Holders)
		return err
	})
}

// TokenSupply carries the supply and exponent figures the token matrix
// needs, all as stored (base units).
type TokenSupply struct {
	TokenID         int64
	Exponent        *int
	MaxSupplyBase   *string
	TotalSupplyBase *string
}

func (r *Repository) GetTokenSupply(ctx context.Context, tokenID int64) (*TokenSupply, error) {
	var s TokenSupply
	err := r.db.QueryRow(ctx, `
		SELECT id, exponent, max_supply_base::TEXT, total_supply_base::TEXT
		FROM tokens WHERE id = $1`,
		tokenID).Scan(&s.TokenID, &s.Exponent, &s.MaxSupplyBase, &s.TotalSupplyBase)
	if err != nil {
		return nil, fmt.Errorf("token supply %d: %w", tokenID, err)
	}
	return &s, nil
}
