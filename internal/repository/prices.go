package repository

import (
	"context"
	"fmt"
	"time"

	"zigscan/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// UpsertPrice writes the latest scalar price for (token, pool) and appends
// a tick to the sampled trail. Last writer wins; updated_at always moves
// forward.
func (r *Repository) UpsertPrice(ctx context.Context, p models.Price) error {
	now := time.Now().UTC()
	if err := r.EnsurePartitionsForRange(ctx, "price_ticks", now, now); err != nil {
		return err
	}
	return r.withRetry(ctx, func() error {
		batch := &pgx.Batch{}
		batch.Queue(`
			INSERT INTO prices (token_id, pool_id, price_native, is_pair_native, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (token_id, pool_id) DO UPDATE SET
				price_native = EXCLUDED.price_native,
				is_pair_native = EXCLUDED.is_pair_native,
				updated_at = NOW()`,
			p.TokenID, p.PoolID, p.PriceNative, p.IsPairNative)
		batch.Queue(`
			INSERT INTO price_ticks (token_id, pool_id, price_native, created_at)
			VALUES ($1, $2, $3, $4)`,
			p.TokenID, p.PoolID, p.PriceNative, now)

		br := r.db.SendBatch(ctx, batch)
		defer br.Close()
		for i := 0; i < 2; i++ {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("upsert price (%d,%d): %w", p.TokenID, p.PoolID, err)
			}
		}
		return nil
	})
}

// GetLatestPrice returns the price row for (token, pool); (zero, false)
// when absent.
func (r *Repository) GetLatestPrice(ctx context.Context, tokenID, poolID int64) (decimal.Decimal, bool, error) {
	var px decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT price_native FROM prices
		WHERE token_id = $1 AND pool_id = $2`,
		tokenID, poolID).Scan(&px)
	if err == pgx.ErrNoRows {
		return decimal.Decimal{}, false, nil
	}
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	return px, true, nil
}

// GetLatestPriceAnyNativePool returns the freshest price for a token
// across native-quoted pools, by updated_at.
func (r *Repository) GetLatestPriceAnyNativePool(ctx context.Context, tokenID int64) (decimal.Decimal, bool, error) {
	var px decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT pr.price_native
		FROM prices pr
		JOIN pools p ON p.id = pr.pool_id
		WHERE pr.token_id = $1 AND p.is_native_quote
		ORDER BY pr.updated_at DESC
		LIMIT 1`,
		tokenID).Scan(&px)
	if err == pgx.ErrNoRows {
		return decimal.Decimal{}, false, nil
	}
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	return px, true, nil
}

// UpsertFXRate records one minute-bucketed native/USD observation.
// Re-observing the same minute replaces the value, never duplicates.
func (r *Repository) UpsertFXRate(ctx context.Context, ts time.Time, nativePerUSD decimal.Decimal) error {
	return r.withRetry(ctx, func() error {
		_, err := r.db.Exec(ctx, `
			INSERT INTO fx_rates (ts, native_per_usd)
			VALUES (date_trunc('minute', $1::TIMESTAMPTZ), $2)
			ON CONFLICT (ts) DO UPDATE SET native_per_usd = EXCLUDED.native_per_usd`,
			ts, nativePerUSD)
		return err
	})
}
