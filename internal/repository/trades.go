package repository

import (
	"context"
	"fmt"
	"time"

	"zigscan/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// InsertTrades batch-inserts trade rows. Duplicates on the natural key
// (created_at, tx_hash, pool_id, msg_index) are silently ignored.
func (r *Repository) InsertTrades(ctx context.Context, trades []models.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	minAt, maxAt := trades[0].CreatedAt, trades[0].CreatedAt
	for _, t := range trades {
		if t.CreatedAt.Before(minAt) {
			minAt = t.CreatedAt
		}
		if t.CreatedAt.After(maxAt) {
			maxAt = t.CreatedAt
		}
	}
	if err := r.EnsurePartitionsForRange(ctx, "trades", minAt, maxAt); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(`
			INSERT INTO trades (
				created_at, tx_hash, pool_id, msg_index, action, direction,
				offer_denom, offer_amount_base, ask_denom, return_amount_base,
				reserve_base_base, reserve_quote_base, height, signer, is_router
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9, $10::NUMERIC,
				$11::NUMERIC, $12::NUMERIC, $13, $14, $15)
			ON CONFLICT (created_at, tx_hash, pool_id, msg_index) DO NOTHING`,
			t.CreatedAt, t.TxHash, t.PoolID, t.MsgIndex, t.Action, t.Direction,
			t.OfferDenom, t.OfferAmountBase, t.AskDenom, t.ReturnAmountBase,
			t.ReserveBaseBase, t.ReserveQuoteBase, t.Height, t.Signer, t.IsRouter,
		)
	}

	return r.withRetry(ctx, func() error {
		br := r.db.SendBatch(ctx, batch)
		defer br.Close()
		for i := 0; i < len(trades); i++ {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("insert trades: %w", err)
			}
		}
		return nil
	})
}

// UpsertPoolStates batch-upserts reserve snapshots. The caller must have
// deduplicated by pool_id already (one statement cannot update the same
// row twice).
func (r *Repository) UpsertPoolStates(ctx context.Context, states []models.PoolState) error {
	if len(states) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range states {
		batch.Queue(`
			INSERT INTO pool_state (pool_id, reserve_base_base, reserve_quote_base, updated_at)
			VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4)
			ON CONFLICT (pool_id) DO UPDATE SET
				reserve_base_base = EXCLUDED.reserve_base_base,
				reserve_quote_base = EXCLUDED.reserve_quote_base,
				updated_at = EXCLUDED.updated_at`,
			s.PoolID, numericOrZero(s.ReserveBaseBase), numericOrZero(s.ReserveQuoteBase), s.UpdatedAt,
		)
	}

	return r.withRetry(ctx, func() error {
		br := r.db.SendBatch(ctx, batch)
		defer br.Close()
		for i := 0; i < len(states); i++ {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("upsert pool states: %w", err)
			}
		}
		return nil
	})
}

// CandleKey identifies one (pool, minute) candle.
type CandleKey struct {
	PoolID      int64
	BucketStart time.Time
}

// PrevCloses fetches the previous-minute closes for all given candle keys
// in one query. Keys whose prior minute has no candle are absent from the
// result.
func (r *Repository) PrevCloses(ctx context.Context, keys []CandleKey) (map[CandleKey]decimal.Decimal, error) {
	if len(keys) == 0 {
		return map[CandleKey]decimal.Decimal{}, nil
	}

	poolIDs := make([]int64, len(keys))
	prevStarts := make([]time.Time, len(keys))
	for i, k := range keys {
		poolIDs[i] = k.PoolID
		prevStarts[i] = k.BucketStart.Add(-time.Minute)
	}

	rows, err := r.db.Query(ctx, `
		SELECT pool_id, bucket_start, close
		FROM ohlcv_1m
		WHERE (pool_id, bucket_start) IN (SELECT * FROM unnest($1::BIGINT[], $2::TIMESTAMPTZ[]))`,
		poolIDs, prevStarts)
	if err != nil {
		return nil, fmt.Errorf("prev closes: %w", err)
	}
	defer rows.Close()

	out := make(map[CandleKey]decimal.Decimal, len(keys))
	for rows.Next() {
		var poolID int64
		var prevStart time.Time
		var closePx decimal.Decimal
		if err := rows.Scan(&poolID, &prevStart, &closePx); err != nil {
			return nil, err
		}
		out[CandleKey{PoolID: poolID, BucketStart: prevStart.Add(time.Minute)}] = closePx
	}
	return out, rows.Err()
}

// UpsertCandles batch-upserts one-minute candles. On conflict: high/low
// widen, close replaces, volume and trade_count accumulate, liquidity
// takes the incoming value when present.
func (r *Repository) UpsertCandles(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	minAt, maxAt := candles[0].BucketStart, candles[0].BucketStart
	for _, c := range candles {
		if c.BucketStart.Before(minAt) {
			minAt = c.BucketStart
		}
		if c.BucketStart.After(maxAt) {
			maxAt = c.BucketStart
		}
	}
	if err := r.EnsurePartitionsForRange(ctx, "ohlcv_1m", minAt, maxAt); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, c := range candles {
		batch.Queue(`
			INSERT INTO ohlcv_1m (
				pool_id, bucket_start, open, high, low, close,
				volume_native, trade_count, liquidity_native
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (pool_id, bucket_start) DO UPDATE SET
				high = GREATEST(ohlcv_1m.high, EXCLUDED.high),
				low = LEAST(ohlcv_1m.low, EXCLUDED.low),
				close = EXCLUDED.close,
				volume_native = ohlcv_1m.volume_native + EXCLUDED.volume_native,
				trade_count = ohlcv_1m.trade_count + EXCLUDED.trade_count,
				liquidity_native = COALESCE(EXCLUDED.liquidity_native, ohlcv_1m.liquidity_native)`,
			c.PoolID, c.BucketStart, c.Open, c.High, c.Low, c.Close,
			c.VolumeNative, c.TradeCount, c.Liquidity,
		)
	}

	return r.withRetry(ctx, func() error {
		br := r.db.SendBatch(ctx, batch)
		defer br.Close()
		for i := 0; i < len(candles); i++ {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("upsert candles: %w", err)
			}
		}
		return nil
	})
}

// FirstProvideTrade returns the earliest provide-liquidity trade for a
// pool (by height then msg_index), or nil.
func (r *Repository) FirstProvideTrade(ctx context.Context, poolID int64) (*models.Trade, error) {
	var t models.Trade
	err := r.db.QueryRow(ctx, `
		SELECT created_at, tx_hash, pool_id, msg_index, action, direction,
			offer_denom, offer_amount_base::TEXT, ask_denom, return_amount_base::TEXT,
			reserve_base_base::TEXT, reserve_quote_base::TEXT, height, signer, is_router
		FROM trades
		WHERE pool_id = $1 AND action = 'provide'
		ORDER BY height ASC, msg_index ASC
		LIMIT 1`,
		poolID).Scan(
		&t.CreatedAt, &t.TxHash, &t.PoolID, &t.MsgIndex, &t.Action, &t.Direction,
		&t.OfferDenom, &t.OfferAmountBase, &t.AskDenom, &t.ReturnAmountBase,
		&t.ReserveBaseBase, &t.ReserveQuoteBase, &t.Height, &t.Signer, &t.IsRouter,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("first provide trade %d: %w", poolID, err)
	}
	return &t, nil
}

// LatestCandleClose returns the most recent candle close for a pool;
// (zero, false) when the pool has no candles.
func (r *Repository) LatestCandleClose(ctx context.Context, poolID int64) (decimal.Decimal, bool, error) {
	var closePx decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT close FROM ohlcv_1m
		WHERE pool_id = $1
		ORDER BY bucket_start DESC
		LIMIT 1`,
		poolID).Scan(&closePx)
	if err == pgx.ErrNoRows {
		return decimal.Decimal{}, false, nil
	}
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	return closePx, true, nil
}

// LatestCandleCloseForToken is the freshest close across native-quoted
// pools where the token is base.
func (r *Repository) LatestCandleCloseForToken(ctx context.Context, tokenID int64) (decimal.Decimal, bool, error) {
	var closePx decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT c.close
		FROM ohlcv_1m c
		JOIN pools p ON p.id = c.pool_id
		WHERE p.base_token_id = $1
		  AND p.is_native_quote
		ORDER BY c.bucket_start DESC
		LIMIT 1`,
		tokenID).Scan(&closePx)
	if err == pgx.ErrNoRows {
		return decimal.Decimal{}, false, nil
	}
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	return closePx, true, nil
}

// AvgCloseForToken averages candle closes over the last `minutes` across
// native-quoted pools where the token is base.
func (r *Repository) AvgCloseForToken(ctx context.Context, tokenID int64, minutes int) (decimal.Decimal, bool, error) {
	var avg *decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT AVG(c.close)
		FROM ohlcv_1m c
		JOIN pools p ON p.id = c.pool_id
		WHERE p.base_token_id = $1
		  AND p.is_native_quote
		  AND c.bucket_start >= NOW() - ($2 || ' minutes')::INTERVAL`,
		tokenID, minutes).Scan(&avg)
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("avg close token %d: %w", tokenID, err)
	}
	if avg == nil {
		return decimal.Decimal{}, false, nil
	}
	return *avg, true, nil
}
