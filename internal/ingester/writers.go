package ingester

import (
	"context"
	"time"

	"zigscan/internal/models"
	"zigscan/internal/repository"

	"github.com/shopspring/decimal"
)

// CandleObs is one price observation destined for the 1m candle table.
// Price is native units per display unit of base; VolumeNative is the
// native-side volume of the trade in display units.
type CandleObs struct {
	PoolID       int64
	At           time.Time
	Price        decimal.Decimal
	VolumeNative decimal.Decimal
	Liquidity    *decimal.Decimal
}

// Writers bundles the three coalescing queues the block processor feeds.
type Writers struct {
	Trades  *Queue[models.Trade]
	States  *Queue[models.PoolState]
	Candles *Queue[CandleObs]
}

// WritersConfig sets each queue's flush thresholds.
type WritersConfig struct {
	TradesMax   int
	TradesWait  time.Duration
	StatesMax   int
	StatesWait  time.Duration
	CandlesMax  int
	CandlesWait time.Duration
}

// DefaultWritersConfig matches sustained mainnet ingest rates.
func DefaultWritersConfig() WritersConfig {
	return WritersConfig{
		TradesMax:   800,
		TradesWait:  120 * time.Millisecond,
		StatesMax:   400,
		StatesWait:  120 * time.Millisecond,
		CandlesMax:  600,
		CandlesWait: 120 * time.Millisecond,
	}
}

// NewWriters wires the queues to the repository.
func NewWriters(repo *repository.Repository, cfg WritersConfig) *Writers {
	return &Writers{
		Trades: NewQueue("trades", cfg.TradesMax, cfg.TradesWait, func(ctx context.Context, items []models.Trade) error {
			return repo.InsertTrades(ctx, items)
		}),
		States: NewQueue("pool_state", cfg.StatesMax, cfg.StatesWait, func(ctx context.Context, items []models.PoolState) error {
			return repo.UpsertPoolStates(ctx, dedupeStates(items))
		}),
		Candles: NewQueue("ohlcv_1m", cfg.CandlesMax, cfg.CandlesWait, func(ctx context.Context, items []CandleObs) error {
			return flushCandles(ctx, repo, items)
		}),
	}
}

// DrainAll flushes every queue and returns the first error. Called before
// each checkpoint commit and on shutdown.
func (w *Writers) DrainAll(ctx context.Context) error {
	if err := w.Trades.Drain(ctx); err != nil {
		return err
	}
	if err := w.States.Drain(ctx); err != nil {
		return err
	}
	return w.Candles.Drain(ctx)
}

// dedupeStates keeps only the last snapshot per pool. The upsert replaces
// whole rows, so earlier snapshots in the same batch carry no information.
func dedupeStates(items []models.PoolState) []models.PoolState {
	last := make(map[int64]int, len(items))
	for i, s := range items {
		last[s.PoolID] = i
	}
	out := make([]models.PoolState, 0, len(last))
	for i, s := range items {
		if last[s.PoolID] == i {
			out = append(out, s)
		}
	}
	return out
}

// flushCandles folds observations into per-(pool, minute) candles in
// enqueue order, then resolves each candle's open from the prior minute's
// close with a single lookup. A candle whose prior minute has no close
// opens at its first observed price.
func flushCandles(ctx context.Context, repo *repository.Repository, items []CandleObs) error {
	agg, order := foldCandles(items)
	prev, err := repo.PrevCloses(ctx, order)
	if err != nil {
		return err
	}
	return repo.UpsertCandles(ctx, applyPrevCloses(agg, order, prev))
}

func foldCandles(items []CandleObs) (map[repository.CandleKey]*models.Candle, []repository.CandleKey) {
	agg := make(map[repository.CandleKey]*models.Candle, len(items))
	order := make([]repository.CandleKey, 0, len(items))

	for _, o := range items {
		key := repository.CandleKey{PoolID: o.PoolID, BucketStart: o.At.UTC().Truncate(time.Minute)}
		c, ok := agg[key]
		if !ok {
			c = &models.Candle{
				PoolID:      key.PoolID,
				BucketStart: key.BucketStart,
				Open:        o.Price,
				High:        o.Price,
				Low:         o.Price,
			}
			agg[key] = c
			order = append(order, key)
		}
		if o.Price.GreaterThan(c.High) {
			c.High = o.Price
		}
		if o.Price.LessThan(c.Low) {
			c.Low = o.Price
		}
		c.Close = o.Price
		c.VolumeNative = c.VolumeNative.Add(o.VolumeNative)
		c.TradeCount++
		if o.Liquidity != nil {
			c.Liquidity = o.Liquidity
		}
	}
	return agg, order
}

// applyPrevCloses sets each candle's open to the prior minute's close and
// widens high/low to cover it, so consecutive candles join without gaps.
// A prior minute folded in this same batch wins over the stored row: its
// close is about to replace whatever the database holds.
func applyPrevCloses(agg map[repository.CandleKey]*models.Candle, order []repository.CandleKey, prev map[repository.CandleKey]decimal.Decimal) []models.Candle {
	candles := make([]models.Candle, 0, len(order))
	for _, key := range order {
		c := agg[key]
		prior := repository.CandleKey{PoolID: key.PoolID, BucketStart: key.BucketStart.Add(-time.Minute)}
		px, ok := prev[key]
		if pc, inBatch := agg[prior]; inBatch {
			px, ok = pc.Close, true
		}
		if ok {
			c.Open = px
			if px.GreaterThan(c.High) {
				c.High = px
			}
			if px.LessThan(c.Low) {
				c.Low = px
			}
		}
		candles = append(candles, *c)
	}
	return candles
}
