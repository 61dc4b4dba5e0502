// Package rollup maintains the pool and token matrices: rolling volume,
// TVL and valuation aggregates across the 30m/1h/4h/24h buckets.
package rollup

import (
	"context"
	"log"
	"time"

	"zigscan/internal/market"
	"zigscan/internal/models"
	"zigscan/internal/repository"

	"github.com/shopspring/decimal"
)

// Heuristic bounds for detecting a base-denominated price written where a
// display-denominated one belongs.
var (
	scaleLeakLow  = decimal.NewFromInt(100000)   // 1e5
	scaleLeakHigh = decimal.NewFromInt(10000000) // 1e7
)

// Config are the rollup knobs.
type Config struct {
	Interval time.Duration

	// ScaleHeuristic enables the price-leak correction: when the latest
	// price is 1e5-1e7 times the 60m candle average for an exponent-6
	// token, the price is treated as base-denominated and divided by 1e6.
	ScaleHeuristic bool
}

// Engine periodically rebuilds PoolMatrix and TokenMatrix rows.
type Engine struct {
	repo *repository.Repository
	cfg  Config
}

func NewEngine(repo *repository.Repository, cfg Config) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	return &Engine{repo: repo, cfg: cfg}
}

// Run loops until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	log.Printf("[Rollup] started, interval %s", e.cfg.Interval)
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		if err := e.RunOnce(ctx); err != nil {
			log.Printf("[Rollup] cycle failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce rebuilds every matrix row once.
func (e *Engine) RunOnce(ctx context.Context) error {
	pools, err := e.repo.ListPools(ctx)
	if err != nil {
		return err
	}
	byID := make(map[int64]*models.Pool, len(pools))
	for i := range pools {
		byID[pools[i].ID] = &pools[i]
	}

	for _, b := range models.Buckets {
		if err := e.rollupVolumes(ctx, b, byID, 0); err != nil {
			log.Printf("[Rollup] volumes %s: %v", b.Label, err)
		}
	}
	for i := range pools {
		e.rollupTVL(ctx, &pools[i])
	}

	tokenIDs, err := e.repo.ListTokenIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range tokenIDs {
		if err := e.rollupToken(ctx, id); err != nil {
			log.Printf("[Rollup] token %d: %v", id, err)
		}
	}
	return nil
}

// RefreshPoolMatrixOnce rebuilds all buckets for one pool.
func (e *Engine) RefreshPoolMatrixOnce(ctx context.Context, poolID int64) error {
	pool, err := e.repo.GetPoolByID(ctx, poolID)
	if err != nil {
		return err
	}
	if pool == nil {
		return nil
	}
	byID := map[int64]*models.Pool{pool.ID: pool}
	for _, b := range models.Buckets {
		if err := e.rollupVolumes(ctx, b, byID, poolID); err != nil {
			return err
		}
	}
	e.rollupTVL(ctx, pool)
	return nil
}

// RefreshTokenMatrixOnce rebuilds all buckets for one token.
func (e *Engine) RefreshTokenMatrixOnce(ctx context.Context, tokenID int64) error {
	return e.rollupToken(ctx, tokenID)
}

func (e *Engine) rollupVolumes(ctx context.Context, b models.Bucket, pools map[int64]*models.Pool, poolID int64) error {
	aggs, err := e.repo.SwapAggregates(ctx, b.Minutes, poolID)
	if err != nil {
		return err
	}
	for _, a := range aggs {
		pool := pools[a.PoolID]
		if pool == nil {
			continue
		}
		qExp := quoteExponent(pool)
		volBuyQuote := a.BuyQuoteRaw.Shift(int32(-qExp))
		volSellQuote := a.SellQuoteRaw.Shift(int32(-qExp))

		quotePx := e.quotePrice(ctx, pool)
		m := models.PoolMatrix{
			PoolID:        pool.ID,
			Bucket:        b.Label,
			VolBuyQuote:   volBuyQuote,
			VolSellQuote:  volSellQuote,
			VolBuyNative:  volBuyQuote.Mul(quotePx),
			VolSellNative: volSellQuote.Mul(quotePx),
			TxBuy:         a.TxBuy,
			TxSell:        a.TxSell,
			Traders:       a.Traders,
		}
		if err := e.repo.UpsertPoolMatrixVolumes(ctx, m); err != nil {
			log.Printf("[Rollup] upsert volumes pool %d %s: %v", pool.ID, b.Label, err)
		}
	}
	return nil
}

func (e *Engine) rollupTVL(ctx context.Context, pool *models.Pool) {
	state, err := e.repo.GetPoolState(ctx, pool.ID)
	if err != nil || state == nil {
		return
	}
	rb, errB := decimal.NewFromString(state.ReserveBaseBase)
	rq, errQ := decimal.NewFromString(state.ReserveQuoteBase)
	if errB != nil || errQ != nil {
		return
	}
	reserveBaseDisp := rb.Shift(int32(-exponentOrDefault(pool.BaseExponent)))
	reserveQuoteDisp := rq.Shift(int32(-quoteExponent(pool)))

	basePx := e.tokenPriceInPool(ctx, pool.BaseTokenID, pool.ID)
	quotePx := e.quotePrice(ctx, pool)
	tvl := reserveQuoteDisp.Mul(quotePx).Add(reserveBaseDisp.Mul(basePx))

	for _, b := range models.Buckets {
		if err := e.repo.UpdatePoolMatrixTVL(ctx, pool.ID, b.Label, tvl, reserveBaseDisp, reserveQuoteDisp); err != nil {
			log.Printf("[Rollup] upsert tvl pool %d %s: %v", pool.ID, b.Label, err)
		}
	}
}

func (e *Engine) rollupToken(ctx context.Context, tokenID int64) error {
	price := e.resolveTokenPrice(ctx, tokenID)

	supply, err := e.repo.GetTokenSupply(ctx, tokenID)
	if err != nil {
		return err
	}
	exp := exponentOrDefault(supply.Exponent)
	var mcap, fdv decimal.Decimal
	if supply.TotalSupplyBase != nil {
		if total, err := decimal.NewFromString(*supply.TotalSupplyBase); err == nil {
			mcap = total.Shift(int32(-exp)).Mul(price)
		}
	}
	if supply.MaxSupplyBase != nil {
		if max, err := decimal.NewFromString(*supply.MaxSupplyBase); err == nil {
			fdv = max.Shift(int32(-exp)).Mul(price)
		}
	}

	holders, err := e.repo.CountPositiveHolders(ctx, tokenID)
	if err != nil {
		return err
	}

	for _, b := range models.Buckets {
		m := models.TokenMatrix{
			TokenID:     tokenID,
			Bucket:      b.Label,
			PriceNative: price,
			McapNative:  mcap,
			FDVNative:   fdv,
			Holders:     holders,
		}
		if err := e.repo.UpsertTokenMatrix(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// resolveTokenPrice picks between the latest Price row (A) and the 60m
// candle-close average (B), with the optional scale-leak correction.
func (e *Engine) resolveTokenPrice(ctx context.Context, tokenID int64) decimal.Decimal {
	a, hasA, errA := e.repo.GetLatestPriceAnyNativePool(ctx, tokenID)
	if errA != nil {
		log.Printf("[Rollup] latest price token %d: %v", tokenID, errA)
	}
	b, hasB, errB := e.repo.AvgCloseForToken(ctx, tokenID, 60)
	if errB != nil {
		log.Printf("[Rollup] avg close token %d: %v", tokenID, errB)
	}

	exp := market.NativeExponent
	heuristic := false
	if e.cfg.ScaleHeuristic && hasA && hasB && b.Sign() > 0 {
		if supply, err := e.repo.GetTokenSupply(ctx, tokenID); err == nil {
			heuristic = true
			exp = exponentOrDefault(supply.Exponent)
		}
	}
	return pickTokenPrice(a, hasA, b, hasB, exp, heuristic)
}

// pickTokenPrice prefers A over B over zero. When the heuristic is on and
// the token has the native exponent, an A that sits 1e5-1e7 above B is
// treated as a base-denominated leak and shifted back to display units.
func pickTokenPrice(a decimal.Decimal, hasA bool, b decimal.Decimal, hasB bool, exp int, heuristic bool) decimal.Decimal {
	if heuristic && hasA && hasB && b.Sign() > 0 && exp == market.NativeExponent {
		ratio := a.DivRound(b, 18)
		if ratio.GreaterThanOrEqual(scaleLeakLow) && ratio.LessThanOrEqual(scaleLeakHigh) {
			return a.Shift(-market.NativeExponent)
		}
	}
	if hasA {
		return a
	}
	if hasB {
		return b
	}
	return decimal.Zero
}

// tokenPriceInPool resolves a display price for TVL: this pool's Price
// row, then any native-quoted pool's, then the pool's latest candle close.
func (e *Engine) tokenPriceInPool(ctx context.Context, tokenID, poolID int64) decimal.Decimal {
	if px, ok, err := e.repo.GetLatestPrice(ctx, tokenID, poolID); err == nil && ok {
		return px
	}
	if px, ok, err := e.repo.GetLatestPriceAnyNativePool(ctx, tokenID); err == nil && ok {
		return px
	}
	if px, ok, err := e.repo.LatestCandleClose(ctx, poolID); err == nil && ok {
		return px
	}
	return decimal.Zero
}

// quotePrice is 1 for native-quoted pools, otherwise the quote token's
// freshest native price, resolved down the same ladder as tokenPriceInPool:
// this pool's Price row, any native-quoted pool's, then the token's latest
// candle close.
func (e *Engine) quotePrice(ctx context.Context, pool *models.Pool) decimal.Decimal {
	if pool.IsNativeQuote {
		return decimal.NewFromInt(1)
	}
	if px, ok, err := e.repo.GetLatestPrice(ctx, pool.QuoteTokenID, pool.ID); err == nil && ok {
		return px
	}
	if px, ok, err := e.repo.GetLatestPriceAnyNativePool(ctx, pool.QuoteTokenID); err == nil && ok {
		return px
	}
	if px, ok, err := e.repo.LatestCandleCloseForToken(ctx, pool.QuoteTokenID); err == nil && ok {
		return px
	}
	return decimal.Zero
}

func quoteExponent(pool *models.Pool) int {
	if pool.IsNativeQuote {
		return market.NativeExponent
	}
	return exponentOrDefault(pool.QuoteExponent)
}

func exponentOrDefault(exp *int) int {
	if exp == nil {
		return market.NativeExponent
	}
	return *exp
}
