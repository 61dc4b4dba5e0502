package market

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"zigscan/internal/models"
	"zigscan/internal/repository"
)

// PriceTicker periodically recomputes native prices for every
// native-quoted pool straight from LCD reserves, independent of block
// ingestion. Keeps prices moving for pools with no recent trades.
type PriceTicker struct {
	repo        *repository.Repository
	source      *Source
	interval    time.Duration
	concurrency int
}

func NewPriceTicker(repo *repository.Repository, source *Source, interval time.Duration, concurrency int) *PriceTicker {
	if interval <= 0 {
		interval = 8 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &PriceTicker{repo: repo, source: source, interval: interval, concurrency: concurrency}
}

// Run loops until ctx is cancelled.
func (t *PriceTicker) Run(ctx context.Context) {
	log.Printf("[PriceTicker] started, interval %s", t.interval)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		if err := t.RunOnce(ctx); err != nil {
			log.Printf("[PriceTicker] cycle failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce prices every eligible pool once with a bounded fan-out.
func (t *PriceTicker) RunOnce(ctx context.Context) error {
	pools, err := t.repo.ListNativeQuotedPools(ctx)
	if err != nil {
		return err
	}

	var idx int64 = -1
	workers := t.concurrency
	if workers > len(pools) {
		workers = len(pools)
	}
	done := make(chan struct{}, workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for {
				i := atomic.AddInt64(&idx, 1)
				if i >= int64(len(pools)) {
					return
				}
				t.priceOne(ctx, &pools[i])
			}
		}()
	}
	for w := 0; w < workers; w++ {
		<-done
	}
	return nil
}

func (t *PriceTicker) priceOne(ctx context.Context, pool *models.Pool) {
	if pool.BaseExponent == nil {
		return
	}
	px, err := t.source.PoolPrice(ctx, pool)
	if err != nil {
		log.Printf("[PriceTicker] pool %d (%s): %v", pool.ID, pool.PairContract, err)
		return
	}
	if px.Sign() <= 0 {
		return
	}
	err = t.repo.UpsertPrice(ctx, models.Price{
		TokenID:      pool.BaseTokenID,
		PoolID:       pool.ID,
		PriceNative:  px,
		IsPairNative: true,
	})
	if err != nil {
		log.Printf("[PriceTicker] upsert price pool %d: %v", pool.ID, err)
	}
}
