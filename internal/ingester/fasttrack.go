package ingester

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"zigscan/internal/market"
	"zigscan/internal/models"
	"zigscan/internal/repository"

	"github.com/shopspring/decimal"
)

// HolderRefresher sweeps holders for one denom and reports the resulting
// positive-balance count.
type HolderRefresher interface {
	RefreshDenom(ctx context.Context, denom string) (int64, error)
}

// MatrixRefresher rebuilds rollup rows for a single pool or token.
type MatrixRefresher interface {
	RefreshPoolMatrixOnce(ctx context.Context, poolID int64) error
	RefreshTokenMatrixOnce(ctx context.Context, tokenID int64) error
}

// SecurityScanner vets a denom after pair creation. Optional.
type SecurityScanner interface {
	Scan(ctx context.Context, denom string) error
}

// FastTrack reacts to pair_created notifications: it warms metadata,
// holders and matrices for the new pair and seeds the first price and
// candle so charts render before the first swap. Every step is
// best-effort and independent.
type FastTrack struct {
	repo        *repository.Repository
	reserves    ReserveQuerier
	meta        MetadataRefresher
	holders     HolderRefresher
	matrices    MatrixRefresher
	scanner     SecurityScanner
	nativeDenom string

	once sync.Once
}

func NewFastTrack(repo *repository.Repository, reserves ReserveQuerier, meta MetadataRefresher, holders HolderRefresher, matrices MatrixRefresher, scanner SecurityScanner, nativeDenom string) *FastTrack {
	return &FastTrack{
		repo:        repo,
		reserves:    reserves,
		meta:        meta,
		holders:     holders,
		matrices:    matrices,
		scanner:     scanner,
		nativeDenom: nativeDenom,
	}
}

// Start subscribes to the pair_created channel. Multiple call sites may
// invoke Start; only the first subscribes, so a pair is never seeded
// twice by one process.
func (f *FastTrack) Start(ctx context.Context) {
	f.once.Do(func() {
		go f.listenLoop(ctx)
	})
}

func (f *FastTrack) listenLoop(ctx context.Context) {
	log.Printf("[FastTrack] listening on %s", PairCreatedChannel)
	for {
		err := f.repo.Listen(ctx, PairCreatedChannel, func(payload string) {
			f.handle(ctx, payload)
		})
		if ctx.Err() != nil {
			return
		}
		log.Printf("[FastTrack] listener dropped, reconnecting: %v", err)
		if !sleepCtx(ctx, 3*time.Second) {
			return
		}
	}
}

func (f *FastTrack) handle(ctx context.Context, payload string) {
	var pc models.PairCreated
	if err := json.Unmarshal([]byte(payload), &pc); err != nil {
		log.Printf("[FastTrack] bad payload %q: %v", payload, err)
		return
	}
	pool, err := f.repo.GetPoolByID(ctx, pc.PoolID)
	if err != nil || pool == nil {
		log.Printf("[FastTrack] load pool %d: %v", pc.PoolID, err)
		return
	}
	log.Printf("[FastTrack] pool %d %s (%s/%s)", pool.ID, pool.PairContract, pool.BaseDenom, pool.QuoteDenom)

	if f.meta != nil {
		if err := f.meta.Refresh(ctx, pool.BaseDenom); err != nil {
			log.Printf("[FastTrack] meta %s: %v", pool.BaseDenom, err)
		}
		if err := f.meta.Refresh(ctx, pool.QuoteDenom); err != nil {
			log.Printf("[FastTrack] meta %s: %v", pool.QuoteDenom, err)
		}
		// Exponent may have just been resolved; reload pool context before
		// seeding price math.
		if reloaded, err := f.repo.GetPoolByID(ctx, pool.ID); err == nil && reloaded != nil {
			pool = reloaded
		}
	}

	if f.holders != nil {
		f.refreshHolders(ctx, pool.BaseDenom)
		if pool.QuoteDenom != f.nativeDenom {
			f.refreshHolders(ctx, pool.QuoteDenom)
		}
	}

	if f.scanner != nil {
		if err := f.scanner.Scan(ctx, pool.BaseDenom); err != nil {
			log.Printf("[FastTrack] scan %s: %v", pool.BaseDenom, err)
		}
		if pool.QuoteDenom != f.nativeDenom {
			if err := f.scanner.Scan(ctx, pool.QuoteDenom); err != nil {
				log.Printf("[FastTrack] scan %s: %v", pool.QuoteDenom, err)
			}
		}
	}

	f.seedPriceAndCandle(ctx, pool)

	if f.matrices != nil {
		if err := f.matrices.RefreshPoolMatrixOnce(ctx, pool.ID); err != nil {
			log.Printf("[FastTrack] pool matrix %d: %v", pool.ID, err)
		}
		if err := f.matrices.RefreshTokenMatrixOnce(ctx, pool.BaseTokenID); err != nil {
			log.Printf("[FastTrack] token matrix %d: %v", pool.BaseTokenID, err)
		}
	}
}

// refreshHolders sweeps a denom, retrying once when the first sweep lands
// on zero holders (the LCD index can lag pair creation by a beat).
func (f *FastTrack) refreshHolders(ctx context.Context, denom string) {
	count, err := f.holders.RefreshDenom(ctx, denom)
	if err != nil {
		log.Printf("[FastTrack] holders %s: %v", denom, err)
		return
	}
	if count > 0 {
		return
	}
	if !sleepCtx(ctx, 2*time.Second) {
		return
	}
	if _, err := f.holders.RefreshDenom(ctx, denom); err != nil {
		log.Printf("[FastTrack] holders retry %s: %v", denom, err)
	}
}

// seedPriceAndCandle writes the pool's first price and candle. Preferred
// source is the first provide-liquidity trade; fallback is the live LCD
// reserves at pair-creation time. Native-quoted pools only.
func (f *FastTrack) seedPriceAndCandle(ctx context.Context, pool *models.Pool) {
	if !pool.IsNativeQuote || pool.BaseExponent == nil {
		return
	}

	if t, err := f.repo.FirstProvideTrade(ctx, pool.ID); err != nil {
		log.Printf("[FastTrack] first provide for pool %d: %v", pool.ID, err)
	} else if t != nil && t.ReserveBaseBase != nil && t.ReserveQuoteBase != nil {
		price, err := market.ComputePrice(*t.ReserveBaseBase, *t.ReserveQuoteBase, *pool.BaseExponent, market.NativeExponent)
		if err == nil && price.Sign() > 0 {
			f.writeSeed(ctx, pool, price, t.CreatedAt)
			return
		}
	}

	pr, err := f.reserves.Reserves(ctx, pool.PairContract)
	if err != nil {
		log.Printf("[FastTrack] live reserves for pool %d: %v", pool.ID, err)
		return
	}
	baseRaw, okB := pr.ReserveFor(pool.BaseDenom)
	quoteRaw, okQ := pr.ReserveFor(pool.QuoteDenom)
	if !okB || !okQ {
		return
	}
	price, err := market.ComputePrice(baseRaw, quoteRaw, *pool.BaseExponent, market.NativeExponent)
	if err != nil || price.Sign() <= 0 {
		return
	}
	f.writeSeed(ctx, pool, price, pool.CreatedAt)
}

// writeSeed upserts the initial price row and a zero-volume candle at the
// minute of the seeding event.
func (f *FastTrack) writeSeed(ctx context.Context, pool *models.Pool, price decimal.Decimal, at time.Time) {
	err := f.repo.UpsertPrice(ctx, models.Price{
		TokenID:      pool.BaseTokenID,
		PoolID:       pool.ID,
		PriceNative:  price,
		IsPairNative: true,
	})
	if err != nil {
		log.Printf("[FastTrack] seed price pool %d: %v", pool.ID, err)
		return
	}
	err = f.repo.UpsertCandles(ctx, []models.Candle{{
		PoolID:      pool.ID,
		BucketStart: at.UTC().Truncate(time.Minute),
		Open:        price,
		High:        price,
		Low:         price,
		Close:       price,
	}})
	if err != nil {
		log.Printf("[FastTrack] seed candle pool %d: %v", pool.ID, err)
		return
	}
	log.Printf("[FastTrack] seeded pool %d at price %s", pool.ID, price)
}
