// Package market derives prices: from live pool reserves, from candle
// history, and from the external USD rate feed.
package market

import (
	"context"
	"fmt"
	"time"

	"zigscan/internal/chain"
	"zigscan/internal/models"
	"zigscan/internal/syncutil"

	"github.com/shopspring/decimal"
)

// NativeExponent is the exponent of the chain's native denom.
const NativeExponent = 6

// Source fetches pair reserves from LCD with a short TTL cache and
// in-flight coalescing per pair contract, so the block processor and the
// price ticker share one upstream call per window.
type Source struct {
	client *chain.Client
	cache  *syncutil.TTLCache
	flight *syncutil.SingleFlight
	ttl    time.Duration
}

func NewSource(client *chain.Client, ttl time.Duration) *Source {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &Source{
		client: client,
		cache:  syncutil.NewTTLCache(2048),
		flight: syncutil.NewSingleFlight(),
		ttl:    ttl,
	}
}

// Reserves returns the current reserves of a pair contract, served from
// cache when fresh.
func (s *Source) Reserves(ctx context.Context, pairContract string) (*chain.PoolReserves, error) {
	if v, ok := s.cache.Get(pairContract); ok {
		return v.(*chain.PoolReserves), nil
	}
	v, err := s.flight.Do(ctx, pairContract, func() (interface{}, error) {
		pr, err := s.client.QueryPoolReserves(ctx, pairContract)
		if err != nil {
			return nil, err
		}
		s.cache.Set(pairContract, pr, s.ttl)
		return pr, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*chain.PoolReserves), nil
}

// PoolPrice computes the native price of a pool's base token from live
// reserves. The pool must be native-quoted with a known base exponent.
func (s *Source) PoolPrice(ctx context.Context, pool *models.Pool) (decimal.Decimal, error) {
	if !pool.IsNativeQuote {
		return decimal.Decimal{}, fmt.Errorf("pool %d is not native-quoted", pool.ID)
	}
	if pool.BaseExponent == nil {
		return decimal.Decimal{}, fmt.Errorf("pool %d base exponent unknown", pool.ID)
	}
	pr, err := s.Reserves(ctx, pool.PairContract)
	if err != nil {
		return decimal.Decimal{}, err
	}
	baseRaw, okB := pr.ReserveFor(pool.BaseDenom)
	quoteRaw, okQ := pr.ReserveFor(pool.QuoteDenom)
	if !okB || !okQ {
		return decimal.Decimal{}, fmt.Errorf("pool %d reserves missing a leg", pool.ID)
	}
	return ComputePrice(baseRaw, quoteRaw, *pool.BaseExponent, NativeExponent)
}

// ComputePrice is the canonical mid-price formula: quote units (display)
// per one display unit of base, i.e. (Rq/10^eq)/(Rb/10^eb). Raw amounts
// are base-unit integers.
func ComputePrice(baseRaw, quoteRaw string, baseExp, quoteExp int) (decimal.Decimal, error) {
	rb, err := decimal.NewFromString(baseRaw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("base reserve %q: %w", baseRaw, err)
	}
	rq, err := decimal.NewFromString(quoteRaw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("quote reserve %q: %w", quoteRaw, err)
	}
	if rb.IsZero() {
		return decimal.Decimal{}, fmt.Errorf("zero base reserve")
	}
	baseDisp := rb.Shift(int32(-baseExp))
	quoteDisp := rq.Shift(int32(-quoteExp))
	return quoteDisp.DivRound(baseDisp, 18), nil
}
