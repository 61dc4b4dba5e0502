package ingester

import (
	"testing"
	"time"

	"zigscan/internal/models"
	"zigscan/internal/repository"

	"github.com/shopspring/decimal"
)

func TestDedupeStatesLastWins(t *testing.T) {
	now := time.Now()
	in := []models.PoolState{
		{PoolID: 1, ReserveBaseBase: "100", ReserveQuoteBase: "10", UpdatedAt: now},
		{PoolID: 2, ReserveBaseBase: "200", ReserveQuoteBase: "20", UpdatedAt: now},
		{PoolID: 1, ReserveBaseBase: "150", ReserveQuoteBase: "15", UpdatedAt: now},
	}
	out := dedupeStates(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 states, got %d", len(out))
	}
	byPool := map[int64]models.PoolState{}
	for _, s := range out {
		byPool[s.PoolID] = s
	}
	if byPool[1].ReserveBaseBase != "150" {
		t.Errorf("pool 1 kept stale snapshot: %+v", byPool[1])
	}
	if byPool[2].ReserveBaseBase != "200" {
		t.Errorf("pool 2 = %+v", byPool[2])
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestFoldCandlesAggregates(t *testing.T) {
	at := time.Date(2026, 8, 25, 12, 30, 10, 0, time.UTC)
	liq := dec("5000")
	obs := []CandleObs{
		{PoolID: 7, At: at, Price: dec("1.00"), VolumeNative: dec("10")},
		{PoolID: 7, At: at.Add(20 * time.Second), Price: dec("1.20"), VolumeNative: dec("5"), Liquidity: &liq},
		{PoolID: 7, At: at.Add(40 * time.Second), Price: dec("0.90"), VolumeNative: dec("2")},
	}
	agg, order := foldCandles(obs)
	if len(order) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(order))
	}
	key := order[0]
	if !key.BucketStart.Equal(time.Date(2026, 8, 25, 12, 30, 0, 0, time.UTC)) {
		t.Errorf("bucket start = %v", key.BucketStart)
	}
	c := agg[key]
	if !c.Open.Equal(dec("1.00")) || !c.High.Equal(dec("1.20")) || !c.Low.Equal(dec("0.90")) || !c.Close.Equal(dec("0.90")) {
		t.Errorf("OHLC = %v/%v/%v/%v", c.Open, c.High, c.Low, c.Close)
	}
	if !c.VolumeNative.Equal(dec("17")) {
		t.Errorf("volume = %v", c.VolumeNative)
	}
	if c.TradeCount != 3 {
		t.Errorf("trade count = %d", c.TradeCount)
	}
	if c.Liquidity == nil || !c.Liquidity.Equal(liq) {
		t.Errorf("liquidity = %v", c.Liquidity)
	}
}

func TestFoldCandlesSplitsPoolsAndMinutes(t *testing.T) {
	at := time.Date(2026, 8, 25, 12, 30, 59, 0, time.UTC)
	obs := []CandleObs{
		{PoolID: 1, At: at, Price: dec("1")},
		{PoolID: 2, At: at, Price: dec("2")},
		{PoolID: 1, At: at.Add(time.Second), Price: dec("3")},
	}
	_, order := foldCandles(obs)
	if len(order) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(order))
	}
}

func TestApplyPrevClosesWidensRange(t *testing.T) {
	// A single 1.10 print in a minute whose prior close was 1.00 yields
	// open=1.00 and a low stretched down to cover it.
	at := time.Date(2026, 8, 25, 12, 31, 0, 0, time.UTC)
	agg, order := foldCandles([]CandleObs{
		{PoolID: 7, At: at, Price: dec("1.10"), VolumeNative: dec("1")},
	})
	prev := map[repository.CandleKey]decimal.Decimal{
		order[0]: dec("1.00"),
	}
	candles := applyPrevCloses(agg, order, prev)
	c := candles[0]
	if !c.Open.Equal(dec("1.00")) {
		t.Errorf("open = %v, want prior close", c.Open)
	}
	if !c.Low.Equal(dec("1.00")) {
		t.Errorf("low = %v, want widened to prior close", c.Low)
	}
	if !c.High.Equal(dec("1.10")) || !c.Close.Equal(dec("1.10")) {
		t.Errorf("high/close = %v/%v", c.High, c.Close)
	}
}

func TestApplyPrevClosesAdjacentMinutesInOneBatch(t *testing.T) {
	// When one batch spans a minute boundary the later candle must open at
	// the earlier candle's close even though the database has no row yet.
	m := time.Date(2026, 8, 25, 12, 30, 0, 0, time.UTC)
	agg, order := foldCandles([]CandleObs{
		{PoolID: 7, At: m.Add(30 * time.Second), Price: dec("1.00"), VolumeNative: dec("1")},
		{PoolID: 7, At: m.Add(90 * time.Second), Price: dec("1.10"), VolumeNative: dec("1")},
	})
	candles := applyPrevCloses(agg, order, nil)
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	var next models.Candle
	for _, c := range candles {
		if c.BucketStart.Equal(m.Add(time.Minute)) {
			next = c
		}
	}
	if !next.Open.Equal(dec("1.00")) {
		t.Errorf("open = %v, want prior in-batch close 1.00", next.Open)
	}
	if !next.Low.Equal(dec("1.00")) {
		t.Errorf("low = %v, want widened to 1.00", next.Low)
	}
}

func TestApplyPrevClosesInBatchPriorBeatsStoredRow(t *testing.T) {
	// The batch is about to overwrite the stored close for the prior
	// minute, so the in-batch close is the one the next candle opens at.
	m := time.Date(2026, 8, 25, 12, 30, 0, 0, time.UTC)
	agg, order := foldCandles([]CandleObs{
		{PoolID: 7, At: m.Add(10 * time.Second), Price: dec("2.00")},
		{PoolID: 7, At: m.Add(70 * time.Second), Price: dec("2.20")},
	})
	var nextKey repository.CandleKey
	for _, k := range order {
		if k.BucketStart.Equal(m.Add(time.Minute)) {
			nextKey = k
		}
	}
	prev := map[repository.CandleKey]decimal.Decimal{
		nextKey: dec("9.99"), // stale stored close
	}
	candles := applyPrevCloses(agg, order, prev)
	for _, c := range candles {
		if c.BucketStart.Equal(m.Add(time.Minute)) && !c.Open.Equal(dec("2.00")) {
			t.Errorf("open = %v, want in-batch close 2.00 over stored 9.99", c.Open)
		}
	}
}

func TestApplyPrevClosesNoPrior(t *testing.T) {
	at := time.Date(2026, 8, 25, 12, 31, 0, 0, time.UTC)
	agg, order := foldCandles([]CandleObs{
		{PoolID: 7, At: at, Price: dec("2.50")},
	})
	candles := applyPrevCloses(agg, order, nil)
	if !candles[0].Open.Equal(dec("2.50")) {
		t.Errorf("open = %v, want first observed price", candles[0].Open)
	}
}
