package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"zigscan/internal/repository"

	"github.com/shopspring/decimal"
)

const (
	fxMaxAttempts    = 4
	fxBackoffBase    = 1500 * time.Millisecond
	fxBackoffCap     = 15 * time.Second
	fxRequestTimeout = 15 * time.Second
)

// FXFetcher pulls the native/USD rate from the CoinMarketCap quotes API
// and upserts it minute-bucketed, so repeated fetches inside one minute
// replace rather than duplicate.
type FXFetcher struct {
	repo     *repository.Repository
	http     *http.Client
	apiKey   string
	symbol   string
	convert  string
	interval time.Duration
}

func NewFXFetcher(repo *repository.Repository, apiKey, symbol, convert string, interval time.Duration) *FXFetcher {
	if symbol == "" {
		symbol = "ZIG"
	}
	if convert == "" {
		convert = "USD"
	}
	if interval <= 0 {
		interval = 36 * time.Second
	}
	return &FXFetcher{
		repo:     repo,
		http:     &http.Client{Timeout: fxRequestTimeout},
		apiKey:   apiKey,
		symbol:   symbol,
		convert:  convert,
		interval: interval,
	}
}

// Run loops until ctx is cancelled. A failed cycle is logged and retried
// next tick.
func (f *FXFetcher) Run(ctx context.Context) {
	if f.apiKey == "" {
		log.Printf("[FX] no API key configured, fetcher disabled")
		return
	}
	log.Printf("[FX] started, %s/%s every %s", f.symbol, f.convert, f.interval)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		if err := f.FetchOnce(ctx); err != nil {
			log.Printf("[FX] fetch failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type cmcQuoteResponse struct {
	Data map[string][]struct {
		Quote map[string]struct {
			Price float64 `json:"price"`
		} `json:"quote"`
	} `json:"data"`
}

// FetchOnce performs one rate fetch with backoff on 429/5xx and writes the
// minute-truncated upsert.
func (f *FXFetcher) FetchOnce(ctx context.Context) error {
	price, err := f.fetchPrice(ctx)
	if err != nil {
		return err
	}
	return f.repo.UpsertFXRate(ctx, time.Now().UTC(), price)
}

func (f *FXFetcher) fetchPrice(ctx context.Context) (decimal.Decimal, error) {
	endpoint := "https://pro-api.coinmarketcap.com/v2/cryptocurrency/quotes/latest?symbol=" +
		url.QueryEscape(f.symbol) + "&convert=" + url.QueryEscape(f.convert)

	delay := fxBackoffBase
	var lastErr error
	for attempt := 0; attempt < fxMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return decimal.Decimal{}, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > fxBackoffCap {
				delay = fxBackoffCap
			}
		}

		price, retry, err := f.fetchOnce(ctx, endpoint)
		if err == nil {
			return price, nil
		}
		lastErr = err
		if !retry {
			return decimal.Decimal{}, err
		}
	}
	return decimal.Decimal{}, fmt.Errorf("fx attempts exhausted: %w", lastErr)
}

func (f *FXFetcher) fetchOnce(ctx context.Context, endpoint string) (decimal.Decimal, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	req.Header.Set("X-CMC_PRO_API_KEY", f.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return decimal.Decimal{}, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return decimal.Decimal{}, true, fmt.Errorf("fx provider returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, false, fmt.Errorf("fx provider returned %d", resp.StatusCode)
	}

	var qr cmcQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("decode fx response: %w", err)
	}
	entries, ok := qr.Data[f.symbol]
	if !ok || len(entries) == 0 {
		return decimal.Decimal{}, false, fmt.Errorf("fx response missing symbol %s", f.symbol)
	}
	quote, ok := entries[0].Quote[f.convert]
	if !ok {
		return decimal.Decimal{}, false, fmt.Errorf("fx response missing convert %s", f.convert)
	}
	if quote.Price <= 0 {
		return decimal.Decimal{}, false, fmt.Errorf("fx response price %v out of range", quote.Price)
	}
	return decimal.NewFromFloat(quote.Price), false, nil
}
