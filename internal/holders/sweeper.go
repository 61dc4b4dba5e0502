// Package holders maintains per-token ownership snapshots by paginating
// the bank denom_owners endpoint.
package holders

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"zigscan/internal/chain"
	"zigscan/internal/models"
	"zigscan/internal/repository"
	"zigscan/internal/syncutil"

	"golang.org/x/time/rate"
)

// Config are the sweeper knobs.
type Config struct {
	Interval        time.Duration // full-cycle cadence
	BatchSize       int           // stalest tokens per cycle
	MaxPages        int           // denom_owners pages per token per cycle
	PageConcurrency int           // process-wide page-fetch permits
	PageRate        rate.Limit    // LCD requests per second across the sweep
}

// Sweeper rotates through the stalest tokens, pulls their full ownership
// and normalizes balances nobody reported anymore down to zero.
type Sweeper struct {
	client  *chain.Client
	repo    *repository.Repository
	cfg     Config
	pages   *syncutil.Semaphore
	limiter *rate.Limiter
}

func NewSweeper(client *chain.Client, repo *repository.Repository, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 180 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 20
	}
	if cfg.PageConcurrency <= 0 {
		cfg.PageConcurrency = 4
	}
	if cfg.PageRate <= 0 {
		cfg.PageRate = 8
	}
	return &Sweeper{
		client:  client,
		repo:    repo,
		cfg:     cfg,
		pages:   syncutil.NewSemaphore(cfg.PageConcurrency),
		limiter: rate.NewLimiter(cfg.PageRate, cfg.PageConcurrency),
	}
}

// Run loops until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	log.Printf("[Holders] started, interval %s, batch %d", s.cfg.Interval, s.cfg.BatchSize)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		if err := s.RunOnce(ctx); err != nil {
			log.Printf("[Holders] cycle failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce sweeps the K stalest eligible tokens.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	tokens, err := s.repo.StalestHolderTokens(ctx, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for i := range tokens {
		wg.Add(1)
		go func(t models.Token) {
			defer wg.Done()
			if _, err := s.sweepToken(ctx, t); err != nil {
				log.Printf("[Holders] sweep %s: %v", t.Denom, err)
			}
		}(tokens[i])
	}
	wg.Wait()
	return nil
}

// RefreshDenom sweeps one denom on demand and returns the resulting
// positive-balance holder count. Used by the fast-track path after pair
// creation.
func (s *Sweeper) RefreshDenom(ctx context.Context, denom string) (int64, error) {
	token, err := s.repo.GetTokenByDenom(ctx, denom)
	if err != nil {
		return 0, err
	}
	if token == nil || token.Kind == models.TokenKindNative || token.Kind == models.TokenKindIBC {
		return 0, nil
	}
	return s.sweepToken(ctx, *token)
}

// sweepToken pulls every ownership page for one token, then finalizes:
// unseen balances go to zero and the holder count is recomputed, in one
// transaction. An HTTP 501 means the endpoint does not serve this denom;
// the token's freshness is still bumped so it rotates to the back.
func (s *Sweeper) sweepToken(ctx context.Context, token models.Token) (int64, error) {
	var seen []string
	pageKey := ""
	for page := 0; page < s.cfg.MaxPages; page++ {
		owners, err := s.fetchPage(ctx, token.Denom, pageKey)
		if err != nil {
			if chain.IsStatus(err, http.StatusNotImplemented) {
				return 0, s.repo.TouchHolderStats(ctx, token.ID)
			}
			return 0, err
		}

		rows := make([]models.Holder, 0, len(owners.Owners))
		for _, o := range owners.Owners {
			rows = append(rows, models.Holder{
				TokenID:     token.ID,
				Address:     o.Address,
				BalanceBase: o.Balance.Amount,
			})
			seen = append(seen, o.Address)
		}
		if err := s.repo.UpsertHolderPage(ctx, token.ID, rows); err != nil {
			return 0, err
		}
		if owners.NextKey == "" {
			break
		}
		pageKey = owners.NextKey
	}

	if err := s.repo.FinalizeHolderSweep(ctx, token.ID, seen); err != nil {
		return 0, err
	}
	return s.repo.CountPositiveHolders(ctx, token.ID)
}

func (s *Sweeper) fetchPage(ctx context.Context, denom, pageKey string) (*chain.DenomOwnersPage, error) {
	if err := s.pages.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.pages.Release()
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.client.GetDenomOwners(ctx, denom, pageKey)
}
