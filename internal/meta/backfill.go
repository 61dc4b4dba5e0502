package meta

import (
	"context"
	"log"
	"time"

	"zigscan/internal/repository"
)

// BackfillConfig are the stale-metadata refresh knobs.
type BackfillConfig struct {
	Interval  time.Duration // cadence of stale scans
	Batch     int           // denoms per scan
	Sleep     time.Duration // pause between denoms inside a batch
	CutoffAge time.Duration // a token counts as stale past this age
}

// Backfill re-resolves tokens whose metadata has gone stale, oldest
// first. Catches tokens created before the resolver existed and URIs that
// changed after first sight.
type Backfill struct {
	resolver *Resolver
	repo     *repository.Repository
	cfg      BackfillConfig
}

func NewBackfill(resolver *Resolver, repo *repository.Repository, cfg BackfillConfig) *Backfill {
	if cfg.Interval <= 0 {
		cfg.Interval = 300 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 25
	}
	if cfg.Sleep <= 0 {
		cfg.Sleep = 200 * time.Millisecond
	}
	if cfg.CutoffAge <= 0 {
		cfg.CutoffAge = 24 * time.Hour
	}
	return &Backfill{resolver: resolver, repo: repo, cfg: cfg}
}

// Run loops until ctx is cancelled.
func (b *Backfill) Run(ctx context.Context) {
	log.Printf("[MetaBackfill] started, interval %s, batch %d", b.cfg.Interval, b.cfg.Batch)
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()
	for {
		if err := b.RunOnce(ctx); err != nil {
			log.Printf("[MetaBackfill] cycle failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce refreshes one batch of stale denoms.
func (b *Backfill) RunOnce(ctx context.Context) error {
	cutoff := time.Now().Add(-b.cfg.CutoffAge)
	denoms, err := b.repo.StaleMetadataDenoms(ctx, cutoff, b.cfg.Batch)
	if err != nil {
		return err
	}
	for _, denom := range denoms {
		if err := b.resolver.Refresh(ctx, denom); err != nil {
			log.Printf("[MetaBackfill] refresh %s: %v", denom, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.cfg.Sleep):
		}
	}
	return nil
}
