package ingester

import (
	"context"
	"log"
	"time"

	"zigscan/internal/chain"
	"zigscan/internal/repository"
)

// PipelineConfig are the driver knobs.
type PipelineConfig struct {
	Depth     int           // concurrently in-flight heights
	PollSleep time.Duration // idle sleep when caught up with the tip
	MaxBlocks int64         // stop after committing this many; <=0 means run forever

	// CheckpointOnError controls what happens when a height's processing
	// returns an error: true commits the checkpoint anyway (log and move
	// on), false retries the same height until it succeeds.
	CheckpointOnError bool
}

// Pipeline drives block ingestion: it keeps up to Depth heights in flight
// and commits strictly in ascending order. A commit drains all batch
// writers before the checkpoint is written, so a restart never skips rows.
type Pipeline struct {
	client  *chain.Client
	repo    *repository.Repository
	writers *Writers
	proc    *Processor
	cfg     PipelineConfig
}

func NewPipeline(client *chain.Client, repo *repository.Repository, writers *Writers, proc *Processor, cfg PipelineConfig) *Pipeline {
	if cfg.Depth <= 0 {
		cfg.Depth = 3
	}
	if cfg.PollSleep <= 0 {
		cfg.PollSleep = 1500 * time.Millisecond
	}
	return &Pipeline{client: client, repo: repo, writers: writers, proc: proc, cfg: cfg}
}

// Run ingests blocks until ctx is cancelled or MaxBlocks commits have been
// made. On exit the writers are drained one final time.
func (p *Pipeline) Run(ctx context.Context) error {
	start, err := p.startHeight(ctx)
	if err != nil {
		return err
	}
	log.Printf("[Pipeline] starting at height %d, depth %d", start, p.cfg.Depth)

	inflight := make(map[int64]chan error, p.cfg.Depth)
	launch := func(h int64) {
		ch := make(chan error, 1)
		inflight[h] = ch
		go func() {
			ch <- p.proc.ProcessHeight(ctx, h)
		}()
	}

	commit := start
	next := start
	var tip int64
	var committed int64

	for {
		select {
		case <-ctx.Done():
			p.finalDrain()
			return ctx.Err()
		default:
		}

		if commit > tip {
			t, err := p.client.Status(ctx)
			if err != nil {
				log.Printf("[Pipeline] status: %v", err)
				if !sleepCtx(ctx, p.cfg.PollSleep) {
					p.finalDrain()
					return ctx.Err()
				}
				continue
			}
			tip = t
			if commit > tip {
				if !sleepCtx(ctx, p.cfg.PollSleep) {
					p.finalDrain()
					return ctx.Err()
				}
				continue
			}
		}

		for next <= tip && next < commit+int64(p.cfg.Depth) {
			launch(next)
			next++
		}

		err := <-inflight[commit]
		delete(inflight, commit)
		if err != nil {
			log.Printf("[Pipeline] height %d failed: %v", commit, err)
			if !p.cfg.CheckpointOnError {
				if !sleepCtx(ctx, p.cfg.PollSleep) {
					p.finalDrain()
					return ctx.Err()
				}
				launch(commit)
				continue
			}
		}

		if err := p.writers.DrainAll(ctx); err != nil {
			log.Printf("[Pipeline] drain before checkpoint %d: %v", commit, err)
		}
		if err := p.repo.SetLastHeight(ctx, commit); err != nil {
			log.Printf("[Pipeline] checkpoint %d: %v", commit, err)
		}
		commit++
		committed++
		if committed%100 == 0 {
			log.Printf("[Pipeline] committed %d blocks, at height %d (tip %d)", committed, commit-1, tip)
		}
		if p.cfg.MaxBlocks > 0 && committed >= p.cfg.MaxBlocks {
			log.Printf("[Pipeline] MAX_BLOCKS reached (%d), stopping", p.cfg.MaxBlocks)
			p.finalDrain()
			return nil
		}
	}
}

// startHeight resumes one past the checkpoint, or at the current tip on a
// fresh database.
func (p *Pipeline) startHeight(ctx context.Context) (int64, error) {
	last, ok, err := p.repo.GetLastHeight(ctx)
	if err != nil {
		return 0, err
	}
	if ok {
		return last + 1, nil
	}
	tip, err := p.client.Status(ctx)
	if err != nil {
		return 0, err
	}
	return tip, nil
}

func (p *Pipeline) finalDrain() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := p.writers.DrainAll(ctx); err != nil {
		log.Printf("[Pipeline] final drain: %v", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
