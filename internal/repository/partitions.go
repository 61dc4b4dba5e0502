package repository

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PartitionedTables are the monthly-partitioned parents this process
// writes or maintains.
var PartitionedTables = []string{"trades", "price_ticks", "ohlcv_1m", "leaderboard_traders"}

// partitionCache tracks which (table, month) children have already been
// ensured this process lifetime, avoiding redundant DDL round-trips.
var (
	partitionCacheMu sync.Mutex
	partitionCache   = make(map[string]bool)
)

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// EnsureMonthlyPartitions creates child partitions for every partitioned
// parent, covering the current month through monthsAhead months ahead.
// Idempotent via IF NOT EXISTS.
func (r *Repository) EnsureMonthlyPartitions(ctx context.Context, monthsAhead int) error {
	from := monthStart(time.Now())
	to := from.AddDate(0, monthsAhead, 0)
	for _, table := range PartitionedTables {
		if err := r.ensurePartitionsBetween(ctx, table, from, to); err != nil {
			return err
		}
	}
	return nil
}

// EnsurePartitionsForRange ensures table has children covering every month
// touched by [minAt, maxAt]. Write paths call this before inserting so a
// late or replayed row never lands outside an existing partition.
func (r *Repository) EnsurePartitionsForRange(ctx context.Context, table string, minAt, maxAt time.Time) error {
	return r.ensurePartitionsBetween(ctx, table, monthStart(minAt), monthStart(maxAt))
}

func (r *Repository) ensurePartitionsBetween(ctx context.Context, table string, from, to time.Time) error {
	for m := from; !m.After(to); m = m.AddDate(0, 1, 0) {
		key := fmt.Sprintf("%s:%s", table, m.Format("2006_01"))
		partitionCacheMu.Lock()
		done := partitionCache[key]
		partitionCacheMu.Unlock()
		if done {
			continue
		}

		child := fmt.Sprintf("%s_%s", table, m.Format("2006_01"))
		next := m.AddDate(0, 1, 0)
		ddl := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')`,
			child, table,
			m.Format("2006-01-02 15:04:05+00"),
			next.Format("2006-01-02 15:04:05+00"),
		)
		if _, err := r.db.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create partition %s: %w", child, err)
		}

		partitionCacheMu.Lock()
		partitionCache[key] = true
		partitionCacheMu.Unlock()
	}
	return nil
}
