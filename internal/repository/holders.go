package repository

import (
	"context"
	"fmt"

	"zigscan/internal/models"

	"github.com/jackc/pgx/v5"
)

// UpsertHolderPage writes one page of (address, balance) rows for a token
// inside a transaction.
func (r *Repository) UpsertHolderPage(ctx context.Context, tokenID int64, owners []models.Holder) error {
	if len(owners) == 0 {
		return nil
	}
	return r.withRetry(ctx, func() error {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		batch := &pgx.Batch{}
		for _, h := range owners {
			batch.Queue(`
				INSERT INTO holders (token_id, address, balance_base, updated_at)
				VALUES ($1, $2, $3::NUMERIC, NOW())
				ON CONFLICT (token_id, address) DO UPDATE SET
					balance_base = EXCLUDED.balance_base,
					updated_at = NOW()`,
				tokenID, h.Address, numericOrZero(h.BalanceBase))
		}
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < len(owners); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("upsert holder page token %d: %w", tokenID, err)
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

// FinalizeHolderSweep zeroes balances for addresses the sweep did not see
// and recomputes the positive-balance holder count, in one transaction.
func (r *Repository) FinalizeHolderSweep(ctx context.Context, tokenID int64, seen []string) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, `
			UPDATE holders SET balance_base = 0, updated_at = NOW()
			WHERE token_id = $1
			  AND balance_base > 0
			  AND NOT (address = ANY($2))`,
			tokenID, seen); err != nil {
			return fmt.Errorf("zero unseen holders token %d: %w", tokenID, err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO holder_stats (token_id, holders_count, updated_at)
			SELECT $1, COUNT(*), NOW() FROM holders
			WHERE token_id = $1 AND balance_base > 0
			ON CONFLICT (token_id) DO UPDATE SET
				holders_count = EXCLUDED.holders_count,
				updated_at = EXCLUDED.updated_at`,
			tokenID); err != nil {
			return fmt.Errorf("recount holders token %d: %w", tokenID, err)
		}

		return tx.Commit(ctx)
	})
}

// TouchHolderStats bumps updated_at without changing the count. Used when
// the ownership endpoint reports the denom as unsupported so the token
// still rotates to the back of the stalest queue.
func (r *Repository) TouchHolderStats(ctx context.Context, tokenID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO holder_stats (token_id, holders_count, updated_at)
		VALUES ($1, 0, NOW())
		ON CONFLICT (token_id) DO UPDATE SET updated_at = NOW()`,
		tokenID)
	return err
}

// CountPositiveHolders counts rows with positive balance for a token.
func (r *Repository) CountPositiveHolders(ctx context.Context, tokenID int64) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM holders WHERE token_id = $1 AND balance_base > 0`,
		tokenID).Scan(&n)
	return n, err
}

// PositiveHolders returns the set of addresses with positive balance for a
// token. Exposed for sweep verification in tests and tooling.
func (r *Repository) PositiveHolders(ctx context.Context, tokenID int64) (map[string]struct{}, error) {
	rows, err := r.db.Query(ctx, `
		SELECT address FROM holders WHERE token_id = $1 AND balance_base > 0`,
		tokenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out[addr] = struct{}{}
	}
	return out, rows.Err()
}
