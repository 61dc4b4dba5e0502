package repository

import (
	"context"
	"fmt"

	"zigscan/internal/models"

	"github.com/shopspring/decimal"
)

// UpsertTokenSecurity replaces the token's vetting report.
func (r *Repository) UpsertTokenSecurity(ctx context.Context, s models.TokenSecurity) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO token_security (token_id, creator, mintable, holders_count,
			top_holder_share, top10_share, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (token_id) DO UPDATE SET
			creator          = EXCLUDED.creator,
			mintable         = EXCLUDED.mintable,
			holders_count    = EXCLUDED.holders_count,
			top_holder_share = EXCLUDED.top_holder_share,
			top10_share      = EXCLUDED.top10_share,
			checked_at       = EXCLUDED.checked_at`,
		s.TokenID, s.Creator, s.Mintable, s.HoldersCount, s.TopHolderShare, s.Top10Share)
	if err != nil {
		return fmt.Errorf("upsert token security %d: %w", s.TokenID, err)
	}
	return nil
}

// TopHolderBalances returns the token's largest positive balances in
// descending order plus the sum over all positive holders.
func (r *Repository) TopHolderBalances(ctx context.Context, tokenID int64, limit int) ([]decimal.Decimal, decimal.Decimal, error) {
	rows, err := r.db.Query(ctx, `
		SELECT balance_base FROM holders
		WHERE token_id = $1 AND balance_base > 0
		ORDER BY balance_base DESC
		LIMIT $2`,
		tokenID, limit)
	if err != nil {
		return nil, decimal.Decimal{}, err
	}
	defer rows.Close()

	var top []decimal.Decimal
	for rows.Next() {
		var b decimal.Decimal
		if err := rows.Scan(&b); err != nil {
			return nil, decimal.Decimal{}, err
		}
		top = append(top, b)
	}
	if err := rows.Err(); err != nil {
		return nil, decimal.Decimal{}, err
	}

	var total decimal.Decimal
	err = r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(balance_base), 0) FROM holders
		WHERE token_id = $1 AND balance_base > 0`,
		tokenID).Scan(&total)
	if err != nil {
		return nil, decimal.Decimal{}, err
	}
	return top, total, nil
}
