package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zigscan/internal/models"

	"github.com/jackc/pgx/v5"
)

// KindForDenom infers a token kind from the denom shape. Factory denoms on
// this chain look like "coin.<creator>.<subdenom>"; bech32 contract
// addresses are CW20s.
func KindForDenom(denom, nativeDenom string) string {
	switch {
	case denom == nativeDenom:
		return models.TokenKindNative
	case strings.HasPrefix(denom, "ibc/"):
		return models.TokenKindIBC
	case strings.HasPrefix(denom, "coin.") || strings.HasPrefix(denom, "factory/"):
		return models.TokenKindFactory
	default:
		return models.TokenKindCW20
	}
}

// EnsureToken inserts a minimal stub row for denom on first sighting and
// returns its id. Existing rows are never modified here.
func (r *Repository) EnsureToken(ctx context.Context, denom, nativeDenom string) (int64, error) {
	var id int64
	err := r.withRetry(ctx, func() error {
		return r.db.QueryRow(ctx, `
			INSERT INTO tokens (denom, kind, exponent, created_at, updated_at)
			VALUES ($1, $2, CASE WHEN $2 = 'native' THEN 6 ELSE NULL END, NOW(), NOW())
			ON CONFLICT (denom) DO UPDATE SET denom = EXCLUDED.denom
			RETURNING id`,
			denom, KindForDenom(denom, nativeDenom)).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("ensure token %s: %w", denom, err)
	}
	return id, nil
}

func (r *Repository) GetTokenByDenom(ctx context.Context, denom string) (*models.Token, error) {
	var t models.Token
	err := r.db.QueryRow(ctx, `
		SELECT id, denom, kind, name, symbol, display, image, website, twitter, telegram,
			description, exponent, max_supply_base::TEXT, total_supply_base::TEXT,
			created_at, updated_at
		FROM tokens WHERE denom = $1`,
		denom).Scan(
		&t.ID, &t.Denom, &t.Kind, &t.Name, &t.Symbol, &t.Display, &t.Image, &t.Website,
		&t.Twitter, &t.Telegram, &t.Description, &t.Exponent, &t.MaxSupplyBase,
		&t.TotalSupplyBase, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token %s: %w", denom, err)
	}
	return &t, nil
}

// TokenMetaUpdate carries resolver output. Nil fields never clobber
// existing values.
type TokenMetaUpdate struct {
	Denom       string
	Kind        *string
	Name        *string
	Symbol      *string
	Display     *string
	Image       *string
	Website     *string
	Twitter     *string
	Telegram    *string
	Description *string
	Exponent    *int
}

// UpdateTokenMetadata merges resolved metadata into the token row. An
// incoming NULL never overwrites an existing non-null value.
func (r *Repository) UpdateTokenMetadata(ctx context.Context, u TokenMetaUpdate) error {
	return r.withRetry(ctx, func() error {
		_, err := r.db.Exec(ctx, `
			UPDATE tokens SET
				kind = COALESCE($2, kind),
				name = COALESCE($3, name),
				symbol = COALESCE($4, symbol),
				display = COALESCE($5, display),
				image = COALESCE($6, image),
				website = COALESCE($7, website),
				twitter = COALESCE($8, twitter),
				telegram = COALESCE($9, telegram),
				description = COALESCE($10, description),
				exponent = COALESCE($11, exponent),
				updated_at = NOW()
			WHERE denom = $1`,
			u.Denom, u.Kind, u.Name, u.Symbol, u.Display, u.Image, u.Website,
			u.Twitter, u.Telegram, u.Description, u.Exponent)
		return err
	})
}

// SetTokenSupply records factory supply figures (base units).
func (r *Repository) SetTokenSupply(ctx context.Context, denom string, maxSupplyBase, totalSupplyBase *string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE tokens SET
			max_supply_base = COALESCE($2::NUMERIC, max_supply_base),
			total_supply_base = COALESCE($3::NUMERIC, total_supply_base),
			updated_at = NOW()
		WHERE denom = $1`,
		denom, maxSupplyBase, totalSupplyBase)
	return err
}

// StalestHolderTokens picks the limit tokens whose holder snapshot is
// oldest, excluding native and IBC kinds (their ownership is not served by
// denom_owners in any useful way).
func (r *Repository) StalestHolderTokens(ctx context.Context, limit int) ([]models.Token, error) {
	rows, err := r.db.Query(ctx, `
		SELECT t.id, t.denom, t.kind, t.exponent
		FROM tokens t
		LEFT JOIN holder_stats hs ON hs.token_id = t.id
		WHERE t.kind NOT IN ('native', 'ibc')
		ORDER BY hs.updated_at ASC NULLS FIRST, t.id ASC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("stalest holder tokens: %w", err)
	}
	defer rows.Close()

	var tokens []models.Token
	for rows.Next() {
		var t models.Token
		if err := rows.Scan(&t.ID, &t.Denom, &t.Kind, &t.Exponent); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// ListTokenIDs returns every token id, for full token-matrix sweeps.
func (r *Repository) ListTokenIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM tokens ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// StaleMetadataDenoms returns denoms whose metadata has not been refreshed
// since the cutoff, oldest first. Used by the metadata backfill loop.
func (r *Repository) StaleMetadataDenoms(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT denom FROM tokens
		WHERE updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var denoms []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		denoms = append(denoms, d)
	}
	return denoms, rows.Err()
}
