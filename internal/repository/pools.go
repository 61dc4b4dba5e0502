package repository

import (
	"context"
	"fmt"
	"time"

	"zigscan/internal/models"

	"github.com/jackc/pgx/v5"
)

const poolColumns = `
	p.id, p.pair_contract, p.base_token_id, p.quote_token_id,
	bt.denom, qt.denom, p.lp_denom, p.pair_type, p.is_native_quote,
	p.factory_addr, p.router_addr, p.created_height, p.created_tx,
	p.created_signer, p.created_at, bt.exponent, qt.exponent`

func scanPool(row pgx.Row) (*models.Pool, error) {
	var p models.Pool
	err := row.Scan(
		&p.ID, &p.PairContract, &p.BaseTokenID, &p.QuoteTokenID,
		&p.BaseDenom, &p.QuoteDenom, &p.LPDenom, &p.PairType, &p.IsNativeQuote,
		&p.FactoryAddr, &p.RouterAddr, &p.CreatedHeight, &p.CreatedTx,
		&p.CreatedSigner, &p.CreatedAt, &p.BaseExponent, &p.QuoteExponent,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertPool creates the pool row for a pair contract (idempotent on
// pair_contract) and returns the stored row with token denoms and
// exponents joined in.
func (r *Repository) UpsertPool(ctx context.Context, p models.Pool) (*models.Pool, error) {
	err := r.withRetry(ctx, func() error {
		_, err := r.db.Exec(ctx, `
			INSERT INTO pools (
				pair_contract, base_token_id, quote_token_id, lp_denom, pair_type,
				is_native_quote, factory_addr, router_addr,
				created_height, created_tx, created_signer, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (pair_contract) DO UPDATE SET
				lp_denom = COALESCE(pools.lp_denom, EXCLUDED.lp_denom)`,
			p.PairContract, p.BaseTokenID, p.QuoteTokenID, p.LPDenom, p.PairType,
			p.IsNativeQuote, p.FactoryAddr, p.RouterAddr,
			p.CreatedHeight, p.CreatedTx, p.CreatedSigner, p.CreatedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("upsert pool %s: %w", p.PairContract, err)
	}
	return r.GetPoolByContract(ctx, p.PairContract)
}

func (r *Repository) GetPoolByContract(ctx context.Context, pairContract string) (*models.Pool, error) {
	p, err := scanPool(r.db.QueryRow(ctx, `
		SELECT `+poolColumns+`
		FROM pools p
		JOIN tokens bt ON bt.id = p.base_token_id
		JOIN tokens qt ON qt.id = p.quote_token_id
		WHERE p.pair_contract = $1`,
		pairContract))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pool %s: %w", pairContract, err)
	}
	return p, nil
}

func (r *Repository) GetPoolByID(ctx context.Context, id int64) (*models.Pool, error) {
	p, err := scanPool(r.db.QueryRow(ctx, `
		SELECT `+poolColumns+`
		FROM pools p
		JOIN tokens bt ON bt.id = p.base_token_id
		JOIN tokens qt ON qt.id = p.quote_token_id
		WHERE p.id = $1`,
		id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pool %d: %w", id, err)
	}
	return p, nil
}

// ListNativeQuotedPools returns every pool whose quote is the native denom,
// with exponents joined for price math.
func (r *Repository) ListNativeQuotedPools(ctx context.Context) ([]models.Pool, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+poolColumns+`
		FROM pools p
		JOIN tokens bt ON bt.id = p.base_token_id
		JOIN tokens qt ON qt.id = p.quote_token_id
		WHERE p.is_native_quote
		ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("list native-quoted pools: %w", err)
	}
	defer rows.Close()

	var pools []models.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, *p)
	}
	return pools, rows.Err()
}

// ListPools returns every pool.
func (r *Repository) ListPools(ctx context.Context) ([]models.Pool, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+poolColumns+`
		FROM pools p
		JOIN tokens bt ON bt.id = p.base_token_id
		JOIN tokens qt ON qt.id = p.quote_token_id
		ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	defer rows.Close()

	var pools []models.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, *p)
	}
	return pools, rows.Err()
}

// GetPoolState returns the latest raw reserves for a pool; nil when the
// pool has never reported state.
func (r *Repository) GetPoolState(ctx context.Context, poolID int64) (*models.PoolState, error) {
	var s models.PoolState
	err := r.db.QueryRow(ctx, `
		SELECT pool_id, reserve_base_base::TEXT, reserve_quote_base::TEXT, updated_at
		FROM pool_state WHERE pool_id = $1`,
		poolID).Scan(&s.PoolID, &s.ReserveBaseBase, &s.ReserveQuoteBase, &s.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pool state %d: %w", poolID, err)
	}
	return &s, nil
}

// UpsertPoolState writes a single pool's reserves outside the batch path
// (used when seeding a freshly created pair).
func (r *Repository) UpsertPoolState(ctx context.Context, s models.PoolState) error {
	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	return r.withRetry(ctx, func() error {
		_, err := r.db.Exec(ctx, `
			INSERT INTO pool_state (pool_id, reserve_base_base, reserve_quote_base, updated_at)
			VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4)
			ON CONFLICT (pool_id) DO UPDATE SET
				reserve_base_base = EXCLUDED.reserve_base_base,
				reserve_quote_base = EXCLUDED.reserve_quote_base,
				updated_at = EXCLUDED.updated_at`,
			s.PoolID, numericOrZero(s.ReserveBaseBase), numericOrZero(s.ReserveQuoteBase), updatedAt)
		return err
	})
}

// numericOrZero returns "0" for empty strings so NUMERIC columns don't
// choke on them.
func numericOrZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
