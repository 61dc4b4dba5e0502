package repository

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the single gateway to Postgres. All mutations go through
// its pool.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(dbURL string) (*Repository, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse db url: %w", err)
	}

	if maxConnStr := os.Getenv("DB_MAX_OPEN_CONNS"); maxConnStr != "" {
		if maxConn, err := strconv.Atoi(maxConnStr); err == nil {
			config.MaxConns = int32(maxConn)
		}
	}
	if minConnStr := os.Getenv("DB_MAX_IDLE_CONNS"); minConnStr != "" {
		if minConn, err := strconv.Atoi(minConnStr); err == nil {
			config.MinConns = int32(minConn)
		}
	}

	// Recycle connections periodically so stale ones do not survive
	// across deployments.
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	// Per-connection parameters: kill runaway statements after 2 minutes
	// and connections idle inside a transaction after 1 minute.
	if config.ConnConfig.RuntimeParams == nil {
		config.ConnConfig.RuntimeParams = map[string]string{}
	}
	if _, ok := config.ConnConfig.RuntimeParams["statement_timeout"]; !ok {
		config.ConnConfig.RuntimeParams["statement_timeout"] = getEnvDefault("DB_STATEMENT_TIMEOUT", "120000")
	}
	if _, ok := config.ConnConfig.RuntimeParams["idle_in_transaction_session_timeout"]; !ok {
		config.ConnConfig.RuntimeParams["idle_in_transaction_session_timeout"] = getEnvDefault("DB_IDLE_TX_TIMEOUT", "60000")
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return &Repository{db: pool}, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (r *Repository) Migrate(schemaPath string) error {
	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	_, err = r.db.Exec(context.Background(), string(content))
	if err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (r *Repository) Close() {
	r.db.Close()
}

// withRetry runs fn up to 3 times with linear backoff (150ms * attempt)
// for retry-safe transient database errors.
func (r *Repository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * 150 * time.Millisecond):
		}
	}
	return err
}

// --- Checkpoint store ---

// GetLastHeight reads the last fully committed height. Returns (0, false)
// when no checkpoint exists yet.
func (r *Repository) GetLastHeight(ctx context.Context) (int64, bool, error) {
	var height int64
	err := r.db.QueryRow(ctx, `SELECT last_height FROM index_state WHERE id = 'block'`).Scan(&height)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return height, true, nil
}

// SetLastHeight upserts the checkpoint singleton. GREATEST keeps the value
// monotonic even if two drivers race.
func (r *Repository) SetLastHeight(ctx context.Context, height int64) error {
	return r.withRetry(ctx, func() error {
		_, err := r.db.Exec(ctx, `
			INSERT INTO index_state (id, last_height, updated_at)
			VALUES ('block', $1, NOW())
			ON CONFLICT (id) DO UPDATE SET
				last_height = GREATEST(index_state.last_height, EXCLUDED.last_height),
				updated_at = NOW()`,
			height)
		return err
	})
}

// --- NOTIFY / LISTEN ---

// Channel names are interpolated into LISTEN/NOTIFY statements (the
// grammar does not take parameters), so they must be validated first.
var channelNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Notify publishes payload on channel.
func (r *Repository) Notify(ctx context.Context, channel, payload string) error {
	if !channelNameRe.MatchString(channel) {
		return fmt.Errorf("invalid notify channel name %q", channel)
	}
	_, err := r.db.Exec(ctx, `SELECT pg_notify($1, $2)`, channel, payload)
	return err
}

// Listen dedicates one connection to LISTEN on channel and delivers each
// payload to handle until ctx is done. Errors from handle are the
// handler's problem; connection errors return.
func (r *Repository) Listen(ctx context.Context, channel string, handle func(payload string)) error {
	if !channelNameRe.MatchString(channel) {
		return fmt.Errorf("invalid listen channel name %q", channel)
	}
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return fmt.Errorf("listen %s: %w", channel, err)
	}
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		handle(n.Payload)
	}
}
