package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
)

// PostgresStore is the shared counter store. A single upsert performs the
// whole fixed-window step atomically: insert a fresh window, or reset an
// elapsed one, or increment the live one, returning the resulting count
// and reset time. The application clock is passed into the statement so
// window comparisons do not mix database and process time.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const rateLimitSchema = `
CREATE TABLE IF NOT EXISTS rate_limits (
	key      TEXT PRIMARY KEY,
	count    INTEGER NOT NULL,
	reset_at TIMESTAMPTZ NOT NULL
)`

const incrSQL = `
INSERT INTO rate_limits (key, count, reset_at)
VALUES ($1, 1, $3)
ON CONFLICT (key) DO UPDATE SET
	count    = CASE WHEN rate_limits.reset_at <= $2 THEN 1  ELSE rate_limits.count + 1 END,
	reset_at = CASE WHEN rate_limits.reset_at <= $2 THEN $3 ELSE rate_limits.reset_at END
RETURNING count, reset_at`

// NewPostgresStore ensures the counter table exists and returns the store.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, rateLimitSchema); err != nil {
		return nil, fmt.Errorf("create rate_limits table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Incr implements Store.
func (s *PostgresStore) Incr(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	now := time.Now()

	var count int
	var resetAt time.Time
	err := s.pool.QueryRow(ctx, incrSQL, key, now, now.Add(window)).Scan(&count, &resetAt)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("increment rate limit %s: %w", key, err)
	}
	return count, resetAt, nil
}

// PurgeExpired deletes rows whose window has elapsed. Returns the number
// of rows removed. Run periodically by the serve-mode janitor.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rate_limits WHERE reset_at <= $1`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("purge expired rate limits: %w", err)
	}
	return tag.RowsAffected(), nil
}
