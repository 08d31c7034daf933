package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the bot's tables when they do not exist yet. The bot owns its
// schema the same way the original deployment did; there is no separate
// migration pipeline for two tables.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS users (
	id BIGINT PRIMARY KEY,
	first_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	username TEXT NOT NULL DEFAULT '',
	requests_count INT NOT NULL DEFAULT 0,
	premium_until TIMESTAMPTZ,
	referrer_id BIGINT NOT NULL DEFAULT 0,
	referrals_count INT NOT NULL DEFAULT 0
)
`); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}

	if _, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS events (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT,
	name TEXT NOT NULL,
	payload JSONB NOT NULL DEFAULT '{}'::jsonb,
	occurred_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)
`); err != nil {
		return fmt.Errorf("create events table: %w", err)
	}

	return nil
}
