package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS markets (
	id                  BIGSERIAL PRIMARY KEY,
	name                TEXT NOT NULL,
	question            TEXT NOT NULL DEFAULT '',
	creator_id          TEXT NOT NULL,
	b                   DOUBLE PRECISION NOT NULL,
	status              TEXT NOT NULL,
	when_created        TIMESTAMPTZ NOT NULL,
	when_closes         TIMESTAMPTZ NOT NULL,
	when_resolved       TIMESTAMPTZ,
	when_cancelled      TIMESTAMPTZ,
	resolved_outcome_id BIGINT
);
CREATE UNIQUE INDEX IF NOT EXISTS markets_name_key ON markets (lower(name));

CREATE TABLE IF NOT EXISTS outcomes (
	id        BIGSERIAL PRIMARY KEY,
	market_id BIGINT NOT NULL REFERENCES markets(id),
	symbol    TEXT NOT NULL,
	q         DOUBLE PRECISION NOT NULL DEFAULT 0,
	UNIQUE (market_id, symbol)
);

CREATE TABLE IF NOT EXISTS positions (
	id         BIGSERIAL PRIMARY KEY,
	user_id    TEXT NOT NULL,
	market_id  BIGINT NOT NULL REFERENCES markets(id),
	outcome_id BIGINT NOT NULL REFERENCES outcomes(id),
	shares     DOUBLE PRECISION NOT NULL DEFAULT 0,
	UNIQUE (user_id, market_id, outcome_id)
);

CREATE TABLE IF NOT EXISTS cycles (
	id          BIGSERIAL PRIMARY KEY,
	key         TEXT NOT NULL UNIQUE,
	starts_at   TIMESTAMPTZ NOT NULL,
	ends_at     TIMESTAMPTZ NOT NULL,
	median_bets INT,
	winner_id   TEXT,
	when_closed TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS accounts (
	id         BIGSERIAL PRIMARY KEY,
	cycle_id   BIGINT NOT NULL REFERENCES cycles(id),
	user_id    TEXT NOT NULL,
	balance    DOUBLE PRECISION NOT NULL,
	bet_count  INT NOT NULL DEFAULT 0,
	last_topup TIMESTAMPTZ,
	UNIQUE (cycle_id, user_id)
);

CREATE TABLE IF NOT EXISTS trades (
	id         UUID PRIMARY KEY,
	cycle_id   BIGINT NOT NULL REFERENCES cycles(id),
	user_id    TEXT NOT NULL,
	market_id  BIGINT NOT NULL REFERENCES markets(id),
	outcome_id BIGINT NOT NULL REFERENCES outcomes(id),
	side       TEXT NOT NULL,
	shares     DOUBLE PRECISION NOT NULL,
	amount     DOUBLE PRECISION NOT NULL,
	at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_user_cycle_idx ON trades (cycle_id, user_id);
`

// Migrate creates the schema when it does not exist yet. Statements
// are idempotent, so running it on every startup is fine.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
