package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the session store (SQLite).
var Migrations = migrate.NewGroup("vidscribe")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_vidscribe_users",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS vidscribe_users (
    id                TEXT PRIMARY KEY,
    email             TEXT NOT NULL DEFAULT '',
    tier              TEXT NOT NULL DEFAULT 'free',
    balance           INTEGER NOT NULL DEFAULT 0,
    jobs_completed    INTEGER NOT NULL DEFAULT 0,
    seconds_captioned REAL NOT NULL DEFAULT 0,
    credits_spent     INTEGER NOT NULL DEFAULT 0,
    created_at        TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at        TEXT NOT NULL DEFAULT (datetime('now'))
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS vidscribe_users`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_vidscribe_balances",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS vidscribe_balances (
    user_id TEXT PRIMARY KEY,
    balance INTEGER NOT NULL DEFAULT 0
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS vidscribe_balances`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_vidscribe_transactions",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS vidscribe_transactions (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL DEFAULT '',
    amount        INTEGER NOT NULL DEFAULT 0,
    kind          TEXT NOT NULL DEFAULT '',
    reference     TEXT NOT NULL DEFAULT '',
    timestamp     TEXT NOT NULL DEFAULT (datetime('now')),
    balance_after INTEGER NOT NULL DEFAULT 0,
    description   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_vidscribe_txns_user ON vidscribe_transactions (user_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_vidscribe_txns_kind ON vidscribe_transactions (user_id, kind);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS vidscribe_transactions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_vidscribe_jobs",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS vidscribe_jobs (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL DEFAULT '',
    source_path      TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'idle',
    options          TEXT NOT NULL DEFAULT '{}',
    duration_seconds REAL NOT NULL DEFAULT 0,
    size_bytes       INTEGER NOT NULL DEFAULT 0,
    request_id       TEXT NOT NULL DEFAULT '',
    started_at       TEXT NOT NULL DEFAULT '',
    completed_at     TEXT NOT NULL DEFAULT '',
    credits_reserved INTEGER NOT NULL DEFAULT 0,
    credits_refunded INTEGER NOT NULL DEFAULT 0,
    result_path      TEXT NOT NULL DEFAULT '',
    transcription    TEXT NOT NULL DEFAULT '',
    subtitle_count   INTEGER NOT NULL DEFAULT 0,
    retry_count      INTEGER NOT NULL DEFAULT 0,
    max_retries      INTEGER NOT NULL DEFAULT 0,
    failure_reason   TEXT NOT NULL DEFAULT '',
    created_at       TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_vidscribe_jobs_user ON vidscribe_jobs (user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_vidscribe_jobs_status ON vidscribe_jobs (user_id, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS vidscribe_jobs`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_vidscribe_purchases",
			Version: "20250101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS vidscribe_purchases (
    purchase_id  TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL DEFAULT '',
    processed_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_vidscribe_purchases_user ON vidscribe_purchases (user_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS vidscribe_purchases`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_vidscribe_grants",
			Version: "20250101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS vidscribe_grants (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL DEFAULT '',
    tier       TEXT NOT NULL DEFAULT 'free',
    credits    INTEGER NOT NULL DEFAULT 0,
    granted_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_vidscribe_grants_user_tier ON vidscribe_grants (user_id, tier, granted_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS vidscribe_grants`)
				return err
			},
		},
	)
}
