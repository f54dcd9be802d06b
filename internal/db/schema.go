package db

import (
	"context"
	"fmt"
)

// hostSchema is the finance schema owned by the host application. Plugin
// tables live beside it under the sys_plugin_<id>_ namespace.
const hostSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT 'checking',
	currency TEXT NOT NULL DEFAULT 'USD',
	balance REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS categories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	icon TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL REFERENCES accounts(id),
	category_id INTEGER REFERENCES categories(id),
	amount REAL NOT NULL,
	memo TEXT NOT NULL DEFAULT '',
	posted_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id);
CREATE INDEX IF NOT EXISTS idx_transactions_posted ON transactions(posted_at);
`

// Migrate creates the host finance schema if it does not exist.
func (e *Engine) Migrate(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, hostSchema); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	return nil
}
