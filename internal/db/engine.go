// Package db fronts the SQLite engine for the host and for plugin SQL that
// has already passed capability enforcement. The engine executes what it is
// given; it never makes permission decisions.
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Engine wraps a SQLite database handle.
type Engine struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. Use ":memory:" for
// an ephemeral database.
func Open(path string) (*Engine, error) {
	if path == "" {
		return nil, fmt.Errorf("db: path required")
	}

	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", path, err)
	}

	// modernc sqlite serializes writes; a single connection keeps
	// transaction semantics simple and avoids SQLITE_BUSY churn.
	handle.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := handle.Exec(pragma); err != nil {
			handle.Close()
			return nil, fmt.Errorf("db: %s: %w", pragma, err)
		}
	}

	return &Engine{db: handle}, nil
}

// DB exposes the underlying handle for host-internal use (migrations,
// scoped storage). Plugin SQL must go through the sdk, never here.
func (e *Engine) DB() *sql.DB {
	return e.db
}

// Query runs a read statement and returns generic row maps, one per row,
// keyed by column name.
func (e *Engine) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Execute runs a write statement and returns the affected-row count. The
// count is passed through untouched; DDL statements report zero.
func (e *Engine) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := e.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (e *Engine) Close() error {
	return e.db.Close()
}
