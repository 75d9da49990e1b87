package db

import (
	"context"
	"fmt"
	"log/slog"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	username      TEXT PRIMARY KEY,
	id            TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	generation    INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS posts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	author       TEXT NOT NULL,
	title        TEXT NOT NULL,
	body         TEXT NOT NULL,
	last_updated INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author);`

// LocalConnect opens the SQLite database at dbPath and makes sure the schema
// exists. ":memory:" gives a private in-memory database.
func LocalConnect(ctx context.Context, dbPath string) (*sqlx.DB, error) {
	pool, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local database connection: %w", err)
	}

	// SQLite serializes writers anyway; a single connection also keeps an
	// in-memory database shared by every query.
	pool.SetMaxOpenConns(1)

	if err := InitializeDB(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	slog.InfoContext(ctx, "Connected to local database", "path", dbPath)
	return pool, nil
}

// InitializeDB creates the tables used by the SQLite repositories.
func InitializeDB(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
