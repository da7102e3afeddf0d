// Package sqlite keeps the terminal's response cache in a local SQLite file
// so the last good menu and state survive restarts.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/appetiteclub/kds/services/terminal/internal/cache"
	"github.com/appetiteclub/kds/services/terminal/internal/store"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema versions:
// 1 - responses table
// 2 - index on token
const currentSchemaVersion = 2

// Cache is a cache.ResponseCache backed by SQLite in WAL mode.
type Cache struct {
	db *sql.DB
}

// Open creates or opens the cache database at path and applies pragmas and
// migrations. Safe to call on an existing file.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Cache) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	var (
		e        cache.Entry
		token    int64
		storedAt int64
	)
	row := c.db.QueryRowContext(ctx,
		`SELECT key, body, etag, token, stored_at FROM responses WHERE key = ?`, key)
	if err := row.Scan(&e.Key, &e.Body, &e.ETag, &token, &storedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, fmt.Errorf("get %s: %w", key, err)
	}
	e.Token = store.Token(token)
	e.StoredAt = time.UnixMilli(storedAt)
	return e, true, nil
}

func (c *Cache) Put(ctx context.Context, e cache.Entry) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO responses (key, body, etag, token, stored_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			body = excluded.body,
			etag = excluded.etag,
			token = excluded.token,
			stored_at = excluded.stored_at`,
		e.Key, e.Body, e.ETag, int64(e.Token), e.StoredAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("put %s: %w", e.Key, err)
	}
	return nil
}

func (c *Cache) Touch(ctx context.Context, key string, at time.Time) error {
	if _, err := c.db.ExecContext(ctx,
		`UPDATE responses SET stored_at = ? WHERE key = ?`, at.UnixMilli(), key); err != nil {
		return fmt.Errorf("touch %s: %w", key, err)
	}
	return nil
}

func (c *Cache) MaxToken(ctx context.Context) (store.Token, error) {
	var top sql.NullInt64
	if err := c.db.QueryRowContext(ctx, `SELECT MAX(token) FROM responses`).Scan(&top); err != nil {
		return 0, fmt.Errorf("max token: %w", err)
	}
	return store.Token(top.Int64), nil
}

func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM responses`); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return runMigrations(db)
}

// runMigrations applies incremental migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 2 {
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_responses_token ON responses(token)`); err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

var _ cache.ResponseCache = (*Cache)(nil)
