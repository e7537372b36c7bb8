// /internal/storage/storage.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

var ErrNotFound = errors.New("not found")

type Storage struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS levels (
	guild_id   TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	xp         INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (guild_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_levels_guild_xp ON levels (guild_id, xp DESC);

CREATE TABLE IF NOT EXISTS warnings (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	guild_id     TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	moderator_id TEXT NOT NULL,
	reason       TEXT NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_warnings_member ON warnings (guild_id, user_id);

CREATE TABLE IF NOT EXISTS command_history (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	guild_id     TEXT NOT NULL,
	guild_name   TEXT NOT NULL,
	channel_id   TEXT NOT NULL,
	channel_name TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	username     TEXT NOT NULL,
	command      TEXT NOT NULL,
	param        TEXT NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_guild ON command_history (guild_id, id DESC);

CREATE TABLE IF NOT EXISTS mutes (
	guild_id TEXT NOT NULL,
	user_id  TEXT NOT NULL,
	until    INTEGER NOT NULL,
	reason   TEXT NOT NULL,
	PRIMARY KEY (guild_id, user_id)
);

CREATE TABLE IF NOT EXISTS guild_settings (
	guild_id TEXT NOT NULL,
	key      TEXT NOT NULL,
	value    TEXT NOT NULL,
	PRIMARY KEY (guild_id, key)
);
`

// New opens (creating if needed) the sqlite database at path. ":memory:"
// gives a private in-memory database.
func New(path string) (*Storage, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// withTx runs fn within a transaction, rolling back when fn fails.
func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func unix(t time.Time) int64 { return t.Unix() }

func fromUnix(sec int64) time.Time { return time.Unix(sec, 0).UTC() }
