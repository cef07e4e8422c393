// Package sqlite implements the store interfaces on an embedded SQLite
// database in WAL mode. One file holds both the transactions table and
// the watermark table; the upsert path relies on the engine's write
// serialization instead of application-level locking.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultQueryTimeout bounds individual non-transactional queries so a
// runaway scan cannot hold the connection indefinitely.
const DefaultQueryTimeout = 30 * time.Second

type DB struct {
	*sql.DB
}

type Config struct {
	// Path is the database file location; parent directories are
	// created as needed. ":memory:" opens a private in-memory database
	// (used by tests).
	Path          string
	BusyTimeoutMS int
}

func New(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	if cfg.BusyTimeoutMS <= 0 {
		cfg.BusyTimeoutMS = 5000
	}

	dsn := cfg.Path
	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		params := url.Values{}
		params.Add("_pragma", "journal_mode(WAL)")
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeoutMS))
		params.Add("_pragma", "synchronous(NORMAL)")
		dsn = "file:" + cfg.Path + "?" + params.Encode()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite allows exactly one writer; a single connection avoids
	// SQLITE_BUSY churn between the orchestrator and the query layer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &DB{db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

func (db *DB) migrate() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS transactions (
			tx_hash      TEXT PRIMARY KEY,
			timestamp    INTEGER NOT NULL,
			block        INTEGER NOT NULL,
			from_address TEXT NOT NULL,
			to_address   TEXT NOT NULL,
			value        REAL NOT NULL,
			network      TEXT NOT NULL,
			contract     TEXT NOT NULL,
			type         TEXT NOT NULL,
			raw_payload  TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_tx_net_contract ON transactions (network, contract);
		CREATE INDEX IF NOT EXISTS idx_tx_from ON transactions (from_address COLLATE NOCASE);

		CREATE TABLE IF NOT EXISTS watermarks (
			network    TEXT NOT NULL,
			contract   TEXT NOT NULL,
			position   INTEGER NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (network, contract)
		);
	`
	ctx, cancel := context.WithTimeout(context.Background(), DefaultQueryTimeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
