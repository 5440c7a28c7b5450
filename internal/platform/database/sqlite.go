package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"ontohub/internal/platform/config"
)

const memoryDSN = ":memory:"

// Open connects to the SQLite database described by cfg. A "file:" prefix is
// stripped and the parent directory is created. In-memory databases are
// limited to a single connection so every caller sees the same schema.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	path := strings.TrimPrefix(cfg.URL, "file:")
	if path == "" {
		return nil, fmt.Errorf("database url is required")
	}

	dsn := memoryDSN
	if path != memoryDSN {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		// WAL + busy timeout let concurrent delivery workers append to the ledger.
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if path == memoryDSN {
		db.SetMaxOpenConns(1)
	} else {
		maxConns := cfg.MaxConnections
		if maxConns <= 0 {
			maxConns = 10
		}
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// OpenMemory opens a migrated in-memory database.
func OpenMemory() (*sql.DB, error) {
	db, err := Open(config.DatabaseConfig{URL: memoryDSN})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
