// Package storage provides SQLite persistence for the boarding pass
// service: the daily schedule cache, merged ride history, and stored
// rider credentials.
package storage

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// sqlitePragmas are applied through the DSN at open time. WAL keeps
// readers unblocked during the history merge, and the busy timeout
// covers the brief writer contention that can cause.
var sqlitePragmas = url.Values{
	"_foreign_keys": {"on"},
	"_journal_mode": {"WAL"},
	"_busy_timeout": {"5000"},
	"_synchronous":  {"NORMAL"},
}

// DB is the open SQLite handle shared by all repositories.
type DB struct {
	*sql.DB
	path string
}

// NewDB opens (creating if necessary) the SQLite file at path, making
// parent directories as needed, and verifies the connection.
func NewDB(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?"+sqlitePragmas.Encode())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Single-rider service; a small pool is plenty even with WAL reads.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	return &DB{DB: db, path: path}, nil
}

// Path returns the filesystem path of the database file.
func (db *DB) Path() string {
	return db.path
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	return db.DB.Close()
}

// Transaction runs fn inside a transaction, committing on nil and
// rolling back on error.
func (db *DB) Transaction(fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
