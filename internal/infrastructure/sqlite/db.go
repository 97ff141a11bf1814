// Package sqlite persists client identities in a local SQLite database.
package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/pitr/gemini-ios-sub000/internal/identity"
	"github.com/pitr/gemini-ios-sub000/internal/log"
)

//go:embed schema.sql
var schema string

// DB owns the SQLite connection pool.
type DB struct {
	conn *sql.DB
	path string
}

// NewDB opens (creating if needed) the database at path and applies the
// schema. The schema is idempotent, so reopening an existing file is safe.
func NewDB(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(1)&_txlock=immediate"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	log.Debug(log.CatDB, "database opened", "path", path)
	return &DB{conn: conn, path: path}, nil
}

// IdentityRepository returns a repository backed by this database.
func (d *DB) IdentityRepository() identity.Repository {
	return newIdentityRepository(d)
}

// Connection exposes the underlying pool.
func (d *DB) Connection() *sql.DB {
	return d.conn
}

// Close closes the pool.
func (d *DB) Close() error {
	return d.conn.Close()
}
