// Package index provides the SQLite-backed note index: note rows, the tag
// usage ledger, and a full-text mirror (FTS5 when compiled in). All derived
// state is maintained by explicit application-level transactions; there are
// no triggers in the schema.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id            TEXT PRIMARY KEY,
	filepath      TEXT NOT NULL,
	mtime         DATETIME NOT NULL,
	created       DATETIME NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	content       TEXT NOT NULL DEFAULT '',
	tags          TEXT NOT NULL DEFAULT '[]',
	fingerprint   TEXT NOT NULL DEFAULT '',
	tombstoned_at DATETIME
);

-- One live note per path; tombstones keep their last path for diagnostics.
CREATE UNIQUE INDEX IF NOT EXISTS idx_notes_live_path
	ON notes(filepath) WHERE tombstoned_at IS NULL;

CREATE INDEX IF NOT EXISTS idx_notes_fingerprint ON notes(fingerprint);

CREATE TABLE IF NOT EXISTS tags (
	name        TEXT PRIMARY KEY,
	usage_count INTEGER NOT NULL DEFAULT 0
);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
