// Package index provides the SQLite node index derived from the org files:
// files, nodes, tags, links and refs, with optional FTS5 title search.
package index

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS files (
	file       TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS nodes (
	id    TEXT PRIMARY KEY,
	file  TEXT NOT NULL,
	level INTEGER NOT NULL DEFAULT 0,
	pos   INTEGER NOT NULL DEFAULT 0,
	title TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tags (
	node_id TEXT NOT NULL,
	tag     TEXT NOT NULL,
	UNIQUE(node_id, tag)
);

CREATE TABLE IF NOT EXISTS links (
	source TEXT NOT NULL,
	dest   TEXT NOT NULL,
	type   TEXT NOT NULL DEFAULT 'id',
	UNIQUE(source, dest, type)
);

CREATE TABLE IF NOT EXISTS refs (
	node_id TEXT NOT NULL,
	ref     TEXT NOT NULL,
	type    TEXT NOT NULL DEFAULT 'cite',
	UNIQUE(node_id, ref, type)
);

CREATE INDEX IF NOT EXISTS idx_nodes_file ON nodes(file);
CREATE INDEX IF NOT EXISTS idx_tags_tag ON tags(tag);
CREATE INDEX IF NOT EXISTS idx_links_source ON links(source);
CREATE INDEX IF NOT EXISTS idx_links_dest ON links(dest);
CREATE INDEX IF NOT EXISTS idx_refs_ref ON refs(ref);
`

// schemaVersion is stored in PRAGMA user_version. The index only holds
// data derived from the org files, so an index written with another version
// is dropped and rebuilt by the next Sync.
const schemaVersion = 1

var indexTables = []string{"files", "nodes", "tags", "links", "refs", "nodes_fts"}

// DB is the node index.
type DB struct {
	conn *sql.DB
}

// Open opens the index at path, creating it when missing.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &DB{conn: conn}, nil
}

func dsn(path string) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", "5000")
	q.Set("_foreign_keys", "on")
	return path + "?" + q.Encode()
}

func migrate(conn *sql.DB) error {
	var version int
	if err := conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("index: read schema version: %w", err)
	}
	if version != 0 && version != schemaVersion {
		for _, table := range indexTables {
			if _, err := conn.Exec(`DROP TABLE IF EXISTS ` + table); err != nil {
				return fmt.Errorf("index: drop %s: %w", table, err)
			}
		}
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		return fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		return err
	}
	if _, err := conn.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return fmt.Errorf("index: write schema version: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// Close closes the database.
func (db *DB) Close() error {
	return db.conn.Close()
}

// placeholders returns "?, ?, ..." with n markers and the values as args.
func placeholders(values []string) (string, []any) {
	marks := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		marks[i] = "?"
		args[i] = v
	}
	return strings.Join(marks, ", "), args
}
