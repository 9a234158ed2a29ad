package index

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/roamorg/internal/orgfile"
)

// FileRow represents a row in the files table.
type FileRow struct {
	File      string
	Title     string
	Checksum  string
	UpdatedAt time.Time
}

// SearchResult represents one node search hit.
type SearchResult struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	File  string `json:"file"`
	Pos   int    `json:"pos"`
}

// UpsertFile replaces everything derived from one file (its nodes, their
// tags, outgoing links and refs) within a transaction.
func (db *DB) UpsertFile(f FileRow, res *orgfile.Result) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := deleteFileRows(tx, f.File); err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO files (file, title, checksum, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(file) DO UPDATE SET
			title      = excluded.title,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, f.File, f.Title, f.Checksum, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert file: %w", err)
	}

	fallback := strings.TrimSuffix(filepath.Base(f.File), filepath.Ext(f.File))
	for _, n := range res.Nodes {
		title := n.Title
		if title == "" {
			title = fallback
		}
		// Ids are unique across the knowledge base; a later file claiming
		// the same id takes it over, rows derived elsewhere included.
		if err := clearNodeRows(tx, n.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO nodes (id, file, level, pos, title) VALUES (?, ?, ?, ?, ?)`,
			n.ID, f.File, n.Level, n.Line, title); err != nil {
			return fmt.Errorf("index: insert node: %w", err)
		}
		if err := ftsUpsert(tx, n.ID, title, n.Tags); err != nil {
			return err
		}
		for _, tag := range n.Tags {
			if _, err := tx.Exec(`INSERT OR IGNORE INTO tags (node_id, tag) VALUES (?, ?)`, n.ID, tag); err != nil {
				return fmt.Errorf("index: insert tag: %w", err)
			}
		}
	}

	if len(res.Links) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO links (source, dest, type) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, l := range res.Links {
			if _, err := stmt.Exec(l.Source, l.Dest, l.Type); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	for _, r := range res.Refs {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO refs (node_id, ref, type) VALUES (?, ?, ?)`, r.NodeID, r.Ref, r.Type); err != nil {
			return fmt.Errorf("index: insert ref: %w", err)
		}
	}

	return tx.Commit()
}

// DeleteFile removes a file and everything derived from it.
func (db *DB) DeleteFile(file string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deleteFileRows(tx, file); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM files WHERE file = ?`, file); err != nil {
		return fmt.Errorf("index: delete file: %w", err)
	}
	return tx.Commit()
}

func clearNodeRows(tx *sql.Tx, id string) error {
	for _, stmt := range []string{
		`DELETE FROM tags WHERE node_id = ?`,
		`DELETE FROM links WHERE source = ?`,
		`DELETE FROM refs WHERE node_id = ?`,
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("index: clear node %s: %w", id, err)
		}
	}
	return nil
}

func deleteFileRows(tx *sql.Tx, file string) error {
	stmts := []string{
		`DELETE FROM tags WHERE node_id IN (SELECT id FROM nodes WHERE file = ?)`,
		`DELETE FROM links WHERE source IN (SELECT id FROM nodes WHERE file = ?)`,
		`DELETE FROM refs WHERE node_id IN (SELECT id FROM nodes WHERE file = ?)`,
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s, file); err != nil {
			return fmt.Errorf("index: clear file rows: %w", err)
		}
	}
	ftsDeleteFile(tx, file)
	if _, err := tx.Exec(`DELETE FROM nodes WHERE file = ?`, file); err != nil {
		return fmt.Errorf("index: clear nodes: %w", err)
	}
	return nil
}

// GetChecksum returns the stored checksum for a file, or empty string if not found.
func (db *DB) GetChecksum(file string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM files WHERE file = ?`, file).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: checksum %s: %w", file, err)
	}
	return cs, nil
}

// AllChecksums returns the stored checksum of every indexed file.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT file, checksum FROM files`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var f, cs string
		if err := rows.Scan(&f, &cs); err != nil {
			return nil, err
		}
		out[f] = cs
	}
	return out, rows.Err()
}
