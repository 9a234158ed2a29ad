//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS nodes_fts USING fts5(
	id UNINDEXED,
	title,
	tags,
	tokenize = 'unicode61 remove_diacritics 2'
);`

func initFTS(conn *sql.DB) error {
	if _, err := conn.Exec(ftsSchema); err != nil {
		return fmt.Errorf("index: create fts table: %w", err)
	}
	return nil
}

func ftsUpsert(tx *sql.Tx, id, title string, tags []string) error {
	if _, err := tx.Exec(`DELETE FROM nodes_fts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: clear fts row %s: %w", id, err)
	}
	if _, err := tx.Exec(`INSERT INTO nodes_fts (id, title, tags) VALUES (?, ?, ?)`,
		id, title, strings.Join(tags, " ")); err != nil {
		return fmt.Errorf("index: insert fts row %s: %w", id, err)
	}
	return nil
}

func ftsDeleteFile(tx *sql.Tx, file string) {
	_, _ = tx.Exec(`DELETE FROM nodes_fts WHERE id IN (SELECT id FROM nodes WHERE file = ?)`, file)
}

// searchStatement turns every word of query into a quoted prefix term, so
// user input never reaches the MATCH syntax.
func searchStatement(query string) (string, []any) {
	words := strings.Fields(query)
	terms := make([]string, len(words))
	for i, w := range words {
		terms[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"*`
	}
	return `
		SELECT n.id, n.title, n.file, n.pos
		FROM nodes_fts
		JOIN nodes n ON n.id = nodes_fts.id
		WHERE nodes_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, []any{strings.Join(terms, " ")}
}
