package index

import (
	"database/sql"
	"fmt"
	"strings"
)

const defaultSearchLimit = 20

// Search returns nodes whose title or tags match query, best matches
// first. The matching backend depends on whether FTS5 is compiled in.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	stmt, args := searchStatement(query)
	rows, err := db.conn.Query(stmt, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("index: search %q: %w", query, err)
	}
	defer rows.Close()
	return scanResults(rows)
}

func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	var hits []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Title, &r.File, &r.Pos); err != nil {
			return nil, fmt.Errorf("index: scan search hit: %w", err)
		}
		hits = append(hits, r)
	}
	return hits, rows.Err()
}
