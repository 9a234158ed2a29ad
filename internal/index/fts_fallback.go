//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"strings"
)

// Without FTS5 the nodes and tags tables are searched directly.

func initFTS(*sql.DB) error { return nil }

func ftsUpsert(*sql.Tx, string, string, []string) error { return nil }

func ftsDeleteFile(*sql.Tx, string) {}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func searchStatement(query string) (string, []any) {
	like := "%" + likeEscaper.Replace(query) + "%"
	return `
		SELECT DISTINCT n.id, n.title, n.file, n.pos
		FROM nodes n
		LEFT JOIN tags t ON t.node_id = n.id
		WHERE n.title LIKE ? ESCAPE '\' OR t.tag LIKE ? ESCAPE '\'
		ORDER BY n.title
		LIMIT ?`, []any{like, like}
}
