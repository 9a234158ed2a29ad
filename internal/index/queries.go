package index

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/roamorg/internal/apperr"
	"github.com/starford/roamorg/internal/models"
)

// GetNode returns the node with the given id and its tags.
func (db *DB) GetNode(id string) (*models.Node, error) {
	n := &models.Node{}
	err := db.conn.QueryRow(`SELECT id, title, file, level, pos FROM nodes WHERE id = ?`, id).
		Scan(&n.ID, &n.Title, &n.File, &n.Level, &n.Pos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: node %q: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get node: %w", err)
	}

	rows, err := db.conn.Query(`SELECT tag FROM tags WHERE node_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("index: node tags: %w", err)
	}
	defer rows.Close()
	n.Tags = []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		n.Tags = append(n.Tags, tag)
	}
	return n, rows.Err()
}

// CountLevel0ByTag reports, for every tag, how many level 0 nodes carry it.
// Tags without matches are present with a zero count.
func (db *DB) CountLevel0ByTag(tags []string) (map[string]int, error) {
	out := make(map[string]int, len(tags))
	if len(tags) == 0 {
		return out, nil
	}
	for _, t := range tags {
		out[t] = 0
	}
	marks, args := placeholders(tags)
	rows, err := db.conn.Query(`
		SELECT t.tag, COUNT(DISTINCT n.id)
		FROM tags t
		JOIN nodes n ON n.id = t.node_id
		WHERE n.level = 0 AND t.tag IN (`+marks+`)
		GROUP BY t.tag
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: count by tag: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tag string
		var n int
		if err := rows.Scan(&tag, &n); err != nil {
			return nil, err
		}
		out[tag] = n
	}
	return out, rows.Err()
}

// Level0IDsByTag lists the level 0 node ids carrying each tag.
func (db *DB) Level0IDsByTag(tags []string) (map[string][]string, error) {
	marks, args := placeholders(tags)
	return db.groupedIDs(tags, `
		SELECT DISTINCT t.tag, n.id
		FROM tags t
		JOIN nodes n ON n.id = t.node_id
		WHERE n.level = 0 AND t.tag IN (`+marks+`)
		ORDER BY t.tag, n.id
	`, args)
}

// Level0IDsByCitekey lists the level 0 nodes citing each citation key.
func (db *DB) Level0IDsByCitekey(keys []string) (map[string][]string, error) {
	marks, args := placeholders(keys)
	args = append([]any{models.LinkTypeCite}, args...)
	return db.groupedIDs(keys, `
		SELECT DISTINCT l.dest, n.id
		FROM links l
		JOIN nodes n ON n.id = l.source
		WHERE l.type = ? AND n.level = 0 AND l.dest IN (`+marks+`)
		ORDER BY l.dest, n.id
	`, args)
}

// ExistingLinkTargets lists the destinations each source already links to
// with the given link type. For id links the destination must be a level 0
// node.
func (db *DB) ExistingLinkTargets(sources []string, linkType string) (map[string][]string, error) {
	marks, args := placeholders(sources)
	args = append([]any{linkType}, args...)
	query := `
		SELECT DISTINCT l.source, l.dest
		FROM links l
		WHERE l.type = ? AND l.source IN (` + marks + `)
		ORDER BY l.source, l.dest
	`
	if linkType == models.LinkTypeID {
		query = `
		SELECT DISTINCT l.source, l.dest
		FROM links l
		JOIN nodes n ON n.id = l.dest
		WHERE l.type = ? AND n.level = 0 AND l.source IN (` + marks + `)
		ORDER BY l.source, l.dest
	`
	}
	return db.groupedIDs(sources, query, args)
}

// RefAnchors returns the (citation key, node id) pairs of every node that
// declares a citation key in its refs.
func (db *DB) RefAnchors() ([]models.Ref, error) {
	rows, err := db.conn.Query(`
		SELECT r.node_id, r.ref, r.type
		FROM refs r
		JOIN nodes n ON n.id = r.node_id
		WHERE r.type = ?
		ORDER BY r.ref, r.node_id
	`, models.LinkTypeCite)
	if err != nil {
		return nil, fmt.Errorf("index: ref anchors: %w", err)
	}
	defer rows.Close()
	var out []models.Ref
	for rows.Next() {
		var r models.Ref
		if err := rows.Scan(&r.NodeID, &r.Ref, &r.Type); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// groupedIDs runs a two-column (key, id) query and groups the ids by key.
// Every requested key is present in the result.
func (db *DB) groupedIDs(keys []string, query string, args []any) (map[string][]string, error) {
	out := make(map[string][]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	for _, k := range keys {
		out[k] = []string{}
	}
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: grouped ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, id string
		if err := rows.Scan(&key, &id); err != nil {
			return nil, err
		}
		out[key] = append(out[key], id)
	}
	return out, rows.Err()
}
