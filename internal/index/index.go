package index

import (
	"github.com/starford/roamorg/internal/models"
	"github.com/starford/roamorg/internal/orgfile"
)

// Reader is the read-only query facade the organizing operations depend on.
// Every method tolerates empty input and never mutates state.
type Reader interface {
	GetNode(id string) (*models.Node, error)
	CountLevel0ByTag(tags []string) (map[string]int, error)
	Level0IDsByTag(tags []string) (map[string][]string, error)
	Level0IDsByCitekey(keys []string) (map[string][]string, error)
	ExistingLinkTargets(sources []string, linkType string) (map[string][]string, error)
	RefAnchors() ([]models.Ref, error)
	Search(query string, limit int) ([]SearchResult, error)
}

// NoteIndex is the full index, including the writer side used by Sync and
// Watch to re-derive rows from files.
type NoteIndex interface {
	Reader
	UpsertFile(f FileRow, res *orgfile.Result) error
	DeleteFile(file string) error
	GetChecksum(file string) (string, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
