package index

import (
	"errors"
	"io/fs"
	"log/slog"
	"time"

	"github.com/starford/roamorg/internal/orgfile"
	"github.com/starford/roamorg/internal/storage"
)

// Change kinds reported by Watch.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// Change is one file whose index rows were re-derived.
type Change struct {
	Kind string
	Path string
}

// Sync walks the roam directory and brings the index up to date. Changed
// files are re-parsed and files gone from disk lose their rows.
//
// Organizing operations only edit files; running Sync afterwards is what
// makes the index reflect those edits.
func Sync(db NoteIndex, store storage.Provider, logger *slog.Logger) error {
	changes, err := syncAll(db, store, logger)
	if err != nil {
		return err
	}
	if len(changes) > 0 {
		logger.Debug("sync: done", slog.Int("changes", len(changes)))
	}
	return nil
}

// syncAll compares every indexed checksum with the files on disk.
func syncAll(db NoteIndex, store storage.Provider, logger *slog.Logger) ([]Change, error) {
	metas, err := store.List("")
	if err != nil {
		return nil, err
	}
	indexed, err := db.AllChecksums()
	if err != nil {
		return nil, err
	}

	var changes []Change
	onDisk := make(map[string]bool, len(metas))
	for _, m := range metas {
		onDisk[m.Path] = true
		old, known := indexed[m.Path]
		if known && old == m.Checksum {
			continue
		}
		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := indexFile(db, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		changes = append(changes, Change{Kind: kindOf(known), Path: m.Path})
	}

	for p := range indexed {
		if onDisk[p] {
			continue
		}
		if err := db.DeleteFile(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		changes = append(changes, Change{Kind: ChangeDeleted, Path: p})
	}
	return changes, nil
}

// syncFile brings the rows of a single file in line with the disk. It
// reports false when nothing had to change.
func syncFile(db NoteIndex, store storage.Provider, path string) (Change, bool, error) {
	old, err := db.GetChecksum(path)
	if err != nil {
		return Change{}, false, err
	}
	data, err := store.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		if old == "" {
			return Change{}, false, nil
		}
		if err := db.DeleteFile(path); err != nil {
			return Change{}, false, err
		}
		return Change{Kind: ChangeDeleted, Path: path}, true, nil
	}
	if err != nil {
		return Change{}, false, err
	}
	if old == storage.Checksum(data) {
		return Change{}, false, nil
	}
	if err := indexFile(db, path, data); err != nil {
		return Change{}, false, err
	}
	return Change{Kind: kindOf(old != ""), Path: path}, true, nil
}

func kindOf(known bool) string {
	if known {
		return ChangeUpdated
	}
	return ChangeCreated
}

// indexFile parses data and upserts it into the DB.
func indexFile(db NoteIndex, path string, data []byte) error {
	res, err := orgfile.Parse(data)
	if err != nil {
		return err
	}
	return db.UpsertFile(FileRow{
		File:      path,
		Title:     res.Title,
		Checksum:  storage.Checksum(data),
		UpdatedAt: time.Now(),
	}, res)
}
