package organize

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/starford/roamorg/internal/models"
	"github.com/starford/roamorg/internal/orgfile"
	"github.com/starford/roamorg/internal/storage"
)

// RelocateResult describes a relocated entry.
type RelocateResult struct {
	NodeID  string   `json:"node_id"`
	Title   string   `json:"title"`
	OldPath string   `json:"old_path"`
	NewPath string   `json:"new_path"`
	Moved   bool     `json:"moved"`
	Retag   bool     `json:"retagged"`
	Tags    []string `json:"tags"`
	Target  string   `json:"target"`
}

// DeleteResult describes a deleted entry.
type DeleteResult struct {
	NodeID     string `json:"node_id"`
	Title      string `json:"title"`
	File       string `json:"file"`
	RemovedDir string `json:"removed_dir,omitempty"`
}

// Relocate moves the node linked from the headline at pos into the move
// directory, retags its file, and moves the headline subtree into the move
// file. Input errors abort before anything is touched. Filesystem errors
// after that propagate without rollback.
func (s *Service) Relocate(_ context.Context, pos models.Position) (*RelocateResult, error) {
	loc, err := s.locate(pos)
	if err != nil {
		return nil, err
	}
	mv := s.roam.Move
	node := loc.node

	targetRoot, err := s.rel(mv.Directory)
	if err != nil {
		return nil, err
	}
	target, err := s.rel(mv.File)
	if err != nil {
		return nil, err
	}

	dir := targetRoot
	if mv.IDNamedDirs {
		dir = filepath.Join(targetRoot, node.ID)
	}
	if err := s.store.MkdirAll(dir); err != nil {
		return nil, err
	}

	name := filepath.Base(node.File)
	if mv.IDNamedFiles {
		name = node.ID + storage.Ext
	}
	newPath := filepath.Join(dir, name)

	// Retag before the move so the rewrite hits the current path.
	retagged, err := s.ReplaceFileTag(node.File, mv.SourceTag, mv.TargetTag)
	if err != nil {
		return nil, err
	}

	res := &RelocateResult{
		NodeID:  node.ID,
		Title:   node.Title,
		OldPath: node.File,
		NewPath: newPath,
		Retag:   retagged,
		Target:  target,
	}
	res.Tags = orgfile.ReplaceTag(node.Tags, mv.SourceTag, mv.TargetTag)

	if newPath != node.File {
		if err := s.store.Move(node.File, newPath); err != nil {
			return nil, err
		}
		res.Moved = true
	}

	// The retag or the move may have touched the file holding the entry.
	source := loc.file
	if source == node.File {
		source = newPath
	}
	buf, err := s.readOrEmpty(source)
	if err != nil {
		return nil, err
	}
	entry, err := buf.EntryAt(pos.Line)
	if err != nil {
		return nil, err
	}
	text := buf.Cut(entry)

	if target == source {
		buf.Append(text)
		if err := s.store.Write(source, buf.Bytes()); err != nil {
			return nil, err
		}
	} else {
		if err := s.store.Write(source, buf.Bytes()); err != nil {
			return nil, err
		}
		tbuf, err := s.readOrEmpty(target)
		if err != nil {
			return nil, err
		}
		tbuf.Append(text)
		if err := s.store.Write(target, tbuf.Bytes()); err != nil {
			return nil, err
		}
	}

	s.logger.Info("organize: relocated",
		slog.String("id", node.ID),
		slog.String("from", res.OldPath),
		slog.String("to", res.NewPath),
		slog.String("entry_target", target),
		slog.Bool("moved", res.Moved))
	return res, nil
}

// Delete removes the node linked from the headline at pos: its file, its id
// named directory when the node was relocated there, and the headline
// subtree. The filesystem is changed before the headline is cut.
func (s *Service) Delete(_ context.Context, pos models.Position) (*DeleteResult, error) {
	loc, err := s.locate(pos)
	if err != nil {
		return nil, err
	}
	node := loc.node
	mv := s.roam.Move

	if err := s.store.Delete(node.File); err != nil {
		return nil, err
	}
	res := &DeleteResult{NodeID: node.ID, Title: node.Title, File: node.File}

	if mv.IDNamedDirs && node.HasTag(mv.TargetTag) {
		targetRoot, err := s.rel(mv.Directory)
		if err != nil {
			return nil, err
		}
		dir := filepath.Join(targetRoot, node.ID)
		exists, isDir, err := s.store.Exists(dir)
		if err != nil {
			return nil, err
		}
		if exists && isDir {
			if err := s.store.RemoveAll(dir); err != nil {
				return nil, err
			}
			res.RemovedDir = dir
		}
	}

	// An entry inside the deleted file or directory went away with it.
	if loc.file != node.File && !isUnder(loc.file, res.RemovedDir) {
		loc.buf.Cut(loc.entry)
		if err := s.store.Write(loc.file, loc.buf.Bytes()); err != nil {
			return nil, err
		}
	}

	s.logger.Info("organize: deleted",
		slog.String("id", node.ID),
		slog.String("file", node.File),
		slog.String("removed_dir", res.RemovedDir))
	return res, nil
}

// isUnder reports whether path lies inside dir. Both are root-relative.
func isUnder(path, dir string) bool {
	if dir == "" {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
