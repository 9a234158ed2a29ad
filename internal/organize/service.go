// Package organize implements the organizing operations over the knowledge
// base: relocating and deleting entries, retagging files, and keeping MOC
// counters and backlinks complete. Operations only edit files; the index is
// expected to be resynced by the caller afterwards.
package organize

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/roamorg/internal/apperr"
	"github.com/starford/roamorg/internal/index"
	"github.com/starford/roamorg/internal/models"
	"github.com/starford/roamorg/internal/orgfile"
	"github.com/starford/roamorg/internal/settings"
	"github.com/starford/roamorg/internal/storage"
)

// Service runs the organizing operations.
type Service struct {
	store  storage.Provider
	idx    index.Reader
	roam   settings.Roam
	logger *slog.Logger
}

// NewService creates a new organizing service.
func NewService(store storage.Provider, idx index.Reader, roam settings.Roam, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, idx: idx, roam: roam, logger: logger}
}

// ReplaceFileTag swaps source for target on the #+filetags: line of path.
// A file without that line is left alone. The file is written only when the
// line actually changes.
func (s *Service) ReplaceFileTag(path, source, target string) (bool, error) {
	data, err := s.store.Read(path)
	if err != nil {
		return false, err
	}
	buf := orgfile.NewBuffer(data)
	changed, found := buf.ReplaceFileTag(source, target)
	if !found {
		s.logger.Info("organize: no filetags line", slog.String("path", path))
		return false, nil
	}
	if !changed {
		return false, nil
	}
	if err := s.store.Write(path, buf.Bytes()); err != nil {
		return false, err
	}
	s.logger.Debug("organize: retagged",
		slog.String("path", path),
		slog.String("source", source),
		slog.String("target", target))
	return true, nil
}

// located is an entry resolved from a position, with the node it links to.
type located struct {
	file  string
	buf   *orgfile.Buffer
	entry orgfile.Entry
	node  *models.Node
}

// locate resolves the entry at pos, the id in its title and the node behind
// it. Nothing is modified.
func (s *Service) locate(pos models.Position) (*located, error) {
	file, err := s.store.Rel(pos.File)
	if err != nil {
		return nil, fmt.Errorf("organize: %s: %w", pos, err)
	}
	data, err := s.store.Read(file)
	if err != nil {
		return nil, err
	}
	buf := orgfile.NewBuffer(data)
	entry, err := buf.EntryAt(pos.Line)
	if err != nil {
		return nil, fmt.Errorf("organize: %s: %w", pos, err)
	}
	id, ok := orgfile.IDFromTitle(entry.Title)
	if !ok {
		return nil, fmt.Errorf("organize: %s: %w", pos, apperr.ErrNoIDLink)
	}
	node, err := s.idx.GetNode(id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("organize: node %q: %w", id, apperr.ErrUnknownNode)
	}
	if err != nil {
		return nil, err
	}
	return &located{file: file, buf: buf, entry: entry, node: node}, nil
}

// rel turns a setting path into a root-relative one.
func (s *Service) rel(setting string) (string, error) {
	p := s.roam.Resolve(setting)
	if p == "" {
		return "", fmt.Errorf("organize: empty path setting: %w", apperr.ErrInvalidConfig)
	}
	r, err := s.store.Rel(p)
	if err != nil {
		return "", fmt.Errorf("organize: %s: %w", p, apperr.ErrOutsideRoot)
	}
	return r, nil
}

// readOrEmpty reads path, treating a missing file as empty.
func (s *Service) readOrEmpty(path string) (*orgfile.Buffer, error) {
	data, err := s.store.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return orgfile.NewBuffer(nil), nil
	}
	if err != nil {
		return nil, err
	}
	return orgfile.NewBuffer(data), nil
}
