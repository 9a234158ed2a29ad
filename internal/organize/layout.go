package organize

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/roamorg/internal/apperr"
	"github.com/starford/roamorg/internal/settings"
)

// TopIndexResult points at the top index file.
type TopIndexResult struct {
	Path    string `json:"path"`
	AbsPath string `json:"abs_path"`
	Created bool   `json:"created"`
	ID      string `json:"id,omitempty"`
}

// CreateDirectories creates every configured directory that is missing and
// returns the ones it created. Directories outside the root are refused.
func (s *Service) CreateDirectories(_ context.Context) ([]string, error) {
	var created []string
	for _, dir := range s.roam.Directories() {
		if !settings.IsInside(s.store.Root(), dir) {
			return created, fmt.Errorf("organize: %s: %w", dir, apperr.ErrOutsideRoot)
		}
		rel, err := s.store.Rel(dir)
		if err != nil {
			return created, err
		}
		exists, _, err := s.store.Exists(rel)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}
		if err := s.store.MkdirAll(rel); err != nil {
			return created, err
		}
		created = append(created, dir)
		s.logger.Info("organize: directory created", slog.String("path", dir))
	}
	return created, nil
}

// TopIndex returns the top index file, creating it with a fresh node id
// when it does not exist yet.
func (s *Service) TopIndex(_ context.Context) (*TopIndexResult, error) {
	rel, err := s.rel(s.roam.TopIndexFile)
	if err != nil {
		return nil, err
	}
	res := &TopIndexResult{Path: rel, AbsPath: s.roam.Resolve(s.roam.TopIndexFile)}

	exists, isDir, err := s.store.Exists(rel)
	if err != nil {
		return nil, err
	}
	if isDir {
		return nil, fmt.Errorf("organize: top index %s is a directory: %w", rel, apperr.ErrInvalidConfig)
	}
	if exists {
		return res, nil
	}

	res.ID = uuid.NewString()
	title := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
	content := fmt.Sprintf(":PROPERTIES:\n:ID:       %s\n:END:\n#+title: %s\n", res.ID, title)
	if err := s.store.Write(rel, []byte(content)); err != nil {
		return nil, err
	}
	res.Created = true
	s.logger.Info("organize: top index created", slog.String("path", rel), slog.String("id", res.ID))
	return res, nil
}
