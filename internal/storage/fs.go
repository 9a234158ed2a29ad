package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/roamorg/internal/models"
)

// Ext is the extension of the files the knowledge base is made of.
const Ext = ".org"

// ErrEscapesRoot is returned for paths that resolve outside the roam
// directory.
var ErrEscapesRoot = errors.New("storage: path escapes roam root")

const dirPerm = 0o755

// FS implements Provider on the local disk. Every path it accepts is
// resolved against root first.
type FS struct {
	root string
}

// NewFS opens the roam directory at root, which must exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	switch info, err := os.Stat(abs); {
	case err != nil:
		return nil, fmt.Errorf("storage: stat root: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute roam directory.
func (f *FS) Root() string { return f.root }

// Abs resolves a root-relative path to an absolute one.
func (f *FS) Abs(rel string) (string, error) { return f.resolve(rel) }

// Rel maps path, absolute or relative to the root, to a clean root-relative
// path.
func (f *FS) Rel(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(path) {
		var err error
		if abs, err = f.resolve(path); err != nil {
			return "", err
		}
	}
	rel, ok := f.inside(filepath.Clean(abs))
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrEscapesRoot, path)
	}
	return rel, nil
}

// inside reports abs relative to the root, and whether it lies under it.
func (f *FS) inside(abs string) (string, bool) {
	rel, err := filepath.Rel(f.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// resolve joins rel onto the root. Absolute input and traversal out of the
// root are rejected.
func (f *FS) resolve(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs := filepath.Join(f.root, rel)
	if _, ok := f.inside(abs); !ok {
		return "", fmt.Errorf("%w: %s", ErrEscapesRoot, rel)
	}
	return abs, nil
}

// List returns metadata for every org file below dir. Hidden directories
// are not descended into.
func (f *FS) List(dir string) ([]models.NoteMetadata, error) {
	base, err := f.resolve(dir)
	if err != nil {
		return nil, err
	}
	var notes []models.NoteMetadata
	walk := func(p string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir():
			if p != base && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		case filepath.Ext(p) != Ext:
			return nil
		}
		meta, err := f.describe(p, d)
		if err != nil {
			return err
		}
		notes = append(notes, meta)
		return nil
	}
	if err := filepath.WalkDir(base, walk); err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", dir, err)
	}
	return notes, nil
}

func (f *FS) describe(abs string, d fs.DirEntry) (models.NoteMetadata, error) {
	info, err := d.Info()
	if err != nil {
		return models.NoteMetadata{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return models.NoteMetadata{}, err
	}
	rel, _ := f.inside(abs)
	return models.NoteMetadata{Path: rel, Checksum: Checksum(data), UpdatedAt: info.ModTime()}, nil
}

// Read returns the content of the file at path.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Delete removes the file at path.
func (f *FS) Delete(path string) error {
	abs, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}

// Move renames oldPath to newPath, creating the target directory and
// replacing any file already there.
func (f *FS) Move(oldPath, newPath string) error {
	from, err := f.resolve(oldPath)
	if err != nil {
		return err
	}
	to, err := f.resolve(newPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(to), dirPerm); err != nil {
		return fmt.Errorf("storage: move %s: %w", oldPath, err)
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("storage: move %s: %w", oldPath, err)
	}
	return nil
}

// Exists reports whether path exists and whether it is a directory.
func (f *FS) Exists(path string) (exists, isDir bool, err error) {
	abs, err := f.resolve(path)
	if err != nil {
		return false, false, err
	}
	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, false, nil
	case err != nil:
		return false, false, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	return true, info.IsDir(), nil
}

// MkdirAll creates dir and its parents.
func (f *FS) MkdirAll(dir string) error {
	abs, err := f.resolve(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}
	return nil
}

// RemoveAll deletes dir and everything below it. The root itself is
// refused.
func (f *FS) RemoveAll(dir string) error {
	abs, err := f.resolve(dir)
	if err != nil {
		return err
	}
	if abs == f.root {
		return errors.New("storage: refusing to remove roam root")
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("storage: remove %s: %w", dir, err)
	}
	return nil
}
