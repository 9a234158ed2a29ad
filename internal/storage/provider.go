// Package storage defines the file-system abstraction over the roam directory.
package storage

import "github.com/starford/roamorg/internal/models"

// Provider is the interface for file operations under the roam directory.
// All paths are relative to the root.
type Provider interface {
	// List returns metadata for every org file under dir.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// Exists reports whether path exists and whether it is a directory.
	Exists(path string) (exists, isDir bool, err error)
	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error
	// RemoveAll deletes dir recursively.
	RemoveAll(dir string) error
	// Rel maps an absolute or root-relative path to a root-relative one.
	Rel(path string) (string, error)
	// Root returns the absolute root directory.
	Root() string
}

// Verify *FS satisfies Provider at compile time.
var _ Provider = (*FS)(nil)
