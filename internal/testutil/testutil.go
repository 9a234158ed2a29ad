// Package testutil provides shared test helpers for setting up knowledge
// bases, indexes and command runners.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/roamorg/internal/commands"
	"github.com/starford/roamorg/internal/index"
	"github.com/starford/roamorg/internal/mode"
	"github.com/starford/roamorg/internal/organize"
	"github.com/starford/roamorg/internal/settings"
	"github.com/starford/roamorg/internal/storage"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "roamorg-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRoot creates a temporary roam directory holding files and returns it
// with a storage.Provider over it.
func TestRoot(t *testing.T, files map[string]string) (string, storage.Provider) {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		abs := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

// OrgNode renders a file node with an id, a title and filetags.
func OrgNode(id, title, tags, body string) string {
	s := ":PROPERTIES:\n:ID: " + id + "\n:END:\n#+title: " + title + "\n"
	if tags != "" {
		s += "#+filetags: " + tags + "\n"
	}
	return s + body
}

// Env is a fully wired knowledge base for surface tests.
type Env struct {
	Root   string
	Store  storage.Provider
	DB     *index.DB
	Roam   settings.Roam
	Mode   *mode.Controller
	Runner *commands.Runner
}

// NewEnv builds a knowledge base from files, indexes it, and wires a Runner
// whose mode controller accepts any settings and working directory.
func NewEnv(t *testing.T, files map[string]string, tweak func(*settings.Roam)) *Env {
	t.Helper()
	root, store := TestRoot(t, files)
	db := TestDB(t)
	logger := Logger()

	roam := settings.NewDefault()
	roam.Directory = root
	roam.Move.SourceTag = "idea"
	roam.Move.TargetTag = "note"
	if tweak != nil {
		tweak(&roam)
	}

	ctrl := mode.New(roam, t.TempDir(),
		mode.WithLogger(logger),
		mode.WithValidator(func() (settings.Report, error) { return settings.Report{OK: true}, nil }),
		mode.WithGetwd(func() (string, error) { return root, nil }),
	)
	resync := func() error { return index.Sync(db, store, logger) }
	if err := resync(); err != nil {
		t.Fatal(err)
	}

	svc := organize.NewService(store, db, roam, logger)
	runner := commands.NewRunner(svc, ctrl, db, roam,
		commands.WithResync(resync),
		commands.WithLogger(logger),
	)
	return &Env{Root: root, Store: store, DB: db, Roam: roam, Mode: ctrl, Runner: runner}
}

// Read returns the content of a root-relative file.
func (e *Env) Read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.Root, path))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
