package organize

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starford/roamorg/internal/index"
	"github.com/starford/roamorg/internal/settings"
	"github.com/starford/roamorg/internal/storage"
)

type fixture struct {
	t     *testing.T
	root  string
	store *storage.FS
	db    *index.DB
	roam  settings.Roam
	svc   *Service
	log   *slog.Logger
}

// newFixture builds a knowledge base from files, indexes it and returns a
// service over it. tweak may adjust the settings before the service is built.
func newFixture(t *testing.T, files map[string]string, tweak func(*settings.Roam)) *fixture {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		abs := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}

	store, err := storage.NewFS(root)
	require.NoError(t, err)
	db, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	roam := settings.NewDefault()
	roam.Directory = root
	roam.Move = settings.Move{
		Directory:    "permanent",
		File:         "mocs/permanent.org",
		SourceTag:    "idea",
		TargetTag:    "note",
		IDNamedDirs:  true,
		IDNamedFiles: true,
	}
	if tweak != nil {
		tweak(&roam)
	}

	f := &fixture{
		t:     t,
		root:  root,
		store: store,
		db:    db,
		roam:  roam,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	f.svc = NewService(store, db, roam, f.log)
	f.sync()
	return f
}

func (f *fixture) sync() {
	f.t.Helper()
	require.NoError(f.t, index.Sync(f.db, f.store, f.log))
}

func (f *fixture) read(path string) string {
	f.t.Helper()
	data, err := os.ReadFile(filepath.Join(f.root, path))
	require.NoError(f.t, err)
	return string(data)
}

func (f *fixture) exists(path string) bool {
	_, err := os.Stat(filepath.Join(f.root, path))
	return err == nil
}

// orgNode renders a file node with an id, a title and filetags.
func orgNode(id, title, tags, body string) string {
	s := ":PROPERTIES:\n:ID: " + id + "\n:END:\n#+title: " + title + "\n"
	if tags != "" {
		s += "#+filetags: " + tags + "\n"
	}
	return s + body
}
