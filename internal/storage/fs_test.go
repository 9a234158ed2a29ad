package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
)

func newRoot(t *testing.T, files map[string]string) *FS {
	t.Helper()
	s, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for p, content := range files {
		if err := s.Write(p, []byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func listPaths(t *testing.T, s *FS) []string {
	t.Helper()
	metas, err := s.List("")
	if err != nil {
		t.Fatal(err)
	}
	var paths []string
	for _, m := range metas {
		paths = append(paths, filepath.ToSlash(m.Path))
	}
	sort.Strings(paths)
	return paths
}

func readString(t *testing.T, s *FS, p string) string {
	t.Helper()
	got, err := s.Read(p)
	if err != nil {
		t.Fatalf("read %s: %v", p, err)
	}
	return string(got)
}

func TestNewFS(t *testing.T) {
	if _, err := NewFS(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing root")
	}

	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFS(file); err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestWriteRead(t *testing.T) {
	s := newRoot(t, nil)

	for _, p := range []string{"note.org", "fleeting/deep/n.org"} {
		want := "#+title: " + p + "\n"
		if err := s.Write(p, []byte(want)); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
		if got := readString(t, s, p); got != want {
			t.Errorf("read %s = %q, want %q", p, got, want)
		}
	}

	if _, err := s.Read("absent.org"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file error = %v, want ErrNotExist", err)
	}
}

func TestWriteReplacesWithoutTempLeftovers(t *testing.T) {
	s := newRoot(t, map[string]string{"inbox.org": "old"})

	if err := s.Write("inbox.org", []byte("new")); err != nil {
		t.Fatal(err)
	}
	if got := readString(t, s, "inbox.org"); got != "new" {
		t.Errorf("content = %q, want new", got)
	}
	if leftovers, _ := filepath.Glob(filepath.Join(s.Root(), tempPattern)); len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestWritePermissions(t *testing.T) {
	s := newRoot(t, nil)

	if err := s.Write("new.org", []byte("x")); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Join(s.Root(), "new.org"))
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != filePerm {
		t.Errorf("new file mode = %o, want %o", got, filePerm)
	}

	shared := filepath.Join(s.Root(), "shared.org")
	if err := os.WriteFile(shared, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(shared, 0o664); err != nil {
		t.Fatal(err)
	}
	if err := s.Write("shared.org", []byte("new")); err != nil {
		t.Fatal(err)
	}
	info, err = os.Stat(shared)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != 0o664 {
		t.Errorf("rewritten file mode = %o, want 664", got)
	}
}

func TestDeleteAndMove(t *testing.T) {
	s := newRoot(t, map[string]string{
		"gone.org":  "x",
		"a.org":     "from a",
		"taken.org": "old",
	})

	if err := s.Delete("gone.org"); err != nil {
		t.Fatal(err)
	}
	if err := s.Move("a.org", "permanent/a/a.org"); err != nil {
		t.Fatal(err)
	}
	if err := s.Move("permanent/a/a.org", "taken.org"); err != nil {
		t.Fatal(err)
	}

	if got := readString(t, s, "taken.org"); got != "from a" {
		t.Errorf("taken.org = %q, want moved content", got)
	}
	if got := listPaths(t, s); !reflect.DeepEqual(got, []string{"taken.org"}) {
		t.Errorf("files = %v, want [taken.org]", got)
	}
}

func TestListOnlyVisibleOrgFiles(t *testing.T) {
	s := newRoot(t, map[string]string{
		"a.org":             "a",
		"sub/b.org":         "b",
		"readme.md":         "not org",
		".state/hidden.org": "hidden",
	})
	if got := listPaths(t, s); !reflect.DeepEqual(got, []string{"a.org", "sub/b.org"}) {
		t.Errorf("files = %v", got)
	}

	metas, err := s.List("sub")
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 1 {
		t.Fatalf("sub has %d files, want 1", len(metas))
	}
	if metas[0].Checksum != Checksum([]byte("b")) {
		t.Errorf("checksum = %s", metas[0].Checksum)
	}
}

func TestDirectories(t *testing.T) {
	s := newRoot(t, nil)

	exists, _, err := s.Exists("permanent/abc")
	if err != nil || exists {
		t.Fatalf("Exists before mkdir = %v, %v", exists, err)
	}

	if err := s.MkdirAll("permanent/abc"); err != nil {
		t.Fatal(err)
	}
	if err := s.MkdirAll("permanent/abc"); err != nil {
		t.Errorf("existing directory: %v", err)
	}
	exists, isDir, err := s.Exists("permanent/abc")
	if err != nil || !exists || !isDir {
		t.Fatalf("Exists after mkdir = %v, %v, %v", exists, isDir, err)
	}

	if err := s.Write("permanent/abc/abc.org", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveAll("permanent/abc"); err != nil {
		t.Fatal(err)
	}
	if exists, _, _ = s.Exists("permanent/abc"); exists {
		t.Error("directory still exists after RemoveAll")
	}

	if err := s.RemoveAll(""); err == nil {
		t.Error("root must not be removable")
	}
}

func TestPathsStayUnderRoot(t *testing.T) {
	s := newRoot(t, nil)

	for _, p := range []string{"../../etc/passwd", "../outside.org", "a/../../x.org"} {
		if _, err := s.Read(p); !errors.Is(err, ErrEscapesRoot) {
			t.Errorf("Read(%q) error = %v, want ErrEscapesRoot", p, err)
		}
		if err := s.Write(p, []byte("x")); !errors.Is(err, ErrEscapesRoot) {
			t.Errorf("Write(%q) error = %v, want ErrEscapesRoot", p, err)
		}
	}
	if err := s.Write("/etc/shadow", []byte("x")); err == nil {
		t.Error("absolute path accepted")
	}
}

func TestRel(t *testing.T) {
	s := newRoot(t, nil)
	want := filepath.Join("sub", "n.org")

	for _, in := range []string{filepath.Join(s.Root(), "sub", "n.org"), "sub/./n.org"} {
		rel, err := s.Rel(in)
		if err != nil {
			t.Fatalf("Rel(%q): %v", in, err)
		}
		if rel != want {
			t.Errorf("Rel(%q) = %q, want %q", in, rel, want)
		}
	}

	for _, in := range []string{"/somewhere/else.org", "../x.org"} {
		if _, err := s.Rel(in); !errors.Is(err, ErrEscapesRoot) {
			t.Errorf("Rel(%q) error = %v, want ErrEscapesRoot", in, err)
		}
	}
}

func TestChecksumDiffers(t *testing.T) {
	if Checksum([]byte("a")) != Checksum([]byte("a")) {
		t.Error("checksum is not stable")
	}
	if Checksum([]byte("a")) == Checksum([]byte("b")) {
		t.Error("different content, same checksum")
	}
	if n := len(Checksum(nil)); n != 64 {
		t.Errorf("checksum length = %d, want 64", n)
	}
}
