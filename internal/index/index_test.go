package index

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/starford/roamorg/internal/apperr"
	"github.com/starford/roamorg/internal/orgfile"
	"github.com/starford/roamorg/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "roamorg-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// upsert parses content and indexes it under file.
func upsert(t *testing.T, db *DB, file, content string) {
	t.Helper()
	res, err := orgfile.Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse %s: %v", file, err)
	}
	if err := db.UpsertFile(FileRow{File: file, Title: res.Title, Checksum: file, UpdatedAt: time.Now()}, res); err != nil {
		t.Fatalf("UpsertFile %s: %v", file, err)
	}
}

func fileNode(id, tags, body string) string {
	return ":PROPERTIES:\n:ID: " + id + "\n:END:\n#+title: " + id + "\n#+filetags: " + tags + "\n" + body
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"files", "nodes", "tags", "links", "refs"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
	var version int
	if err := db.conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil || version != schemaVersion {
		t.Errorf("user_version = %d, %v", version, err)
	}
}

func TestOpen_RebuildsOtherSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	upsert(t, db, "a.org", fileNode("a", ":idea:", ""))
	if _, err := db.conn.Exec(`PRAGMA user_version = 99`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	if sums, _ := db.AllChecksums(); len(sums) != 0 {
		t.Errorf("stale rows survived: %v", sums)
	}

	// Same version keeps the data.
	upsert(t, db, "b.org", fileNode("b", "", ""))
	db.Close()
	db, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if cs, _ := db.GetChecksum("b.org"); cs == "" {
		t.Error("rows lost on reopen with the same version")
	}
}

func TestCountLevel0ByTag(t *testing.T) {
	db := testDB(t)
	upsert(t, db, "a.org", fileNode("a", ":idea:", ""))
	upsert(t, db, "b.org", fileNode("b", ":idea:draft:", ""))
	upsert(t, db, "c.org", fileNode("c", ":idea:", ""))
	// A headline node tagged idea is not level 0 and must not count.
	upsert(t, db, "d.org", "#+title: d\n* H :idea:\n:PROPERTIES:\n:ID: h\n:END:\n")

	got, err := db.CountLevel0ByTag([]string{"idea", "note"})
	if err != nil {
		t.Fatalf("CountLevel0ByTag: %v", err)
	}
	want := map[string]int{"idea": 3, "note": 0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("counts = %v, want %v", got, want)
	}
}

func TestQueries_EmptyInput(t *testing.T) {
	db := testDB(t)

	counts, err := db.CountLevel0ByTag(nil)
	if err != nil || len(counts) != 0 {
		t.Errorf("CountLevel0ByTag(nil) = %v, %v", counts, err)
	}
	ids, err := db.Level0IDsByTag(nil)
	if err != nil || len(ids) != 0 {
		t.Errorf("Level0IDsByTag(nil) = %v, %v", ids, err)
	}
	ids, err = db.Level0IDsByCitekey([]string{})
	if err != nil || len(ids) != 0 {
		t.Errorf("Level0IDsByCitekey(empty) = %v, %v", ids, err)
	}
	ids, err = db.ExistingLinkTargets(nil, "id")
	if err != nil || len(ids) != 0 {
		t.Errorf("ExistingLinkTargets(nil) = %v, %v", ids, err)
	}
}

func TestLevel0IDsByTag(t *testing.T) {
	db := testDB(t)
	upsert(t, db, "x.org", fileNode("x", ":t:", ""))
	upsert(t, db, "y.org", fileNode("y", ":t:", ""))

	got, err := db.Level0IDsByTag([]string{"t", "none"})
	if err != nil {
		t.Fatalf("Level0IDsByTag: %v", err)
	}
	want := map[string][]string{"t": {"x", "y"}, "none": {}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ids = %v, want %v", got, want)
	}
}

func TestExistingLinkTargets_Level0Only(t *testing.T) {
	db := testDB(t)
	upsert(t, db, "x.org", fileNode("x", ":t:", ""))
	upsert(t, db, "y.org", fileNode("y", ":t:", "* Inner\n:PROPERTIES:\n:ID: inner\n:END:\n"))
	upsert(t, db, "moc.org", fileNode("A", ":moc:", "* [[id:x][x]]\n* [[id:y][y]]\n* [[id:inner][inner]]\n* [[id:ghost][ghost]]\n"))

	got, err := db.ExistingLinkTargets([]string{"A"}, "id")
	if err != nil {
		t.Fatalf("ExistingLinkTargets: %v", err)
	}
	want := map[string][]string{"A": {"x", "y"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("links = %v, want %v", got, want)
	}
}

func TestCitekeysAndRefAnchors(t *testing.T) {
	db := testDB(t)
	upsert(t, db, "lit.org", ":PROPERTIES:\n:ID: lit\n:ROAM_REFS: @smith2020\n:END:\n#+title: Smith 2020\n")
	upsert(t, db, "p.org", fileNode("p", ":note:", "As argued in [cite:@smith2020].\n"))
	upsert(t, db, "q.org", fileNode("q", ":note:", "See [[cite:smith2020]].\n"))

	anchors, err := db.RefAnchors()
	if err != nil {
		t.Fatalf("RefAnchors: %v", err)
	}
	if len(anchors) != 1 || anchors[0].NodeID != "lit" || anchors[0].Ref != "smith2020" {
		t.Fatalf("anchors = %+v", anchors)
	}

	got, err := db.Level0IDsByCitekey([]string{"smith2020"})
	if err != nil {
		t.Fatalf("Level0IDsByCitekey: %v", err)
	}
	want := map[string][]string{"smith2020": {"p", "q"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("citing = %v, want %v", got, want)
	}
}

func TestGetNode(t *testing.T) {
	db := testDB(t)
	upsert(t, db, "sub/n.org", fileNode("n", ":idea:draft:", ""))

	n, err := db.GetNode("n")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if n.File != "sub/n.org" || n.Level != 0 || n.Title != "n" {
		t.Errorf("node = %+v", n)
	}
	if !reflect.DeepEqual(n.Tags, []string{"idea", "draft"}) {
		t.Errorf("tags = %v", n.Tags)
	}

	_, err = db.GetNode("missing")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpsertReplacesDerivedRows(t *testing.T) {
	db := testDB(t)
	upsert(t, db, "m.org", fileNode("m", ":a:", "[[id:x][x]]\n"))
	upsert(t, db, "x.org", fileNode("x", ":a:", ""))
	upsert(t, db, "m.org", fileNode("m", ":b:", ""))

	n, _ := db.GetNode("m")
	if !reflect.DeepEqual(n.Tags, []string{"b"}) {
		t.Errorf("tags after re-upsert = %v", n.Tags)
	}
	links, _ := db.ExistingLinkTargets([]string{"m"}, "id")
	if len(links["m"]) != 0 {
		t.Errorf("old link should be removed on upsert, got %v", links["m"])
	}
}

func TestDeleteFile(t *testing.T) {
	db := testDB(t)
	upsert(t, db, "del.org", fileNode("del", ":a:", ""))
	if err := db.DeleteFile("del.org"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if cs, _ := db.GetChecksum("del.org"); cs != "" {
		t.Errorf("deleted file still has checksum %q", cs)
	}
	if _, err := db.GetNode("del"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("node should be gone, err = %v", err)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	upsert(t, db, "s.org", ":PROPERTIES:\n:ID: s\n:END:\n#+title: Search Me\n")

	results, err := db.Search("Search", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "s" || results[0].File != "s.org" {
		t.Errorf("search results = %+v, want 1 hit for s", results)
	}
	if blank, err := db.Search("   ", 10); err != nil || len(blank) != 0 {
		t.Errorf("blank query = %+v, %v", blank, err)
	}
}

func TestSync_IndexesAndRemovesStale(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	_ = os.WriteFile(filepath.Join(dir, "one.org"), []byte(fileNode("one", ":idea:", "")), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "two.org"), []byte(fileNode("two", ":idea:", "")), 0o644)

	if err := Sync(db, store, logger); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	counts, _ := db.CountLevel0ByTag([]string{"idea"})
	if counts["idea"] != 2 {
		t.Fatalf("idea count = %d, want 2", counts["idea"])
	}

	_ = os.Remove(filepath.Join(dir, "two.org"))
	if err := Sync(db, store, logger); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	counts, _ = db.CountLevel0ByTag([]string{"idea"})
	if counts["idea"] != 1 {
		t.Errorf("idea count after removal = %d, want 1", counts["idea"])
	}
}

func TestSync_MovedAndEditedFileDropsStaleRows(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("x.org", fileNode("x", ":idea:", ""))
	write("moc.org", ":PROPERTIES:\n:ID: A\n:ROAM_REFS: @smith2020\n:END:\n#+title: MOC\n* [[id:x][X]]\n")
	if err := Sync(db, store, logger); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if links, _ := db.ExistingLinkTargets([]string{"A"}, "id"); len(links["A"]) != 1 {
		t.Fatalf("precondition: link A->x missing, got %v", links)
	}

	// Same node, new path, link and ref dropped.
	if err := os.Remove(filepath.Join(dir, "moc.org")); err != nil {
		t.Fatal(err)
	}
	write("moc2.org", ":PROPERTIES:\n:ID: A\n:END:\n#+title: MOC\n")
	if err := Sync(db, store, logger); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	links, err := db.ExistingLinkTargets([]string{"A"}, "id")
	if err != nil {
		t.Fatal(err)
	}
	if len(links["A"]) != 0 {
		t.Errorf("stale link survived the move: %v", links["A"])
	}
	anchors, _ := db.RefAnchors()
	if len(anchors) != 0 {
		t.Errorf("stale ref survived the move: %+v", anchors)
	}
	n, err := db.GetNode("A")
	if err != nil || n.File != "moc2.org" {
		t.Errorf("node A = %+v, %v", n, err)
	}
}
