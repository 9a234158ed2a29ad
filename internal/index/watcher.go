package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/roamorg/internal/storage"
)

// settleDelay is how long the watcher waits for a burst of file events to
// end before touching the index. Relocate alone writes, renames and creates
// directories in quick succession.
const settleDelay = 150 * time.Millisecond

// EventCallback is called after a watcher-driven index change.
// kind is one of ChangeCreated, ChangeUpdated or ChangeDeleted.
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on the roam directory and keeps the index
// in line with the files until ctx is cancelled. Events are collected per
// path and applied once the directory has been quiet for settleDelay; a
// path whose content matches the index produces no change, so rewrites the
// index already saw through Sync stay silent. cb (if non-nil) is called for
// every applied change.
func Watch(ctx context.Context, db NoteIndex, store storage.Provider, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	b := &batch{pending: map[string]bool{}}

	for {
		select {
		case <-ctx.Done():
			b.stop()
			logger.Info("watcher: stopped")
			return nil

		case <-b.fire:
			b.fire = nil
			for _, ch := range b.flush(db, store, logger) {
				if cb != nil {
					cb(ch.Kind, ch.Path)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			handleEvent(w, ev, root, b, logger)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func handleEvent(w *fsnotify.Watcher, ev fsnotify.Event, root string, b *batch, logger *slog.Logger) {
	name := ev.Name
	hidden := strings.HasPrefix(filepath.Base(name), ".")

	if ev.Has(fsnotify.Create) && !hidden {
		if info, err := os.Stat(name); err == nil && info.IsDir() {
			if err := addDirsRecursive(w, name); err != nil {
				logger.Warn("watcher: add new dir failed", slog.String("path", name), slog.String("error", err.Error()))
				return
			}
			logger.Debug("watcher: watching new dir", slog.String("path", name))
			walkOrgFiles(root, name, b.touch)
			return
		}
	}

	if !strings.HasSuffix(name, storage.Ext) {
		// A directory renamed or removed takes its files with it without
		// per-file events.
		if !hidden && ev.Has(fsnotify.Rename|fsnotify.Remove) {
			b.full = true
			b.schedule()
		}
		return
	}
	if rel, err := filepath.Rel(root, name); err == nil {
		b.touch(rel)
	}
}

// batch collects the paths touched since the last flush.
type batch struct {
	pending map[string]bool
	full    bool
	timer   *time.Timer
	fire    <-chan time.Time
}

func (b *batch) touch(rel string) {
	b.pending[rel] = true
	b.schedule()
}

func (b *batch) schedule() {
	if b.timer == nil {
		b.timer = time.NewTimer(settleDelay)
	} else {
		b.timer.Reset(settleDelay)
	}
	b.fire = b.timer.C
}

func (b *batch) stop() {
	if b.timer != nil {
		b.timer.Stop()
	}
}

// flush applies the collected paths to the index, in path order.
func (b *batch) flush(db NoteIndex, store storage.Provider, logger *slog.Logger) []Change {
	defer func() {
		b.pending = map[string]bool{}
		b.full = false
	}()

	if b.full {
		changes, err := syncAll(db, store, logger)
		if err != nil {
			logger.Warn("watcher: full sync failed", slog.String("error", err.Error()))
		}
		return changes
	}

	paths := make([]string, 0, len(b.pending))
	for p := range b.pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var changes []Change
	for _, p := range paths {
		ch, changed, err := syncFile(db, store, p)
		if err != nil {
			logger.Warn("watcher: sync failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		if changed {
			logger.Debug("watcher: "+ch.Kind, slog.String("path", p))
			changes = append(changes, ch)
		}
	}
	return changes
}

// walkOrgFiles calls fn with the root-relative path of every org file under
// dir.
func walkOrgFiles(root, dir string, fn func(rel string)) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, storage.Ext) {
			return nil
		}
		if rel, relErr := filepath.Rel(root, path); relErr == nil {
			fn(rel)
		}
		return nil
	})
}

// addDirsRecursive adds dir and all its non-hidden subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
