// Package watch turns file system changes under the posts folder into sync
// batches.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/halosync/internal/storage"
)

// DefaultDebounce is the quiet period used when Watch gets a zero debounce.
const DefaultDebounce = 500 * time.Millisecond

// BatchFunc receives the root-relative slash paths whose content changed
// since the last batch, sorted, and returns the paths that failed to sync.
// A non-nil error means the batch as a whole did not run. It is called on
// the watcher goroutine, so two batches never overlap.
type BatchFunc func(ctx context.Context, paths []string) (failed []string, err error)

// Watch watches store's root recursively and calls fn once changes have
// been quiet for debounce. A file is handed to fn again only when its
// checksum differs from the last one that synced without failing, so a
// failed file is retried on its next write. Removals are dropped. It
// returns when ctx is cancelled.
//
// With syncExisting, every file under the root goes to fn as the first
// batch, started only after the watch is registered, so writes made while
// it runs are seen afterwards. An error from that batch is returned; later
// batch errors are logged.
//
// New directories created at runtime are added to the watch list and the
// files already inside them are queued.
func Watch(ctx context.Context, store storage.Provider, debounce time.Duration, syncExisting bool, logger *slog.Logger, fn BatchFunc) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	root := store.Root()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return fmt.Errorf("watch: add dirs: %w", err)
	}

	metas, err := store.List("")
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	logger.Info("watcher: started", slog.String("root", root), slog.Duration("debounce", debounce))

	known := make(map[string]string, len(metas))
	run := func(pending map[string]struct{}) error {
		paths, sums := changed(store, pending, known, logger)
		if len(paths) == 0 {
			return nil
		}
		logger.Debug("watcher: flushing batch", slog.Int("documents", len(paths)))
		failed, err := fn(ctx, paths)
		if err != nil {
			return err
		}
		for _, p := range failed {
			delete(sums, p)
		}
		for p, sum := range sums {
			known[p] = sum
		}
		return nil
	}

	initial := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		initial[m.Path] = struct{}{}
	}
	if syncExisting {
		if err := run(initial); err != nil && ctx.Err() == nil {
			return fmt.Errorf("watch: initial batch: %w", err)
		}
	} else {
		_, sums := changed(store, initial, known, logger)
		for p, sum := range sums {
			known[p] = sum
		}
	}

	pending := make(map[string]struct{})
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}
	queue := func(abs string) {
		rel, relErr := filepath.Rel(root, abs)
		if relErr != nil {
			return
		}
		pending[filepath.ToSlash(rel)] = struct{}{}
		schedule()
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			batch := pending
			pending = make(map[string]struct{})
			if err := run(batch); err != nil && ctx.Err() == nil {
				logger.Error("watcher: batch failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				// Removals and renames of the old path are not mirrored remotely.
				continue
			}

			info, statErr := os.Stat(ev.Name)
			if statErr != nil {
				continue
			}
			if info.IsDir() {
				if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
					logger.Warn("watcher: add new dir failed",
						slog.String("path", ev.Name),
						slog.String("error", addErr.Error()))
					continue
				}
				logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
				_ = filepath.WalkDir(ev.Name, func(path string, d fs.DirEntry, err error) error {
					if err == nil && d.Type().IsRegular() {
						queue(path)
					}
					return nil
				})
				continue
			}
			if info.Mode().IsRegular() {
				queue(ev.Name)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// changed returns the pending paths whose checksum differs from known,
// sorted, together with their new checksums. A file that exists but cannot
// be read is still returned, without a checksum, so the batch reports it.
func changed(store storage.Provider, pending map[string]struct{}, known map[string]string, logger *slog.Logger) ([]string, map[string]string) {
	out := make([]string, 0, len(pending))
	sums := make(map[string]string, len(pending))
	for p := range pending {
		doc, err := store.Load(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			logger.Debug("watcher: load failed", slog.String("path", p), slog.String("error", err.Error()))
			out = append(out, p)
			continue
		}
		if known[p] == doc.Checksum {
			continue
		}
		sums[p] = doc.Checksum
		out = append(out, p)
	}
	sort.Strings(out)
	return out, sums
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
