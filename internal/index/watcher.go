package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/notelog/internal/storage"
)

// Watch runs an fsnotify watcher over the notes root and feeds settled
// events into the synchronizer until ctx is cancelled. Raw events for the
// same path within the debounce window collapse into one settled event, so
// editors that write in bursts produce a single reindex.
//
// New directories created at runtime are added to the watch list. Rename
// events schedule a full reconciliation pass, since fsnotify only reports
// the old path of a rename.
func Watch(ctx context.Context, store storage.Provider, root string, debounce time.Duration, sync *Synchronizer, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started",
		slog.String("root", root),
		slog.Duration("debounce", debounce))

	// settled receives paths whose debounce window has elapsed. pending is
	// only touched from this loop; the AfterFunc goroutines just send.
	settled := make(chan string, 64)
	pending := make(map[string]*time.Timer)

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(debounce)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(debounce)
		}
	}

	schedule := func(path string) {
		if t, ok := pending[path]; ok {
			t.Reset(debounce)
			return
		}
		pending[path] = time.AfterFunc(debounce, func() {
			select {
			case settled <- path:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			for _, t := range pending {
				t.Stop()
			}
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case path := <-settled:
			delete(pending, path)
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				continue
			}
			op := OpChanged
			if _, statErr := os.Stat(path); statErr != nil {
				op = OpDisappeared
			}
			select {
			case sync.Events() <- Event{Op: op, Path: rel}:
			case <-ctx.Done():
			}

		case <-reconcileCh:
			if _, err := sync.Submit(ctx, func() (any, error) {
				return nil, sync.FullSync()
			}); err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			// New directories: watch them and pick up any notes inside.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
					scheduleNoteFiles(ev.Name, schedule)
					continue
				}
			}

			if !storage.IsNoteFile(filepath.Base(ev.Name)) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) != 0:
				schedule(ev.Name)

			case ev.Op&fsnotify.Rename != 0:
				// Rename fires on the old path only; the new path arrives
				// as a separate Create if it stays under the root.
				schedule(ev.Name)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// scheduleNoteFiles schedules every note file under dir for indexing.
func scheduleNoteFiles(dir string, schedule func(path string)) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !storage.IsNoteFile(d.Name()) {
			return nil
		}
		schedule(path)
		return nil
	})
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
