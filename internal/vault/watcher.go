package vault

import (
	"context"
	"database/sql"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SyncCallback is called after a watcher-driven sync completes.
type SyncCallback func(stats SyncStats)

// Watch starts an fsnotify watcher on the vault root and re-syncs the graph
// after Markdown changes settle for debounce. It runs until ctx is cancelled.
// New directories created at runtime are added to the watch list.
func Watch(ctx context.Context, db *sql.DB, syncer *Syncer, debounce time.Duration, logger *slog.Logger, cb SyncCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := syncer.store.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	logger.Info("watcher: started", slog.String("root", root))

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
			return
		}
		timer.Reset(debounce)
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
			syncer.Invalidate()
			stats, err := syncer.Sync(ctx, db)
			if err != nil {
				logger.Warn("watcher: sync failed", slog.String("error", err.Error()))
				continue
			}
			if !stats.Unchanged && cb != nil {
				cb(stats)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					schedule()
					continue
				}
			}
			if !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
