package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

type WatchConfig struct {
	Roots       []string            // directories to watch (recursive)
	AllowedExts map[string]struct{} // nil means the default image set
	InitialScan bool                // if true, walk roots and emit existing files
	Debounce    time.Duration       // coalesce rapid create/write/rename bursts
	SkipHidden  bool
	Logger      *slog.Logger
}

// StartWatcher watches cfg.Roots and emits paths of new or changed image files. Paths are
// emitted once per debounce window, sorted. Both channels close when ctx is done.
func StartWatcher(ctx context.Context, cfg WatchConfig) (<-chan string, <-chan error, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		log.Error("ingest.watch.start_error", "error", "no roots provided")
		return nil, nil, errors.New("no roots provided")
	}
	if cfg.AllowedExts == nil {
		cfg.AllowedExts = extSet(nil)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error("ingest.watch.create_error", "error", err)
		return nil, nil, err
	}

	pending := map[string]struct{}{}
	wanted := func(path string) bool {
		if cfg.SkipHidden && IsHidden(path) {
			return false
		}
		return allowed(path, cfg.AllowedExts)
	}
	// addDir watches root and every directory below it. Files already present are queued
	// when collect is set.
	addDir := func(root string, collect bool) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if cfg.SkipHidden && path != root && IsHidden(path) {
					return filepath.SkipDir
				}
				return w.Add(path)
			}
			if collect && wanted(path) {
				pending[path] = struct{}{}
			}
			return nil
		})
	}
	for _, r := range cfg.Roots {
		if err := addDir(r, cfg.InitialScan); err != nil {
			log.Error("ingest.watch.add_root_error", "root", r, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}
	log.Info("ingest.watch.started", "roots", cfg.Roots, "initial", len(pending), "debounce_ms", cfg.Debounce.Milliseconds())

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func(w *fsnotify.Watcher) {
			if err := w.Close(); err != nil {
				log.Warn("ingest.watch.close_error", "error", err)
			}
		}(w)

		var (
			timer  *time.Timer
			timerC <-chan time.Time
		)
		flush := func() bool {
			for _, p := range slices.Sorted(maps.Keys(pending)) {
				// renamed-away or removed before the window closed
				if info, err := os.Stat(p); err != nil || !info.Mode().IsRegular() {
					delete(pending, p)
					continue
				}
				select {
				case evCh <- p:
					delete(pending, p)
				case <-ctx.Done():
					return false
				}
			}
			return true
		}
		schedule := func() {
			if cfg.Debounce <= 0 {
				return
			}
			if timer == nil {
				timer = time.NewTimer(cfg.Debounce)
			} else {
				timer.Reset(cfg.Debounce)
			}
			timerC = timer.C
		}

		if len(pending) > 0 && !flush() {
			return
		}

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case <-timerC:
				timerC = nil
				if !flush() {
					return
				}
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Has(fsnotify.Create) {
					if info, err := os.Stat(e.Name); err == nil && info.IsDir() {
						if err := addDir(e.Name, true); err != nil {
							log.Warn("ingest.watch.add_dir_error", "path", e.Name, "error", err)
						}
						schedule()
						if cfg.Debounce <= 0 && !flush() {
							return
						}
						continue
					}
				}
				if !e.Has(fsnotify.Create) && !e.Has(fsnotify.Write) && !e.Has(fsnotify.Rename) {
					continue
				}
				if !wanted(e.Name) {
					continue
				}
				log.Debug("ingest.watch.event", "path", e.Name, "op", e.Op.String())
				pending[e.Name] = struct{}{}
				schedule()
				if cfg.Debounce <= 0 && !flush() {
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Error("ingest.watch.error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}
