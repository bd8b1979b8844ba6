// Package ingest discovers input files: an fsnotify watcher over the inbox
// tree plus a periodic rescan for events the watcher missed.
package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/karelmartinek-a11y/kajovospend/constants"
)

type WatchConfig struct {
	Root        string        // inbox directory, watched recursively
	InitialScan bool          // emit files already present at start
	Debounce    time.Duration // coalesce rapid create/write/rename bursts
}

// StartWatcher emits candidate file paths on the returned channel until the
// context is cancelled. Paths are not deduplicated here; enqueueing is
// idempotent downstream.
func StartWatcher(ctx context.Context, cfg WatchConfig) (<-chan string, <-chan error, error) {
	if cfg.Root == "" {
		slog.Error("watcher start failed: no inbox root")
		return nil, nil, errors.New("no inbox root provided")
	}
	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("failed to create fsnotify watcher", "error", err)
		return nil, nil, err
	}

	addTree := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if IsHidden(path) && path != root {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan && constants.IsAllowedPath(path) {
				select {
				case evCh <- path:
				default:
				}
			}
			return nil
		})
	}
	if err := addTree(cfg.Root); err != nil {
		slog.Error("failed to watch inbox", "root", cfg.Root, "error", err)
		_ = w.Close()
		return nil, nil, err
	}

	go watchLoop(ctx, w, cfg.Debounce, evCh, errCh)

	return evCh, errCh, nil
}

// watchLoop owns the pending set; the debounce timer only ticks a channel,
// so there is a single goroutine touching state.
func watchLoop(ctx context.Context, w *fsnotify.Watcher, debounce time.Duration,
	evCh chan<- string, errCh chan<- error) {
	defer close(evCh)
	defer close(errCh)
	defer w.Close()

	pending := map[string]struct{}{}
	var timer *time.Timer
	var tick <-chan time.Time

	flush := func() {
		for p := range pending {
			select {
			case evCh <- p:
			default:
			}
		}
		clear(pending)
		tick = nil
	}

	for {
		select {
		case <-ctx.Done():
			return

		case e, ok := <-w.Events:
			if !ok {
				return
			}
			if e.Op.Has(fsnotify.Create) {
				// a created directory needs its own watch
				_ = w.Add(e.Name)
			}
			if !constants.IsAllowedPath(e.Name) || IsHidden(e.Name) {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			pending[e.Name] = struct{}{}
			if debounce <= 0 {
				flush()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
			tick = timer.C

		case <-tick:
			flush()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			slog.Error("watcher error", "error", err)
			select {
			case errCh <- err:
			default:
			}
		}
	}
}

// Scan walks the inbox once and splits files into supported candidates and
// unsupported leftovers.
func Scan(root string) (supported, unsupported []string, err error) {
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if IsHidden(path) && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if constants.IsAllowedPath(path) {
			supported = append(supported, path)
		} else {
			unsupported = append(unsupported, path)
		}
		return nil
	})
	return supported, unsupported, err
}
