package rulesync

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher re-syncs a rule file whenever it changes on disk.
type Watcher struct {
	path     string
	syncer   Syncer
	watcher  *fsnotify.Watcher
	debounce time.Duration

	// OnSync, if set, is called after every attempt.
	OnSync func(Result, error)
}

// NewWatcher watches the directory holding path, so editors that replace the
// file on save are still picked up.
func NewWatcher(path string, syncer Syncer) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve rule file: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", abs, err)
	}

	return &Watcher{
		path:     abs,
		syncer:   syncer,
		watcher:  fw,
		debounce: defaultDebounce,
	}, nil
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var (
		mu       sync.Mutex
		debounce *time.Timer
	)
	stop := func() {
		mu.Lock()
		if debounce != nil {
			debounce.Stop()
		}
		mu.Unlock()
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.debounce, func() { w.sync(ctx) })
			mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("rule file watcher error", "error", err)
		}
	}
}

func (w *Watcher) sync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := SyncFile(ctx, w.syncer, w.path)
	if err != nil {
		slog.Error("rule reload failed", "path", w.path, "error", err)
	}
	if w.OnSync != nil {
		w.OnSync(res, err)
	}
}
