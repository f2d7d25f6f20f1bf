package rules

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Store holds the current table and allows it to be swapped at runtime
type Store struct {
	current atomic.Pointer[Table]
}

// NewStore creates a store holding t
func NewStore(t *Table) *Store {
	s := &Store{}
	s.current.Store(t)
	return s
}

// Table returns the current table
func (s *Store) Table() *Table {
	return s.current.Load()
}

// Swap replaces the current table
func (s *Store) Swap(t *Table) {
	s.current.Store(t)
}

// Watcher reloads a rule file into a Store when it changes on disk.
// An invalid file is logged and the previous table stays active.
type Watcher struct {
	path     string
	store    *Store
	logger   *slog.Logger
	onReload func(*Table, error)
	debounce time.Duration

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
	done    chan struct{}
}

// NewWatcher creates a watcher for path. onReload is called after every
// reload attempt and may be nil.
func NewWatcher(path string, store *Store, onReload func(*Table, error), logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to resolve rule file path: %w", err)
	}

	return &Watcher{
		path:     abs,
		store:    store,
		logger:   logger,
		onReload: onReload,
		debounce: 250 * time.Millisecond,
		watcher:  fw,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. Editors often replace files via rename, so the
// parent directory is watched and events are filtered by name.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch rule file directory: %w", err)
	}

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("watching rule file", "path", w.path)
	return nil
}

// Stop stops watching and waits for the event loop to exit
func (w *Watcher) Stop() {
	close(w.done)
	w.wg.Wait()
	w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("rule file watcher error", "error", err)
		case <-timerC:
			timerC = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	t, err := LoadFile(w.path)
	if err != nil {
		w.logger.Error("rule file reload failed, keeping previous table", "path", w.path, "error", err)
		if w.onReload != nil {
			w.onReload(nil, err)
		}
		return
	}

	w.store.Swap(t)
	w.logger.Info("rule file reloaded", "path", w.path, "rules", t.Len())

	if w.onReload != nil {
		w.onReload(t, nil)
	}
}
