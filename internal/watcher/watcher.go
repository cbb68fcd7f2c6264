// Package watcher keeps the index in sync with a watched directory tree.
// Filesystem events are debounced per path so editors that write in bursts
// trigger a single re-index.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"olympus/internal/config"
	"olympus/internal/ingest"
	"olympus/internal/logging"
)

// Watcher tails a directory tree and feeds the ingestion pipeline.
type Watcher struct {
	pipeline *ingest.Pipeline
	cfg      config.WatcherConfig
	allowed  map[string]bool

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New builds a watcher over the given pipeline.
func New(pipeline *ingest.Pipeline, cfg config.WatcherConfig) *Watcher {
	allowed := make(map[string]bool, len(cfg.SupportedExtensions))
	for _, ext := range cfg.SupportedExtensions {
		allowed[strings.ToLower(ext)] = true
	}
	return &Watcher{
		pipeline: pipeline,
		cfg:      cfg,
		allowed:  allowed,
		pending:  make(map[string]*time.Timer),
	}
}

// Run watches root (recursively) until ctx is cancelled. New subdirectories
// are picked up as they appear.
func (w *Watcher) Run(ctx context.Context, root string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := addRecursive(fsw, root); err != nil {
		return err
	}
	logging.Watcher("watching %s (%d extensions)", root, len(w.allowed))

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, fsw, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.Watcher("watch error: %v", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := addRecursive(fsw, event.Name); err != nil {
				logging.Watcher("failed to watch new directory %s: %v", event.Name, err)
			}
			return
		}
	}

	if !w.allowed[strings.ToLower(filepath.Ext(event.Name))] {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		w.debounce(ctx, event.Name)

	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		w.cancel(event.Name)
		if err := w.pipeline.RemoveFile(ctx, event.Name); err != nil {
			logging.Watcher("failed to remove %s from index: %v", event.Name, err)
		} else {
			logging.Watcher("removed %s from index", filepath.Base(event.Name))
		}
	}
}

// debounce schedules ingestion after the configured quiet period, resetting
// the timer on every new event for the same path.
func (w *Watcher) debounce(ctx context.Context, path string) {
	delay := w.cfg.Debounce
	if delay <= 0 {
		delay = 2 * time.Second
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(delay)
		return
	}
	w.pending[path] = time.AfterFunc(delay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		result := w.pipeline.ReindexFile(ctx, path)
		logging.Watcher("ingested %s: %s", filepath.Base(path), result.Status)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
