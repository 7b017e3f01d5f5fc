// Package ingestwatch watches a directory for new or modified source
// documents and hands each one to an ingest callback, debouncing rapid
// writes the way editors and OCR scanners tend to produce them.
package ingestwatch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce is how long the watcher waits after the last write to a
// path before handing it to IngestFunc, so a multi-write save doesn't
// trigger ingestion on a half-written file.
const defaultDebounce = 500 * time.Millisecond

// IngestFunc ingests one document at path. Errors are logged, not fatal to
// the watch loop — one bad file should never stop the rest from ingesting.
type IngestFunc func(ctx context.Context, path string) error

// Config configures a Watcher.
type Config struct {
	// Dir is the directory to watch, non-recursively.
	Dir string

	// Extensions restricts ingestion to these file extensions (e.g.
	// ".pdf", ".txt"). Empty means every regular file is eligible.
	Extensions []string

	// Debounce overrides defaultDebounce.
	Debounce time.Duration

	Logger *slog.Logger
}

// Watcher watches Config.Dir and calls Ingest for each eligible file once
// its writes have settled.
type Watcher struct {
	cfg    Config
	ingest IngestFunc
	fsw    *fsnotify.Watcher
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a Watcher over cfg.Dir. It does not start watching until Run
// is called.
func New(cfg Config, ingest IngestFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(cfg.Dir); err != nil {
		fsw.Close()
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}

	return &Watcher{cfg: cfg, ingest: ingest, fsw: fsw, logger: logger, pending: make(map[string]*time.Timer)}, nil
}

// Run processes fsnotify events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("ingest watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !w.eligible(event.Name) {
		return
	}

	w.mu.Lock()
	if t, exists := w.pending[event.Name]; exists {
		t.Stop()
	}
	w.pending[event.Name] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.pending, event.Name)
		w.mu.Unlock()
		w.ingestOne(ctx, event.Name)
	})
	w.mu.Unlock()
}

func (w *Watcher) eligible(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if len(w.cfg.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, e := range w.cfg.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) ingestOne(ctx context.Context, path string) {
	if err := w.ingest(ctx, path); err != nil {
		w.logger.Error("ingest failed", "path", path, "error", err)
		return
	}
	w.logger.Info("ingested", "path", path)
}

// Stop closes the underlying fsnotify watcher, unblocking Run.
func (w *Watcher) Stop() error {
	return w.fsw.Close()
}
