package library

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutorrag/internal/extract"
)

// Watcher re-ingests library files as they are created or rewritten.
type Watcher struct {
	lib      *Library
	watcher  *fsnotify.Watcher
	category map[string]string // dir -> category
	ready    chan string
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// Watch starts watching every configured folder. The folders are
// registered before Watch returns; events are handled in a background
// goroutine until ctx ends or Stop is called.
func (l *Library) Watch(ctx context.Context) (*Watcher, error) {
	if len(l.cfg.Folders) == 0 {
		return nil, ErrNoFolders
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{
		lib:      l,
		watcher:  fw,
		category: make(map[string]string, len(l.cfg.Folders)),
		ready:    make(chan string, 16),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		timers:   make(map[string]*time.Timer),
	}
	for _, f := range l.cfg.Folders {
		dir := filepath.Clean(f.Dir)
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
		w.category[dir] = f.Category
	}

	go w.run(ctx)
	return w, nil
}

// Stop ends the watch and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

// Done is closed when the event loop exits.
func (w *Watcher) Done() <-chan struct{} { return w.done }

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	defer w.watcher.Close()
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				w.schedule(ev.Name)
			}
		case path := <-w.ready:
			w.ingest(ctx, path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.lib.logger.Warn("library watcher error", zap.Error(err))
		}
	}
}

// schedule (re)starts the quiet-period timer for path. Editors write files
// in several steps, so only the last event in a burst triggers ingestion.
func (w *Watcher) schedule(path string) {
	if !extract.Supported(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Reset(w.lib.cfg.Debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.lib.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-w.stop:
		case <-w.done:
		}
	})
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	category, ok := w.category[filepath.Dir(path)]
	if !ok {
		return
	}
	res, err := w.lib.IngestFile(ctx, category, path)
	if err != nil {
		w.lib.logger.Warn("library re-ingest failed", zap.String("file", path), zap.Error(err))
		return
	}
	w.lib.logger.Info("library file re-ingested",
		zap.String("file", res.File),
		zap.String("document_id", res.DocumentID),
		zap.Int("chunks", res.Chunks),
	)
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}
