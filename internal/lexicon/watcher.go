package lexicon

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wolfman30/mentalcare-crisis-engine/pkg/logging"
)

// WatcherStats tracks reload activity.
type WatcherStats struct {
	Reloads      int
	Errors       int
	LastReloadAt time.Time
	LastError    string
}

// Watcher reloads a Registry from a directory of lexicon files whenever they change.
// A broken file never replaces the active lexicons.
type Watcher struct {
	dir      string
	registry *Registry
	logger   *logging.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}

	mu      sync.Mutex
	running bool
	stats   WatcherStats
}

// NewWatcher creates a watcher for dir. Start must be called to begin watching.
func NewWatcher(dir string, registry *Registry, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		dir:      dir,
		registry: registry,
		logger:   logger,
		debounce: 250 * time.Millisecond,
		watcher:  fw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// WithDebounce overrides the settle window used to batch rapid saves.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	if d > 0 {
		w.debounce = d
	}
	return w
}

// Start begins watching. It is non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	w.logger.Info("lexicon watcher started", "dir", w.dir)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("lexicon watcher close failed", "error", err)
	}
}

// Stats returns a copy of the reload counters.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !IsLexiconFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerCh = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.recordError(err)

		case <-timerCh:
			timerCh = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	lexicons, err := LoadDir(w.dir)
	if err == nil {
		err = w.registry.Replace(lexicons)
	}
	if err != nil {
		w.recordError(err)
		return
	}

	w.mu.Lock()
	w.stats.Reloads++
	w.stats.LastReloadAt = time.Now()
	w.mu.Unlock()

	w.logger.Info("lexicons reloaded", "dir", w.dir, "languages", w.registry.Languages())
}

func (w *Watcher) recordError(err error) {
	w.mu.Lock()
	w.stats.Errors++
	w.stats.LastError = err.Error()
	w.mu.Unlock()
	w.logger.Error("lexicon reload failed, keeping active lexicons", "dir", w.dir, "error", err)
}
