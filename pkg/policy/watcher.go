package policy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig configures a policy pack watcher.
type WatcherConfig struct {
	// Path is the policy pack file.
	Path string

	// DebounceInterval is the quiet period before a reload.
	// Default: 100ms
	DebounceInterval time.Duration
}

// DefaultWatcherConfig returns the default watcher configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{DebounceInterval: 100 * time.Millisecond}
}

// Watcher reloads a policy pack into a Store whenever the file changes.
// Invalid packs are rejected and the last good catalog stays active.
type Watcher struct {
	config   WatcherConfig
	store    *Store
	base     *Catalog
	watcher  *fsnotify.Watcher
	debounce *Debouncer
	logger   *slog.Logger

	// OnReload is called after every reload attempt with its result. Set
	// before Watch.
	OnReload func(err error)

	mu      sync.Mutex
	running bool
	reloads int
	errors  int
}

// NewWatcher creates a watcher. base is the catalog the pack is applied to;
// nil means the built-in catalog.
func NewWatcher(config WatcherConfig, store *Store, base *Catalog) (*Watcher, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("policy pack path is required")
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultWatcherConfig().DebounceInterval
	}
	if base == nil {
		base = BuiltinCatalog()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		config:   config,
		store:    store,
		base:     base,
		watcher:  fw,
		debounce: NewDebouncer(config.DebounceInterval),
		logger:   slog.Default().With("component", "policy.watcher", "path", config.Path),
	}, nil
}

// Reload loads the pack and installs it into the store.
func (w *Watcher) Reload() error {
	catalog, err := LoadCatalog(w.config.Path, w.base, w.store.Bounds())
	if err == nil {
		err = w.store.ReplaceCatalog(catalog)
	}

	w.mu.Lock()
	if err != nil {
		w.errors++
	} else {
		w.reloads++
	}
	w.mu.Unlock()

	if w.OnReload != nil {
		w.OnReload(err)
	}
	return err
}

// Stats returns the number of successful and failed reloads.
func (w *Watcher) Stats() (reloads, failures int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads, w.errors
}

// Close releases the file watch. Watch closes it on return, so Close is
// only needed for a watcher that is reloaded by hand.
func (w *Watcher) Close() error {
	w.debounce.Stop()
	return w.watcher.Close()
}

// Watch blocks until ctx is cancelled, reloading the pack on change. The
// parent directory is watched so that editors replacing the file by rename
// are picked up.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.debounce.Stop()
		_ = w.watcher.Close()
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	target, err := filepath.Abs(w.config.Path)
	if err != nil {
		return fmt.Errorf("failed to resolve %q: %w", w.config.Path, err)
	}
	if err := w.watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", filepath.Dir(target), err)
	}

	w.logger.Info("Policy pack watcher started",
		"debounce_ms", w.config.DebounceInterval.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Policy pack watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			if name, err := filepath.Abs(event.Name); err != nil || name != target {
				continue
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.logger.Warn("Policy pack removed, keeping current catalog")
				continue
			}
			w.debounce.Trigger(func() {
				if err := w.Reload(); err != nil {
					w.logger.Error("Policy pack reload failed", "error", err)
					return
				}
				w.logger.Info("Policy pack reloaded", "op", event.Op.String())
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("Policy pack watcher error", "error", err)
		}
	}
}

// LoadCatalog reads a pack file and applies it to base.
func LoadCatalog(path string, base *Catalog, bounds ThresholdBounds) (*Catalog, error) {
	pack, err := LoadPack(path)
	if err != nil {
		return nil, err
	}
	if base == nil {
		base = BuiltinCatalog()
	}
	catalog, err := pack.Apply(base, bounds)
	if err != nil {
		return nil, &PackError{FilePath: path, Message: "invalid policy pack", Cause: err}
	}
	return catalog, nil
}

// Debouncer collapses bursts of events into one callback after a quiet
// period.
type Debouncer struct {
	interval time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
}

// NewDebouncer creates a new debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback, replacing any pending one.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cb := d.callback
		stopped := d.stopped
		d.callback = nil
		d.mu.Unlock()

		if cb != nil && !stopped {
			cb()
		}
	})
}

// Stop cancels any pending callback. Further triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
