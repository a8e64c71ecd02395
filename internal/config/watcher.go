package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mcpfleet/gateway/pkg/logging"
)

// DefaultWatchDebounce is used when a document's configReload.debounceMs is
// unset or non-positive.
const DefaultWatchDebounce = DefaultDebounceMs * time.Millisecond

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Path is the configuration file to watch.
	Path string

	// Debounce is the quiet period after the last write before a reload is
	// attempted. Several rapid writes (e.g. an editor doing save-as-rename)
	// collapse into a single reload.
	Debounce time.Duration

	// OnReload is invoked with a freshly-loaded Snapshot whenever Path
	// changes and reparses cleanly. A parse or validation failure is
	// logged and does not call OnReload, leaving the previous Snapshot in
	// effect.
	OnReload func(*Snapshot)
}

// Watcher monitors the configuration file for changes and triggers a
// debounced reload. It uses fsnotify for notification and falls back to
// running without live reload (logging once) if the watcher cannot be
// established, rather than failing startup over an optional feature.
type Watcher struct {
	mu sync.Mutex

	config WatcherConfig

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	debounceTimer *time.Timer
	debounceMu    sync.Mutex
}

// NewWatcher creates a Watcher for config.Path. Call Start to begin
// watching.
func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultWatchDebounce
	}
	return &Watcher{config: cfg}
}

// Start begins watching the configuration file. It returns an error only
// if fsnotify itself cannot be initialized; a missing or unwatchable file
// is logged and treated as "no live reload available" rather than fatal.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(w.config.Path)
	if err := watcher.Add(dir); err != nil {
		logging.Warn("ConfigWatcher", "cannot watch %s for config changes: %v", dir, err)
		watcher.Close()
		return nil
	}

	w.fsWatcher = watcher
	w.stopCh = make(chan struct{})
	w.running = true

	eventsCh := w.fsWatcher.Events
	errorsCh := w.fsWatcher.Errors
	go w.processEvents(eventsCh, errorsCh)

	logging.Info("ConfigWatcher", "watching %s for configuration changes", w.config.Path)
	return nil
}

func (w *Watcher) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	target := filepath.Base(w.config.Path)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.triggerReloadDebounced()
		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Warn("ConfigWatcher", "fsnotify error: %v", err)
		}
	}
}

func (w *Watcher) triggerReloadDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(w.config.Debounce, func() {
		w.reload()
	})
}

func (w *Watcher) reload() {
	snapshot, err := Load(w.config.Path)
	if err != nil {
		logging.Warn("ConfigWatcher", "reload of %s failed, keeping previous configuration: %v", w.config.Path, err)
		return
	}

	w.mu.Lock()
	callback := w.config.OnReload
	w.mu.Unlock()

	if callback != nil {
		callback(snapshot)
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if w.fsWatcher != nil {
		if err := w.fsWatcher.Close(); err != nil {
			logging.Warn("ConfigWatcher", "error closing fsnotify watcher: %v", err)
		}
		w.fsWatcher = nil
	}
	return nil
}
