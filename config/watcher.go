package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("mycelia.config")

// ChangeCallback is called when the configuration file changes and
// reloads cleanly.
type ChangeCallback func(old, new *Config)

// Watcher watches a configuration file and hot-reloads it on change.
// Only callbacks decide which fields are safe to apply at runtime;
// arena and queue sizes are fixed at boot and a changed value there is
// simply reported on the next restart.
type Watcher struct {
	path string

	mu     sync.RWMutex
	config *Config

	callbacks   []ChangeCallback
	callbacksMu sync.RWMutex

	fsWatcher *fsnotify.Watcher
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewWatcher loads the initial configuration and prepares a watcher
// for it.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("initial config: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	return &Watcher{
		path:      path,
		config:    cfg,
		fsWatcher: fsWatcher,
		stop:      make(chan struct{}),
	}, nil
}

// Config returns the current configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// OnChange registers a callback invoked after each clean reload.
func (w *Watcher) OnChange(cb ChangeCallback) {
	w.callbacksMu.Lock()
	defer w.callbacksMu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start begins watching. Editors replace files rather than writing in
// place, so the parent directory is watched and events filtered by
// name.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop halts the watcher and waits for its goroutine.
func (w *Watcher) Stop() {
	close(w.stop)
	w.fsWatcher.Close()
	w.wg.Wait()
}

// loop drains file events, debouncing bursts before a reload.
func (w *Watcher) loop() {
	defer w.wg.Done()

	var debounce *time.Timer
	var debounceC <-chan time.Time

	for {
		select {
		case <-w.stop:
			return

		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(100 * time.Millisecond)
				debounceC = debounce.C
			} else {
				debounce.Reset(100 * time.Millisecond)
			}

		case <-debounceC:
			debounce = nil
			debounceC = nil
			w.reload()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Errorf("config watcher: %s", err)
		}
	}
}

// reload re-parses the file, keeping the old configuration on error.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Errorf("config reload failed, keeping previous: %s", err)
		return
	}

	w.mu.Lock()
	old := w.config
	w.config = cfg
	w.mu.Unlock()

	log.Infof("config reloaded from %s", w.path)

	w.callbacksMu.RLock()
	callbacks := make([]ChangeCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.callbacksMu.RUnlock()

	for _, cb := range callbacks {
		cb(old, cfg)
	}
}
