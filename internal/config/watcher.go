package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the configuration when its file changes on disk.
//
// Editors and provisioning tools rewrite config files with rename/replace
// sequences, so the watcher monitors the parent directory and debounces
// bursts of events before reloading.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	debounce  time.Duration

	reloads chan *Config
	errors  chan error

	// Control
	done chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	pending *time.Timer
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string) (*Watcher, error) {
	if path == "" {
		path = ConfigPath()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		path:      abs,
		debounce:  250 * time.Millisecond,
		reloads:   make(chan *Config, 1),
		errors:    make(chan error, 4),
		done:      make(chan struct{}),
	}
	return w, nil
}

// Reloads returns the channel delivering freshly loaded configurations.
func (w *Watcher) Reloads() <-chan *Config {
	return w.reloads
}

// Errors returns the channel of reload errors. A failed reload keeps the
// previous configuration in effect; the daemon only logs the error.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Start begins watching the config file's directory.
func (w *Watcher) Start() error {
	if err := w.fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.eventLoop()
	return nil
}

// Stop shuts down the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()

	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()

	return w.fsWatcher.Close()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

// scheduleReload arms (or re-arms) the debounce timer.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		select {
		case w.errors <- err:
		default:
		}
		return
	}

	// Drop a stale unconsumed reload in favor of the newest one.
	select {
	case <-w.reloads:
	default:
	}
	w.reloads <- cfg
}
