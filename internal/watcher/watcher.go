// Package watcher reports changes to a single file, such as the config file,
// with debouncing.
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pitr/gemini-ios-sub000/internal/log"
)

// DefaultDebounce is how long the file must stay quiet before a change is
// reported. Editors often write a file in several steps.
const DefaultDebounce = 500 * time.Millisecond

// Config selects the file to watch.
type Config struct {
	Path     string
	Debounce time.Duration
}

// DefaultConfig watches path with DefaultDebounce.
func DefaultConfig(path string) Config {
	return Config{Path: path, Debounce: DefaultDebounce}
}

// Watcher reports changes to one file on a channel.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	debounce  time.Duration
	onChange  chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

// New creates a watcher. Nothing is observed until Start.
func New(cfg Config) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &Watcher{
		fsWatcher: fsw,
		path:      filepath.Clean(cfg.Path),
		debounce:  cfg.Debounce,
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start watches the file's directory, so atomic saves that rename a
// temporary file over the original are seen as well.
func (w *Watcher) Start() (<-chan struct{}, error) {
	dir := filepath.Dir(w.path)
	if err := w.fsWatcher.Add(dir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}
	go w.loop()
	return w.onChange, nil
}

// Stop ends the watch. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

// loop coalesces bursts of events: a notification goes out once the file
// has been quiet for the debounce interval.
func (w *Watcher) loop() {
	quiet := time.NewTimer(w.debounce)
	quiet.Stop()
	defer quiet.Stop()

	var fire <-chan time.Time
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.matches(event) {
				continue
			}
			quiet.Reset(w.debounce)
			fire = quiet.C

		case <-fire:
			fire = nil
			w.notify()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatConfig, "file watcher error", "path", w.path, "error", err)
		}
	}
}

// notify signals a change, dropping it if one is already pending.
func (w *Watcher) notify() {
	select {
	case w.onChange <- struct{}{}:
	default:
	}
}

// matches reports writes to the file and its replacement by create or
// rename. Removal is ignored so a save in progress does not fire early.
func (w *Watcher) matches(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}
