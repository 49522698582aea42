package config

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultReloadDebounce = 100 * time.Millisecond

// Watcher reloads a configuration file when it changes on disk. Sessions that
// already hold an AnalyzerConfig snapshot are unaffected; only sessions opened
// after the callback fires see the new settings.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload func(*Config)
	onError  func(error)

	mu      sync.Mutex
	current *Config
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for path. onReload receives every successfully
// loaded configuration with env overrides applied.
func NewWatcher(path string, onReload func(*Config)) *Watcher {
	return &Watcher{
		path:     path,
		debounce: defaultReloadDebounce,
		onReload: onReload,
		stop:     make(chan struct{}),
	}
}

// OnError registers a callback for files that fail to load. The previous
// configuration stays current.
func (w *Watcher) OnError(fn func(error)) {
	w.onError = fn
}

// Current returns the last configuration loaded by the watcher, or nil.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Start begins watching. The parent directory is watched so editors that save
// by rename are picked up.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer watcher.Close()

		log.Printf("Starting config watcher on %s", w.path)

		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(w.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(w.debounce, w.reload)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("Config watcher error: %v", err)

			case <-w.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.stop) })
	w.wg.Wait()
}

func (w *Watcher) reload() {
	log.Printf("Config file change detected, reloading %s", w.path)
	cfg, err := Load(w.path)
	if err == nil {
		ApplyEnvOverrides(cfg)
		if errs := Validate(cfg); len(errs) > 0 {
			err = errs[0]
		}
	}
	if err != nil {
		log.Printf("Failed to reload configuration: %v", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	if w.onReload != nil {
		w.onReload(cfg)
	}
}
