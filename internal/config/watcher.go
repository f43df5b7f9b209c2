package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const reloadDebounce = 500 * time.Millisecond

// Watcher reloads the configuration when a file in the config directory
// changes. It only watches in development; elsewhere it holds the initial
// configuration and never fires.
type Watcher struct {
	loader   *Loader
	logger   *zap.Logger
	fsw      *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
	debounce time.Duration

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

func NewWatcher(loader *Loader, initial *Config, logger *zap.Logger) (*Watcher, error) {
	w := &Watcher{
		loader:   loader,
		logger:   logger.Named("config_watcher"),
		stopCh:   make(chan struct{}),
		debounce: reloadDebounce,
		config:   initial,
	}
	if initial.Environment != Development {
		w.logger.Debug("Configuration reloading disabled", zap.String("environment", string(initial.Environment)))
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	// Watching the directory sees editors that replace files by rename.
	if err := fsw.Add(loader.Dir()); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", loader.Dir(), err)
	}
	w.fsw = fsw
	go w.loop()

	w.logger.Info("Configuration reloading enabled", zap.String("dir", loader.Dir()))
	return w, nil
}

func (w *Watcher) loop() {
	var timer *time.Timer
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !isConfigFile(event.Name) {
				continue
			}
			w.logger.Debug("Configuration file changed", zap.String("file", event.Name), zap.String("op", event.Op.String()))
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// reload keeps the previous configuration if the new one fails to load.
func (w *Watcher) reload() {
	next, err := w.loader.Load()
	if err != nil {
		w.logger.Error("Configuration reload failed, keeping previous", zap.Error(err))
		return
	}

	w.mu.Lock()
	prev := w.config
	if equalIgnoringSources(prev, next) {
		w.mu.Unlock()
		return
	}
	w.config = next
	callbacks := append([]func(*Config){}, w.callbacks...)
	w.mu.Unlock()

	w.logger.Info("Configuration reloaded", zap.Strings("sources", next.LoadedFrom))
	for _, cb := range callbacks {
		w.notify(cb, next)
	}
}

func (w *Watcher) notify(cb func(*Config), cfg *Config) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Configuration callback panicked", zap.Any("panic", r))
		}
	}()
	cb(cfg)
}

// OnChange registers cb to run after every successful reload.
func (w *Watcher) OnChange(cb func(*Config)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, cb)
	w.mu.Unlock()
}

func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.fsw != nil {
			err = w.fsw.Close()
		}
	})
	return err
}

// WatchLogLevel applies logging.level changes to level.
func WatchLogLevel(w *Watcher, level zap.AtomicLevel, parse func(string) zapcore.Level) {
	w.OnChange(func(c *Config) {
		next := parse(c.Logging.Level)
		if next != level.Level() {
			w.logger.Info("Log level changed", zap.Stringer("from", level.Level()), zap.Stringer("to", next))
			level.SetLevel(next)
		}
	})
}

func equalIgnoringSources(a, b *Config) bool {
	ac, bc := *a, *b
	ac.LoadedFrom, bc.LoadedFrom = nil, nil
	return reflect.DeepEqual(ac, bc)
}

func isConfigFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".json":
		return true
	}
	return false
}
