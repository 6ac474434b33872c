package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ReloadCallback is invoked with the freshly validated configuration after a
// successful reload.
type ReloadCallback func(*Config)

// ConfigReloader watches the config file and SIGHUP and swaps in a new
// configuration when either fires. A reload that fails to load or validate
// is logged and discarded; the previous configuration stays active.
type ConfigReloader struct {
	mu        sync.RWMutex
	path      string
	current   *Config
	logger    *logrus.Logger
	watcher   *fsnotify.Watcher
	callbacks []ReloadCallback
	sigCh     chan os.Signal
	done      chan struct{}
	stopOnce  sync.Once
}

// NewConfigReloader creates a reloader for the given config file path. An
// empty path disables file watching; SIGHUP reloads still work.
func NewConfigReloader(path string, initial *Config, logger *logrus.Logger) (*ConfigReloader, error) {
	r := &ConfigReloader{
		path:    path,
		current: initial,
		logger:  logger,
		sigCh:   make(chan os.Signal, 1),
		done:    make(chan struct{}),
	}

	if path != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		// Watch the directory: editors replace files on save, which
		// breaks a watch on the file itself.
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch config directory: %w", err)
		}
		r.watcher = watcher
	}

	signal.Notify(r.sigCh, syscall.SIGHUP)
	go r.loop()

	return r, nil
}

// Current returns the active configuration.
func (r *ConfigReloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// OnReload registers a callback invoked after each successful reload.
func (r *ConfigReloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Stop stops watching and releases resources.
func (r *ConfigReloader) Stop() {
	r.stopOnce.Do(func() {
		signal.Stop(r.sigCh)
		close(r.done)
		if r.watcher != nil {
			r.watcher.Close()
		}
	})
}

func (r *ConfigReloader) loop() {
	var events <-chan fsnotify.Event
	var errs <-chan error
	if r.watcher != nil {
		events = r.watcher.Events
		errs = r.watcher.Errors
	}

	for {
		select {
		case <-r.done:
			return
		case <-r.sigCh:
			r.logger.Info("SIGHUP received, reloading configuration")
			r.reload()
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Name != r.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			r.logger.WithField("file", event.Name).Info("Config file changed, reloading")
			r.reload()
		case err, ok := <-errs:
			if !ok {
				return
			}
			r.logger.WithError(err).Warn("Config watcher error")
		}
	}
}

func (r *ConfigReloader) reload() {
	cfg, err := LoadConfig(r.path)
	if err != nil {
		r.logger.WithError(err).Error("Config reload failed, keeping previous configuration")
		return
	}

	r.mu.Lock()
	r.current = cfg
	callbacks := make([]ReloadCallback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
	r.logger.Info("Configuration reloaded")
}
