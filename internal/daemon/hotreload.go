package daemon

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmylchreest/compstack/internal/config"
	"github.com/jmylchreest/compstack/internal/store"
)

// ConfigWatcher reloads the daemon config whenever its file changes.
// Invalid files are reported and the last valid config stays current.
type ConfigWatcher struct {
	configPath string
	logger     *slog.Logger

	mu            sync.RWMutex
	currentConfig *config.DaemonConfig
	override      func(*config.DaemonConfig)
	onReload      func(*config.DaemonConfig)
	onError       func(error)
	watcher       *store.FileWatcher
}

// NewConfigWatcher creates a watcher for configPath, or the default
// location when empty.
func NewConfigWatcher(configPath string, logger *slog.Logger) (*ConfigWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if configPath == "" {
		var err error
		if configPath, err = config.DaemonConfigPath(); err != nil {
			return nil, err
		}
	}
	return &ConfigWatcher{configPath: configPath, logger: logger}, nil
}

func (w *ConfigWatcher) Path() string { return w.configPath }

// SetOverride sets a function applied to every loaded config before it is
// compared with the current one. Command line flags that pin settings go
// here.
func (w *ConfigWatcher) SetOverride(fn func(*config.DaemonConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.override = fn
}

// SetReloadCallback sets the function called with each new valid config.
func (w *ConfigWatcher) SetReloadCallback(fn func(newConfig *config.DaemonConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = fn
}

// SetErrorCallback sets the function called when a changed file fails to
// load or validate.
func (w *ConfigWatcher) SetErrorCallback(fn func(err error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = fn
}

// Start watches the file, treating initial as the current config.
func (w *ConfigWatcher) Start(initial *config.DaemonConfig) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return nil
	}
	w.currentConfig = initial

	fw, err := store.NewFileWatcher(w.configPath, w.checkForChanges, w.logger)
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := fw.Start(); err != nil {
		_ = fw.Stop()
		return fmt.Errorf("failed to watch %s: %w", w.configPath, err)
	}
	w.watcher = fw

	w.logger.Debug("config watcher started", "path", w.configPath)
	return nil
}

func (w *ConfigWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher == nil {
		return
	}
	if err := w.watcher.Stop(); err != nil {
		w.logger.Debug("failed to close config watcher", "error", err)
	}
	w.watcher = nil
	w.logger.Debug("config watcher stopped")
}

// GetCurrentConfig returns the last valid config.
func (w *ConfigWatcher) GetCurrentConfig() *config.DaemonConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.currentConfig
}

// checkForChanges loads the file and reports a config that differs from
// the current one.
func (w *ConfigWatcher) checkForChanges() {
	w.mu.RLock()
	override, onReload, onError := w.override, w.onReload, w.onError
	current := w.currentConfig
	w.mu.RUnlock()

	next, err := config.LoadDaemonConfigFrom(w.configPath)
	if err != nil {
		w.logger.Warn("config file changed but validation failed", "error", err)
		if onError != nil {
			onError(err)
		}
		return
	}
	if override != nil {
		override(next)
	}
	if current != nil && *current == *next {
		return
	}

	w.mu.Lock()
	w.currentConfig = next
	w.mu.Unlock()

	w.logger.Info("config reloaded", "path", w.configPath)
	if onReload != nil {
		onReload(next)
	}
}
