package store

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the write, sync and rename bursts a single
// save produces.
const DefaultDebounce = 50 * time.Millisecond

// FileWatcher runs a callback when a watched file is written or replaced.
// Parent directories are watched so atomic renames are seen.
type FileWatcher struct {
	fs       *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	targets map[string]func()
	pending map[string]*time.Timer
	running bool
	done    chan struct{}
}

// NewWatcher creates a watcher with no targets.
func NewWatcher(logger *slog.Logger) (*FileWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &FileWatcher{
		fs:       fs,
		logger:   logger,
		debounce: DefaultDebounce,
		targets:  make(map[string]func()),
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}, nil
}

// NewFileWatcher creates a watcher for a single file.
func NewFileWatcher(filePath string, onChange func(), logger *slog.Logger) (*FileWatcher, error) {
	fw, err := NewWatcher(logger)
	if err != nil {
		return nil, err
	}
	if err := fw.Watch(filePath, onChange); err != nil {
		_ = fw.Stop()
		return nil, err
	}
	return fw, nil
}

// SetDebounce changes the quiet period before a callback runs. Set it
// before Start.
func (fw *FileWatcher) SetDebounce(d time.Duration) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.debounce = max(d, 0)
}

// Watch registers onChange for path, replacing any earlier callback.
func (fw *FileWatcher) Watch(path string, onChange func()) error {
	path = filepath.Clean(path)

	fw.mu.Lock()
	fw.targets[path] = onChange
	running := fw.running
	fw.mu.Unlock()

	if running {
		return fw.fs.Add(filepath.Dir(path))
	}
	return nil
}

// WatchStore rehydrates s whenever its journal at path changes.
func (fw *FileWatcher) WatchStore(s *Store, path string) error {
	return fw.Watch(path, func() {
		if err := s.Hydrate(); err != nil {
			fw.logger.Warn("failed to rehydrate store", "error", err)
		}
	})
}

// Start begins delivering events.
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	if fw.running {
		fw.mu.Unlock()
		return nil
	}
	dirs := make(map[string]struct{}, len(fw.targets))
	for path := range fw.targets {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	fw.running = true
	fw.mu.Unlock()

	for dir := range dirs {
		if err := fw.fs.Add(dir); err != nil {
			return err
		}
	}

	go fw.loop()
	return nil
}

func (fw *FileWatcher) loop() {
	for {
		select {
		case event, ok := <-fw.fs.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				fw.schedule(filepath.Clean(event.Name))
			}

		case err, ok := <-fw.fs.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("file watcher error", "error", err)

		case <-fw.done:
			return
		}
	}
}

// schedule (re)arms the debounce timer for name.
func (fw *FileWatcher) schedule(name string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	onChange, ok := fw.targets[name]
	if !ok || onChange == nil || !fw.running {
		return
	}
	if t, ok := fw.pending[name]; ok {
		t.Reset(fw.debounce)
		return
	}
	fw.pending[name] = time.AfterFunc(fw.debounce, func() {
		fw.mu.Lock()
		delete(fw.pending, name)
		running := fw.running
		fw.mu.Unlock()

		if running {
			fw.logger.Debug("file changed", "file", name)
			onChange()
		}
	})
}

// Stop stops the watcher and drops pending callbacks.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	for name, t := range fw.pending {
		t.Stop()
		delete(fw.pending, name)
	}
	if fw.running {
		fw.running = false
		close(fw.done)
	}
	return fw.fs.Close()
}
