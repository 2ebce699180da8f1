package library

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nvandessel/nudge/internal/models"
)

// DefaultDebounce is how long File.Watch waits after the last change event
// before reloading.
const DefaultDebounce = 200 * time.Millisecond

// Provider supplies the current constraint snapshot. It satisfies
// activation.Resolver.
type Provider interface {
	Constraints(ctx context.Context) ([]models.Constraint, error)
	Current() *Library
}

// Static serves one library forever.
type Static struct {
	lib *Library
}

// NewStatic wraps lib. A nil lib serves the built-in library.
func NewStatic(lib *Library) *Static {
	if lib == nil {
		lib = Default()
	}
	return &Static{lib: lib}
}

// Current returns the library.
func (s *Static) Current() *Library { return s.lib }

// Constraints implements Provider.
func (s *Static) Constraints(ctx context.Context) ([]models.Constraint, error) {
	return s.lib.Constraints(ctx)
}

// File serves a library file and can reload it when it changes on disk.
// Readers always see a complete snapshot; a failed reload keeps the
// previous one.
type File struct {
	path     string
	logger   *slog.Logger
	debounce time.Duration
	current  atomic.Pointer[Library]

	mu    sync.Mutex
	timer *time.Timer
}

// NewFile loads path. A nil logger uses slog.Default().
func NewFile(path string, logger *slog.Logger) (*File, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f := &File{path: path, logger: logger, debounce: DefaultDebounce}
	lib, err := Load(path)
	if err != nil {
		return nil, err
	}
	f.current.Store(lib)
	return f, nil
}

// Path returns the watched file.
func (f *File) Path() string { return f.path }

// Current returns the active snapshot.
func (f *File) Current() *Library { return f.current.Load() }

// Constraints implements Provider.
func (f *File) Constraints(ctx context.Context) ([]models.Constraint, error) {
	return f.Current().Constraints(ctx)
}

// Reload reads the file again and swaps the snapshot on success.
func (f *File) Reload() error {
	lib, err := Load(f.path)
	if err != nil {
		f.logger.Warn("constraint library reload failed, keeping previous snapshot",
			"path", f.path, "error", err)
		return err
	}
	f.current.Store(lib)
	f.logger.Info("constraint library reloaded", "path", f.path, "constraints", lib.Len())
	return nil
}

// Watch reloads the library whenever the file is written, created or
// renamed into place. It blocks until ctx is cancelled.
func (f *File) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating library watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are still seen.
	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	name := filepath.Base(f.path)

	defer f.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			f.triggerDebounced()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("library watcher error", "path", f.path, "error", err)
		}
	}
}

func (f *File) triggerDebounced() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.debounce, func() {
		_ = f.Reload()
	})
}

func (f *File) stopTimer() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}
