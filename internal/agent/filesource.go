package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 100 * time.Millisecond

// FileSource serves the latest reading from a JSON file written by an
// external sensor bridge. The file is reloaded whenever it changes.
type FileSource struct {
	path string
	log  slog.Logger

	mu     sync.Mutex
	latest Reading
	ok     bool
}

// NewFileSource creates a source for path. Call Run to start watching.
func NewFileSource(path string, log slog.Logger) *FileSource {
	if log == nil {
		log = slog.Disabled
	}
	return &FileSource{path: filepath.Clean(path), log: log}
}

// Read returns the most recent reading, or ErrNoReading before the file
// has been parsed once.
func (f *FileSource) Read(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ok {
		return Reading{}, ErrNoReading
	}
	return f.latest, nil
}

func (f *FileSource) load() error {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}
	var r Reading
	if err := json.Unmarshal(b, &r); err != nil {
		return fmt.Errorf("parse %s: %w", f.path, err)
	}
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	f.mu.Lock()
	f.latest = r
	f.ok = true
	f.mu.Unlock()
	return nil
}

// Run watches the file until ctx is done. The parent directory is watched
// so bridges that replace the file by rename are picked up too.
func (f *FileSource) Run(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watch %s: %w", f.path, err)
	}

	if err := f.load(); err != nil && !os.IsNotExist(err) {
		f.log.Warnf("Unable to load sensor file: %v", err)
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	reload := func() {
		if err := f.load(); err != nil {
			f.log.Warnf("Unable to reload sensor file: %v", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != f.path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, reload)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.log.Warnf("Sensor watcher error: %v", err)
		}
	}
}
