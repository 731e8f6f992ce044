// Package catalog serves the tool catalog from a YAML file.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/pbaille/osintdeck/internal/domain"
	"github.com/pbaille/osintdeck/internal/metrics"
)

// ErrNotLoaded is returned when no catalog snapshot is available
var ErrNotLoaded = errors.New("catalog not loaded")

type file struct {
	Tools []domain.Tool `yaml:"tools"`
}

// FileRepository holds the last successfully parsed catalog file
type FileRepository struct {
	path   string
	logger *slog.Logger
	tools  atomic.Pointer[[]domain.Tool]
}

// Open loads the catalog at path
func Open(path string, logger *slog.Logger) (*FileRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &FileRepository{path: path, logger: logger}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// AllTools returns the current catalog snapshot. Callers must not modify it.
func (r *FileRepository) AllTools(_ context.Context) ([]domain.Tool, error) {
	tools := r.tools.Load()
	if tools == nil {
		return nil, ErrNotLoaded
	}
	return *tools, nil
}

// Reload re-reads the file. A failed reload keeps the previous snapshot.
func (r *FileRepository) Reload() error {
	tools, err := Parse(r.path)
	if err != nil {
		metrics.CatalogReloadsTotal.WithLabelValues("error").Inc()
		return err
	}
	r.tools.Store(&tools)
	metrics.CatalogReloadsTotal.WithLabelValues("ok").Inc()
	return nil
}

// Parse reads and validates a catalog file
func Parse(path string) ([]domain.Tool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	seen := make(map[string]bool, len(f.Tools))
	for i, t := range f.Tools {
		if t.ID == "" || t.Name == "" {
			return nil, fmt.Errorf("catalog tool #%d: id and name are required", i+1)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("catalog tool %s: duplicate id", t.ID)
		}
		seen[t.ID] = true
		for j, c := range t.Cards {
			for _, k := range c.InputTypes {
				if _, ok := domain.ParseKind(string(k)); !ok {
					return nil, fmt.Errorf("catalog tool %s card #%d: unknown input type %q", t.ID, j+1, k)
				}
			}
		}
	}
	return f.Tools, nil
}

// Watch reloads the catalog whenever the file is written or replaced, until
// ctx is done. Editors that save through a rename are handled by watching the
// parent directory.
func (r *FileRepository) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("watch %s: %w", r.path, err)
	}

	target := filepath.Clean(r.path)
	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce = time.After(200 * time.Millisecond)
			}
		case <-debounce:
			debounce = nil
			if err := r.Reload(); err != nil {
				r.logger.Warn("catalog reload failed, keeping previous snapshot", "path", r.path, "error", err)
				continue
			}
			r.logger.Info("catalog reloaded", "path", r.path)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("catalog watcher error", "error", err)
		}
	}
}
