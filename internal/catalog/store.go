package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Store holds the current catalog snapshot for a running process and can
// reload it when the source file changes. Each reload builds a new Catalog
// and swaps it in; callers keep whatever snapshot they already took.
type Store struct {
	path    string
	opts    Options
	current atomic.Pointer[LoadResult]
}

// NewStore loads the catalog at path. An empty path gives a degraded store
// with an empty catalog.
func NewStore(path string, opts Options) *Store {
	s := &Store{path: path, opts: opts}
	s.Reload()
	return s
}

// NewStaticStore wraps an already built catalog; Reload keeps it as is.
func NewStaticStore(c *Catalog) *Store {
	s := &Store{}
	s.current.Store(&LoadResult{Catalog: c, Source: "static"})
	return s
}

// Reload reads the source again and returns the new result.
func (s *Store) Reload() LoadResult {
	var res LoadResult
	switch {
	case s.path != "":
		res = Load(s.path, s.opts)
	case s.current.Load() != nil:
		return *s.current.Load()
	default:
		res = LoadResult{Catalog: Empty(), Err: fmt.Errorf("%w: no catalog configured", ErrSourceUnavailable)}
	}

	if res.Degraded() {
		slog.Warn("Catalog unavailable, running in degraded mode", "source", s.path, "error", res.Err)
	} else {
		slog.Info("Catalog loaded", "source", s.path, "items", res.Catalog.Len(), "skipped_rows", len(res.Skipped))
	}
	for _, rowErr := range res.Skipped {
		slog.Warn("Skipped catalog row", "source", s.path, "row", rowErr.Row, "item", rowErr.Name, "value", rowErr.Value, "error", rowErr.Err)
	}

	s.current.Store(&res)
	return res
}

// Snapshot returns the current catalog. It is never nil.
func (s *Store) Snapshot() *Catalog {
	return s.current.Load().Catalog
}

// Result returns the full outcome of the latest load.
func (s *Store) Result() LoadResult {
	return *s.current.Load()
}

// Watch reloads the catalog whenever its file is written, created or
// renamed into place, until ctx is cancelled. The parent directory is
// watched so editors that replace the file atomically are picked up.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return fmt.Errorf("no catalog path to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	target := filepath.Clean(s.path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				slog.Info("Catalog changed, reloading", "source", s.path, "op", event.Op.String())
				s.Reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Catalog watcher error", "error", err)
			}
		}
	}()
	return nil
}
