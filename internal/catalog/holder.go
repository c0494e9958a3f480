package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/m3rciful/printbot/core/logger"
)

// Loader produces a fresh catalog from its source.
type Loader func(ctx context.Context) (*Catalog, error)

// FileLoader adapts LoadFile to Loader.
func FileLoader(path string) Loader {
	return func(context.Context) (*Catalog, error) { return LoadFile(path) }
}

// Holder serves the active catalog and swaps it atomically on reload.
type Holder struct {
	load    Loader
	current atomic.Pointer[Catalog]
}

// NewHolder performs the initial load.
func NewHolder(ctx context.Context, load Loader) (*Holder, error) {
	if load == nil {
		return nil, errors.New("catalog: nil loader")
	}
	h := &Holder{load: load}
	if err := h.Reload(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Static wraps an already built catalog; Reload keeps returning it.
func Static(c *Catalog) *Holder {
	h := &Holder{load: func(context.Context) (*Catalog, error) { return c, nil }}
	h.current.Store(c)
	return h
}

// Current returns the active catalog.
func (h *Holder) Current() *Catalog {
	return h.current.Load()
}

// Reload replaces the active catalog. On failure the previous one stays.
func (h *Holder) Reload(ctx context.Context) error {
	c, err := h.load(ctx)
	if err != nil {
		return err
	}
	h.current.Store(c)
	logger.Info(ctx, "catalog", "catalog.loaded",
		slog.String("status", "ok"),
		slog.Int("papers", c.Len()),
	)
	return nil
}

// Watch reloads the catalog whenever path is written or replaced, until ctx
// is done. The parent directory is watched so atomic renames are seen too.
func (h *Holder) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog: watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("catalog: watch %s: %w", path, err)
	}
	base := filepath.Base(path)
	logger.Info(ctx, "catalog", "catalog.watch",
		slog.String("status", "ok"),
		slog.String("path", path),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := h.Reload(ctx); err != nil {
				logger.Warn(ctx, "catalog", "catalog.reload",
					slog.String("status", "fail"),
					slog.String("path", path),
					slog.String("err", err.Error()),
				)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn(ctx, "catalog", "catalog.watch",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}
}
