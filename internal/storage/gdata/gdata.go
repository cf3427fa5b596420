// Package gdatastore persists subgrid records in the per-user application
// data directory, one item per scene.
package gdatastore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/quasilyte/gdata"

	"github.com/subgrids/extension/pkg/core"
)

// Backend stores each scene's records as one JSON item.
type Backend struct {
	appName string

	mu sync.Mutex
	m  *gdata.Manager
}

// New creates a backend for appName. Init opens the data directory.
func New(appName string) *Backend {
	return &Backend{appName: appName}
}

// Init opens the data directory.
func (b *Backend) Init() error {
	m, err := gdata.Open(gdata.Config{AppName: b.appName})
	if err != nil {
		return fmt.Errorf("opening game data for %s: %w", b.appName, err)
	}
	b.m = m
	return nil
}

// Close is a no-op; items are written through.
func (b *Backend) Close() error {
	return nil
}

// itemKey maps a scene ID onto a file-safe item key.
func itemKey(sceneID string) string {
	return "scene_" + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, sceneID)
}

func (b *Backend) load(sceneID string) (core.Grids, error) {
	if b.m == nil {
		return nil, fmt.Errorf("game data store not initialized")
	}
	data, err := b.m.LoadItem(itemKey(sceneID))
	if err != nil {
		return nil, fmt.Errorf("loading subgrids of scene %s: %w", sceneID, err)
	}
	grids := core.Grids{}
	if len(data) == 0 {
		return grids, nil
	}
	if err := json.Unmarshal(data, &grids); err != nil {
		return nil, fmt.Errorf("decoding subgrids of scene %s: %w", sceneID, err)
	}
	return grids, nil
}

func (b *Backend) store(sceneID string, grids core.Grids) error {
	data, err := json.Marshal(grids)
	if err != nil {
		return fmt.Errorf("encoding subgrids of scene %s: %w", sceneID, err)
	}
	if err := b.m.SaveItem(itemKey(sceneID), data); err != nil {
		return fmt.Errorf("saving subgrids of scene %s: %w", sceneID, err)
	}
	return nil
}

// LoadGrids returns every record of sceneID.
func (b *Backend) LoadGrids(_ context.Context, sceneID string) (core.Grids, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load(sceneID)
}

// SaveGrid stores rec under its name.
func (b *Backend) SaveGrid(_ context.Context, sceneID string, rec core.GridRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	grids, err := b.load(sceneID)
	if err != nil {
		return err
	}
	grids[rec.Name] = rec
	return b.store(sceneID, grids)
}

// DeleteGrid removes the record called name.
func (b *Backend) DeleteGrid(_ context.Context, sceneID, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	grids, err := b.load(sceneID)
	if err != nil {
		return err
	}
	if _, ok := grids[name]; !ok {
		return nil
	}
	delete(grids, name)
	return b.store(sceneID, grids)
}
