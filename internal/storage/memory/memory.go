// Package memory keeps subgrid records in process memory. Records do not
// survive a restart.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/subgrids/extension/pkg/core"
)

// Backend stores subgrid records per scene in memory.
type Backend struct {
	mu     sync.RWMutex
	scenes map[string]core.Grids
}

// New creates an empty memory backend.
func New() *Backend {
	return &Backend{scenes: make(map[string]core.Grids)}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// LoadGrids returns a copy of every record of sceneID.
func (b *Backend) LoadGrids(_ context.Context, sceneID string) (core.Grids, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(core.Grids, len(b.scenes[sceneID]))
	for name, rec := range b.scenes[sceneID] {
		out[name] = clone(rec)
	}
	return out, nil
}

// SaveGrid stores rec under its name, replacing any previous record.
func (b *Backend) SaveGrid(_ context.Context, sceneID string, rec core.GridRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	grids, ok := b.scenes[sceneID]
	if !ok {
		grids = make(core.Grids)
		b.scenes[sceneID] = grids
	}
	grids[rec.Name] = clone(rec)
	return nil
}

// DeleteGrid removes the record called name. Missing records are ignored.
func (b *Backend) DeleteGrid(_ context.Context, sceneID, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.scenes[sceneID], name)
	return nil
}

func clone(rec core.GridRecord) core.GridRecord {
	rec.Markers = slices.Clone(rec.Markers)
	return rec
}
