package gdatastore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subgrids/extension/internal/host"
	"github.com/subgrids/extension/pkg/core"
)

var _ host.FlagStore = (*Backend)(nil)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("APPDATA", home)

	b := New("subgrids_test")
	require.NoError(t, b.Init())
	return b
}

func TestItemKey(t *testing.T) {
	assert.Equal(t, "scene_abc123", itemKey("abc123"))
	assert.Equal(t, "scene_a_b_c", itemKey("a/b.c"))
}

func TestLoadGrids_Empty(t *testing.T) {
	b := newTestBackend(t)

	grids, err := b.LoadGrids(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Empty(t, grids)
}

func TestSaveLoadDelete(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	deck := core.GridRecord{
		Name:       "deck",
		Dimensions: core.Dimensions{Width: 700, Height: 700, Size: 140, CellWidth: 5, CellHeight: 5},
		Position:   core.GridPosition{X: 350, Y: 350},
		Master:     core.ObjectRef{ID: "ship", Kind: core.KindToken},
		Markers:    []core.ObjectRef{{ID: "crate", Kind: core.KindTile}},
	}
	raft := deck
	raft.Name = "raft"

	require.NoError(t, b.SaveGrid(ctx, "scene1", deck))
	require.NoError(t, b.SaveGrid(ctx, "scene1", raft))

	grids, err := b.LoadGrids(ctx, "scene1")
	require.NoError(t, err)
	assert.Equal(t, core.Grids{"deck": deck, "raft": raft}, grids)

	require.NoError(t, b.DeleteGrid(ctx, "scene1", "deck"))
	require.NoError(t, b.DeleteGrid(ctx, "scene1", "deck"))

	grids, err = b.LoadGrids(ctx, "scene1")
	require.NoError(t, err)
	assert.Equal(t, core.Grids{"raft": raft}, grids)
}

func TestNotInitialized(t *testing.T) {
	b := New("subgrids_test")
	_, err := b.LoadGrids(context.Background(), "scene1")
	assert.Error(t, err)
}
