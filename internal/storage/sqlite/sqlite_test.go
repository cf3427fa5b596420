package sqlitestorage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subgrids/extension/pkg/core"
)

func record() core.GridRecord {
	return core.GridRecord{
		Name:       "deck",
		Dimensions: core.Dimensions{Width: 280, Height: 280, Size: 140, CellWidth: 2, CellHeight: 2},
		Position:   core.GridPosition{X: 140, Y: 140},
		Master:     core.ObjectRef{ID: "ship", Kind: core.KindToken},
		Markers:    []core.ObjectRef{},
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grids.db")
	ctx := context.Background()

	b, err := New(Config{Path: path}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.SaveGrid(ctx, "scene1", record()))
	require.NoError(t, b.Close())

	reopened, err := New(Config{Path: path}, nil)
	require.NoError(t, err)
	require.NoError(t, reopened.Init())
	defer reopened.Close()

	grids, err := reopened.LoadGrids(ctx, "scene1")
	require.NoError(t, err)
	assert.Equal(t, record(), grids["deck"])
}

func TestDumpPathDefaultsNextToDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grids.db")

	b, err := New(Config{Path: path}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.Dump())
	_, err = os.Stat(path + ".bak")
	assert.NoError(t, err)
}

func TestDumpLoop(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "snapshot.db")

	b, err := New(Config{Path: filepath.Join(dir, "grids.db"), DumpPath: dump, DumpInterval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.SaveGrid(context.Background(), "scene1", record()))

	assert.Eventually(t, func() bool {
		_, err := os.Stat(dump)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.Close())
}
