package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subgrids/extension/internal/host"
	"github.com/subgrids/extension/pkg/core"
)

var _ host.Scene = (*SceneCache)(nil)

func TestSceneCache_NewSceneCache(t *testing.T) {
	cache := NewSceneCache()

	require.NotNil(t, cache)
	assert.NotNil(t, cache.Tokens)
	assert.NotNil(t, cache.Tiles)
	assert.NotNil(t, cache.Lights)
	assert.Zero(t, cache.GridSize())
}

func TestSceneCache_Load(t *testing.T) {
	cache := NewSceneCache()

	cache.Load(core.Scene{
		ID:       "scene1",
		GridSize: 140,
		Tokens:   []core.Placeable{{ID: "t1"}, {ID: "t2"}},
		Tiles:    []core.Placeable{{ID: "tile1", Width: 300, Height: 200}},
		Lights:   []core.Placeable{{ID: "l1"}},
	})

	assert.Equal(t, 140.0, cache.GridSize())

	tok, ok := cache.Lookup(core.KindToken, "t2")
	require.True(t, ok)
	assert.Equal(t, core.KindToken, tok.Kind, "kind is stamped from the layer")

	tile, ok := cache.Lookup(core.KindTile, "tile1")
	require.True(t, ok)
	assert.Equal(t, 300.0, tile.Width)

	_, ok = cache.Lookup(core.KindTile, "t1")
	assert.False(t, ok, "tokens are not visible on the tile layer")
}

func TestSceneCache_PlaceablesKeepHostOrder(t *testing.T) {
	cache := NewSceneCache()
	for _, id := range []string{"c", "a", "b"} {
		cache.Put(core.Placeable{ID: id, Kind: core.KindToken})
	}
	cache.Put(core.Placeable{ID: "a", Kind: core.KindToken, X: 5})

	got := cache.Placeables(core.KindToken)

	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
	assert.Equal(t, 5.0, got[1].X)
	assert.Equal(t, "b", got[2].ID)
}

func TestSceneCache_Apply(t *testing.T) {
	cache := NewSceneCache()
	cache.Put(core.Placeable{ID: "t1", Kind: core.KindToken, X: 1, Y: 2, Rotation: 3})

	ok := cache.Apply(core.KindToken, "t1", core.Patch{X: core.Float(10), Rotation: core.Float(90)})
	require.True(t, ok)

	got, _ := cache.Lookup(core.KindToken, "t1")
	assert.Equal(t, 10.0, got.X)
	assert.Equal(t, 2.0, got.Y)
	assert.Equal(t, 90.0, got.Rotation)
}

func TestSceneCache_Apply_Unknown(t *testing.T) {
	cache := NewSceneCache()

	assert.False(t, cache.Apply(core.KindToken, "ghost", core.Patch{X: core.Float(1)}))
}

func TestSceneCache_Delete(t *testing.T) {
	cache := NewSceneCache()
	cache.Put(core.Placeable{ID: "a", Kind: core.KindLight})
	cache.Put(core.Placeable{ID: "b", Kind: core.KindLight})

	cache.Delete(core.KindLight, "a")
	cache.Delete(core.KindLight, "missing")

	_, ok := cache.Lookup(core.KindLight, "a")
	assert.False(t, ok)
	got := cache.Placeables(core.KindLight)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestSceneCache_UnknownKindIgnored(t *testing.T) {
	cache := NewSceneCache()
	cache.Put(core.Placeable{ID: "d", Kind: "Drawing"})

	_, ok := cache.Lookup("Drawing", "d")
	assert.False(t, ok)
	assert.Empty(t, cache.Placeables("Drawing"))
}

func TestSceneCache_Reset(t *testing.T) {
	cache := NewSceneCache()
	cache.Load(core.Scene{GridSize: 100, Tokens: []core.Placeable{{ID: "t1"}}})

	cache.Reset()

	_, ok := cache.Lookup(core.KindToken, "t1")
	assert.False(t, ok)
	assert.Zero(t, cache.GridSize())
}

func TestSceneCache_ConcurrentAccess(t *testing.T) {
	cache := NewSceneCache()
	cache.Put(core.Placeable{ID: "t1", Kind: core.KindToken})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			cache.Apply(core.KindToken, "t1", core.Patch{X: core.Float(float64(i))})
		}(i)
		go func() {
			defer wg.Done()
			cache.Lookup(core.KindToken, "t1")
			cache.Placeables(core.KindToken)
		}()
	}
	wg.Wait()

	_, ok := cache.Lookup(core.KindToken, "t1")
	assert.True(t, ok)
}
