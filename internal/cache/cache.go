package cache

import (
	"sync"

	"github.com/subgrids/extension/pkg/core"
)

// SceneCache mirrors the placeables of the active scene so lookups never
// round-trip to the host. It is filled from the scene snapshot on load and
// kept current from committed updates.
type SceneCache struct {
	m        sync.Mutex
	gridSize float64
	Tokens   map[string]core.Placeable
	Tiles    map[string]core.Placeable
	Lights   map[string]core.Placeable

	// host order, per kind
	order map[core.Kind][]string
}

func NewSceneCache() *SceneCache {
	c := &SceneCache{}
	c.reset()
	return c
}

func (c *SceneCache) reset() {
	c.Tokens = make(map[string]core.Placeable)
	c.Tiles = make(map[string]core.Placeable)
	c.Lights = make(map[string]core.Placeable)
	c.order = make(map[core.Kind][]string)
}

func (c *SceneCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.reset()
	c.gridSize = 0
}

// Load replaces the cache content with a scene snapshot.
func (c *SceneCache) Load(scene core.Scene) {
	c.m.Lock()
	defer c.m.Unlock()
	c.reset()
	c.gridSize = float64(scene.GridSize)
	for kind, objs := range map[core.Kind][]core.Placeable{
		core.KindToken: scene.Tokens,
		core.KindTile:  scene.Tiles,
		core.KindLight: scene.Lights,
	} {
		for _, obj := range objs {
			obj.Kind = kind
			c.put(obj)
		}
	}
}

func (c *SceneCache) layer(kind core.Kind) map[string]core.Placeable {
	switch kind {
	case core.KindToken:
		return c.Tokens
	case core.KindTile:
		return c.Tiles
	case core.KindLight:
		return c.Lights
	}
	return nil
}

func (c *SceneCache) put(obj core.Placeable) {
	layer := c.layer(obj.Kind)
	if layer == nil {
		return
	}
	if _, ok := layer[obj.ID]; !ok {
		c.order[obj.Kind] = append(c.order[obj.Kind], obj.ID)
	}
	layer[obj.ID] = obj
}

// Put inserts or replaces an object record.
func (c *SceneCache) Put(obj core.Placeable) {
	c.m.Lock()
	defer c.m.Unlock()
	c.put(obj)
}

// Apply merges a committed patch into the cached record.
// Returns false if the object is unknown.
func (c *SceneCache) Apply(kind core.Kind, id string, patch core.Patch) bool {
	c.m.Lock()
	defer c.m.Unlock()
	layer := c.layer(kind)
	obj, ok := layer[id]
	if !ok {
		return false
	}
	layer[id] = obj.Apply(patch)
	return true
}

// Delete drops an object from the cache.
func (c *SceneCache) Delete(kind core.Kind, id string) {
	c.m.Lock()
	defer c.m.Unlock()
	layer := c.layer(kind)
	if _, ok := layer[id]; !ok {
		return
	}
	delete(layer, id)
	ids := c.order[kind]
	for i, v := range ids {
		if v == id {
			c.order[kind] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
}

func (c *SceneCache) SetGridSize(size float64) {
	c.m.Lock()
	defer c.m.Unlock()
	c.gridSize = size
}

func (c *SceneCache) GridSize() float64 {
	c.m.Lock()
	defer c.m.Unlock()
	return c.gridSize
}

func (c *SceneCache) Lookup(kind core.Kind, id string) (core.Placeable, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	if obj, ok := c.layer(kind)[id]; ok {
		return obj, true
	}
	return core.Placeable{}, false
}

func (c *SceneCache) Placeables(kind core.Kind) []core.Placeable {
	c.m.Lock()
	defer c.m.Unlock()
	layer := c.layer(kind)
	out := make([]core.Placeable, 0, len(layer))
	for _, id := range c.order[kind] {
		out = append(out, layer[id])
	}
	return out
}
