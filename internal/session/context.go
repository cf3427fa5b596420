package session

import (
	"sync"

	"github.com/subgrids/extension/pkg/core"
)

// Scene is the identity of the scene a session runs against.
type Scene struct {
	ID            string
	Name          string
	GridSize      int
	Authoritative bool
}

// Context holds the current scene session
type Context struct {
	mu     sync.RWMutex
	scene  Scene
	loaded bool
}

// NewContext creates a new Context with no scene loaded
func NewContext() *Context {
	return &Context{scene: Scene{Name: "No scene loaded"}}
}

// Scene returns the current scene
func (c *Context) Scene() Scene {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scene
}

// Loaded reports whether a scene session is active
func (c *Context) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Authoritative reports whether this client owns writes for the scene.
// It is a host.Authority.
func (c *Context) Authoritative() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded && c.scene.Authoritative
}

// Begin starts a session for scene
func (c *Context) Begin(scene core.Scene) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scene = Scene{
		ID:            scene.ID,
		Name:          scene.ID,
		GridSize:      scene.GridSize,
		Authoritative: scene.Authoritative,
	}
	c.loaded = true
}

// SetAuthoritative changes the authority of the running session
func (c *Context) SetAuthoritative(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scene.Authoritative = v
}

// End closes the session
func (c *Context) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scene = Scene{Name: "No scene loaded"}
	c.loaded = false
}
