package cache

import (
	"slices"
	"sync"
)

// MembershipCache maps object ids to the subgrids they belong to, so the
// event path can tell in O(1) whether an update concerns any subgrid.
type MembershipCache struct {
	mu      sync.RWMutex
	members map[string][]string // object id -> grid names
	masters map[string]string   // master object id -> grid name
}

// NewMembershipCache creates a new MembershipCache
func NewMembershipCache() *MembershipCache {
	return &MembershipCache{
		members: make(map[string][]string),
		masters: make(map[string]string),
	}
}

// Grids returns the names of the grids carrying id, master role included.
func (c *MembershipCache) Grids(id string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.members[id])
}

// Contains reports whether id belongs to any grid.
func (c *MembershipCache) Contains(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members[id]) > 0
}

// MasterOf returns the grid driven by id.
func (c *MembershipCache) MasterOf(id string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.masters[id]
	return name, ok
}

// Add records id as a member of grid.
func (c *MembershipCache) Add(grid, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.members[id], grid) {
		c.members[id] = append(c.members[id], grid)
	}
}

// SetMaster records id as grid's master, replacing any previous master.
func (c *MembershipCache) SetMaster(grid, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for mid, g := range c.masters {
		if g == grid && mid != id {
			delete(c.masters, mid)
			c.remove(grid, mid)
		}
	}
	c.masters[id] = grid
	if !slices.Contains(c.members[id], grid) {
		c.members[id] = append(c.members[id], grid)
	}
}

// Remove drops id from grid.
func (c *MembershipCache) Remove(grid, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(grid, id)
	if c.masters[id] == grid {
		delete(c.masters, id)
	}
}

func (c *MembershipCache) remove(grid, id string) {
	names := slices.DeleteFunc(c.members[id], func(n string) bool { return n == grid })
	if len(names) == 0 {
		delete(c.members, id)
		return
	}
	c.members[id] = names
}

// DropGrid removes every entry of grid.
func (c *MembershipCache) DropGrid(grid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.members {
		c.remove(grid, id)
	}
	for id, g := range c.masters {
		if g == grid {
			delete(c.masters, id)
		}
	}
}

// RenameGrid moves every entry of grid from old to name.
func (c *MembershipCache) RenameGrid(old, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, names := range c.members {
		for i, n := range names {
			if n == old {
				names[i] = name
			}
		}
		c.members[id] = slices.Compact(names)
	}
	for id, g := range c.masters {
		if g == old {
			c.masters[id] = name
		}
	}
}

// Reset clears all entries
func (c *MembershipCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members = make(map[string][]string)
	c.masters = make(map[string]string)
}
