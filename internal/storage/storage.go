// Package storage holds the flag store backends subgrid records can be
// persisted to when the host's own scene flags are not used.
package storage

import "github.com/subgrids/extension/internal/host"

// Backend is the interface all storage implementations must satisfy.
type Backend interface {
	host.FlagStore

	// Lifecycle
	Init() error
	Close() error
}

// Passthrough adapts a store without lifecycle, such as the host's scene
// flags, to Backend.
type Passthrough struct {
	host.FlagStore
}

// Init is a no-op.
func (Passthrough) Init() error { return nil }

// Close is a no-op.
func (Passthrough) Close() error { return nil }
