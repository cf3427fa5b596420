// Package host declares the ports subgrids use to talk to the tabletop host.
//
// Everything the host owns (object records, scene flags, permissions and the
// event stream) is reached through these interfaces, so the core can be
// driven by the websocket bridge in production and by fakes in tests.
package host

import (
	"context"

	"github.com/subgrids/extension/pkg/core"
)

// Scene looks up placeables on the active scene.
type Scene interface {
	// GridSize is the scene's cell size in pixels.
	GridSize() float64
	// Lookup returns the current record of an object.
	Lookup(kind core.Kind, id string) (core.Placeable, bool)
	// Placeables returns every object of kind, in host order.
	Placeables(kind core.Kind) []core.Placeable
}

// ObjectWriter mutates host objects. Update blocks until the host has
// committed (or rejected) the change.
type ObjectWriter interface {
	Update(ctx context.Context, kind core.Kind, id string, patch core.Patch, opts core.UpdateOptions) error
}

// FlagStore persists subgrid records for a scene.
type FlagStore interface {
	LoadGrids(ctx context.Context, sceneID string) (core.Grids, error)
	SaveGrid(ctx context.Context, sceneID string, rec core.GridRecord) error
	DeleteGrid(ctx context.Context, sceneID, name string) error
}

// Authority reports whether this client is the scene's authoritative host.
type Authority func() bool

// EventSink receives host lifecycle events.
type EventSink interface {
	OnSceneReady(ctx context.Context, scene core.Scene) error
	OnSceneUnload(ctx context.Context) error
	OnPreUpdate(ctx context.Context, kind core.Kind, prior core.Placeable, patch core.Patch, opts *core.UpdateOptions) error
	OnPostUpdate(ctx context.Context, kind core.Kind, record core.Placeable, patch core.Patch, opts core.UpdateOptions) error
	OnSceneUpdate(ctx context.Context, grids core.Grids, opts core.UpdateOptions) error
}
