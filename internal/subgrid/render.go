package subgrid

import (
	"github.com/subgrids/extension/internal/geo"
	"github.com/subgrids/extension/internal/placeable"
	"github.com/subgrids/extension/pkg/core"
)

// Renderer draws a subgrid. Rendering is owned by the host; implementations
// forward geometry to it.
type Renderer interface {
	Draw(f *Frame)
	Erase(f *Frame)
	Highlight(f *Frame, ref core.ObjectRef)
}

type nopRenderer struct{}

func (nopRenderer) Draw(*Frame) {}

func (nopRenderer) Erase(*Frame) {}

func (nopRenderer) Highlight(*Frame, core.ObjectRef) {}

// Containment decides whether an object belongs inside a subgrid.
type Containment interface {
	Contains(f *Frame, obj placeable.Adapter) bool
}

// LocalBounds tests the object's center against the subgrid rectangle in
// the subgrid's own unrotated space.
type LocalBounds struct{}

func (LocalBounds) Contains(f *Frame, obj placeable.Adapter) bool {
	return f.LocalRect().Contains(obj.LocalCenter(f.Context()))
}

var _ Containment = LocalBounds{}

// LocalRect is the subgrid's extent in its own space.
func (f *Frame) LocalRect() geo.Rect {
	return geo.Rect{Width: float64(f.dims.Width), Height: float64(f.dims.Height)}
}
