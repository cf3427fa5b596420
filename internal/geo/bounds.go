package geo

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	geom "github.com/peterstace/simplefeatures/geom"
)

// XY converts a point into the simplefeatures representation.
func XY(p mgl64.Vec2) geom.XY {
	return geom.XY{X: p.X(), Y: p.Y()}
}

// Envelope returns the axis-aligned envelope covering r. Edges are inclusive.
// NaN or infinite bounds are rejected.
func (r Rect) Envelope() (geom.Envelope, error) {
	env, err := geom.NewEnvelope([]geom.XY{
		{X: r.X, Y: r.Y},
		{X: r.X + r.Width, Y: r.Y + r.Height},
	})
	if err != nil {
		return geom.Envelope{}, fmt.Errorf("rect envelope: %w", err)
	}
	return env, nil
}

// Contains reports whether p lies within r, edges included. A rect or point
// with non-finite coordinates contains nothing.
func (r Rect) Contains(p mgl64.Vec2) bool {
	env, err := r.Envelope()
	if err != nil {
		return false
	}
	return env.Contains(XY(p))
}

// Corners returns r's corners clockwise from the top-left.
func (r Rect) Corners() [4]mgl64.Vec2 {
	return [4]mgl64.Vec2{
		{r.X, r.Y},
		{r.X + r.Width, r.Y},
		{r.X + r.Width, r.Y + r.Height},
		{r.X, r.Y + r.Height},
	}
}

// GlobalEnvelope returns the world-space envelope of a local rectangle of c.
// Under rotation this is the bounding box of the four transformed corners.
func GlobalEnvelope(c Context, local Rect) (geom.Envelope, error) {
	corners := local.Corners()
	lo := c.ToGlobal(corners[0])
	hi := lo
	for _, p := range corners[1:] {
		g := c.ToGlobal(p)
		lo = mgl64.Vec2{math.Min(lo.X(), g.X()), math.Min(lo.Y(), g.Y())}
		hi = mgl64.Vec2{math.Max(hi.X(), g.X()), math.Max(hi.Y(), g.Y())}
	}
	env, err := geom.NewEnvelope([]geom.XY{XY(lo), XY(hi)})
	if err != nil {
		return geom.Envelope{}, fmt.Errorf("global envelope: %w", err)
	}
	return env, nil
}
