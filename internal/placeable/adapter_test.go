package placeable

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"

	"github.com/subgrids/extension/internal/geo"
	"github.com/subgrids/extension/pkg/core"
)

func TestNew_TokenSizedInCells(t *testing.T) {
	a := New(core.Placeable{ID: "t1", Kind: core.KindToken, X: 280, Y: 280, Width: 1, Height: 2}, 140)

	assert.Equal(t, 140.0, a.Width())
	assert.Equal(t, 280.0, a.Height())
	assert.Equal(t, mgl64.Vec2{350, 420}, a.GlobalCenter())
	assert.Equal(t, mgl64.Vec2{280, 280}, a.GlobalPos())
}

func TestNew_TileSizedInPixels(t *testing.T) {
	a := New(core.Placeable{ID: "tile", Kind: core.KindTile, X: 0, Y: 0, Width: 300, Height: 100}, 140)

	assert.Equal(t, 300.0, a.Width())
	assert.Equal(t, 100.0, a.Height())
	assert.Equal(t, mgl64.Vec2{150, 50}, a.GlobalCenter())
}

func TestNew_LightIsPointLike(t *testing.T) {
	a := New(core.Placeable{ID: "l", Kind: core.KindLight, X: 40, Y: 60, Width: 9, Height: 9}, 140)

	assert.Zero(t, a.Width())
	assert.Zero(t, a.Height())
	assert.Equal(t, a.GlobalPos(), a.GlobalCenter())
}

func TestNew_UnknownKindFallsBackToPoint(t *testing.T) {
	a := New(core.Placeable{ID: "x", Kind: "Drawing", X: 1, Y: 2, Width: 5, Height: 5}, 140)

	assert.Zero(t, a.Width())
	assert.Equal(t, mgl64.Vec2{1, 2}, a.GlobalCenter())
}

func TestAdapter_LocalCenter(t *testing.T) {
	frame := geo.Context{X: 350, Y: 350, Angle: 90, PivotX: 350, PivotY: 350}
	a := New(core.Placeable{Kind: core.KindToken, X: 280, Y: 280, Width: 1, Height: 1}, 140)

	got := a.LocalCenter(frame)

	assert.InDelta(t, 350, got.X(), 1e-9)
	assert.InDelta(t, 350, got.Y(), 1e-9)
}

func TestAdapter_LocalPos_Rotated(t *testing.T) {
	frame := geo.Context{X: 350, Y: 350, Angle: 90, PivotX: 350, PivotY: 350}
	a := New(core.Placeable{Kind: core.KindLight, X: 350, Y: 400}, 140)

	// 50px below the pivot in world space is 50px right of it in the frame.
	got := a.LocalPos(frame)

	assert.InDelta(t, 400, got.X(), 1e-9)
	assert.InDelta(t, 350, got.Y(), 1e-9)
}

func TestAdapter_LocalAngle(t *testing.T) {
	a := New(core.Placeable{Kind: core.KindToken, Rotation: 120}, 100)

	assert.Equal(t, 120.0, a.GlobalAngle())
	assert.Equal(t, 90.0, a.LocalAngle(30))
	assert.Equal(t, 150.0, a.LocalAngle(-30))
}

func TestAdapter_CornerFor(t *testing.T) {
	a := New(core.Placeable{Kind: core.KindToken, Width: 2, Height: 1}, 100)

	assert.Equal(t, mgl64.Vec2{400, 450}, a.CornerFor(mgl64.Vec2{500, 500}))
}
