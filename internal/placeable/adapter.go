// Package placeable gives tokens, tiles and lights one positional view.
//
// The host stores every object by its top-left corner, but subgrids reason
// about centers. The size of an object depends on its kind, so the adapter
// looks up a kind-specific size function and derives everything else from it.
package placeable

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/subgrids/extension/internal/geo"
	"github.com/subgrids/extension/pkg/core"
)

// sizeFunc returns an object's extent in pixels.
type sizeFunc func(obj core.Placeable, gridSize float64) (w, h float64)

// Tokens are sized in grid cells.
func tokenSize(obj core.Placeable, gridSize float64) (float64, float64) {
	return obj.Width * gridSize, obj.Height * gridSize
}

// Tiles carry the pixel size of their image.
func tileSize(obj core.Placeable, _ float64) (float64, float64) {
	return obj.Width, obj.Height
}

func pointSize(core.Placeable, float64) (float64, float64) {
	return 0, 0
}

var sizers = map[core.Kind]sizeFunc{
	core.KindToken: tokenSize,
	core.KindTile:  tileSize,
	core.KindLight: pointSize,
}

// Adapter is a read-only positional view over one placeable.
type Adapter struct {
	obj    core.Placeable
	width  float64
	height float64
}

// New adapts obj. Unknown kinds fall back to the point-like light behavior.
func New(obj core.Placeable, gridSize float64) Adapter {
	size, ok := sizers[obj.Kind]
	if !ok {
		size = pointSize
	}
	w, h := size(obj, gridSize)
	return Adapter{obj: obj, width: w, height: h}
}

// Object returns the adapted snapshot.
func (a Adapter) Object() core.Placeable { return a.obj }

// Width in pixels.
func (a Adapter) Width() float64 { return a.width }

// Height in pixels.
func (a Adapter) Height() float64 { return a.height }

// GlobalPos is the stored position, which is the corner for box-like objects.
func (a Adapter) GlobalPos() mgl64.Vec2 {
	return mgl64.Vec2{a.obj.X, a.obj.Y}
}

// GlobalCenter is the object's center in scene space.
func (a Adapter) GlobalCenter() mgl64.Vec2 {
	return geo.CornerToCenter(geo.Rect{X: a.obj.X, Y: a.obj.Y, Width: a.width, Height: a.height})
}

// GlobalAngle is the object's own rotation in degrees.
func (a Adapter) GlobalAngle() float64 { return a.obj.Rotation }

// LocalPos is GlobalPos expressed in frame.
func (a Adapter) LocalPos(frame geo.Context) mgl64.Vec2 {
	return geo.TranslatePoint(a.GlobalPos(), geo.World, frame)
}

// LocalCenter is GlobalCenter expressed in frame.
func (a Adapter) LocalCenter(frame geo.Context) mgl64.Vec2 {
	return geo.TranslatePoint(a.GlobalCenter(), geo.World, frame)
}

// LocalAngle is the object's rotation relative to a frame rotated by frameAngle.
func (a Adapter) LocalAngle(frameAngle float64) float64 {
	return a.obj.Rotation - frameAngle
}

// CornerFor returns the stored position that puts this object's center on center.
func (a Adapter) CornerFor(center mgl64.Vec2) mgl64.Vec2 {
	return geo.CenterToCorner(center, a.width, a.height)
}
