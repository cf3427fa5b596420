// Package geo converts points between nested 2D coordinate contexts.
//
// Every context is described relative to the scene (world) space. Points are
// carried as mgl64.Vec2 and transforms as homogeneous mgl64.Mat3, composed as
// translate, rotate, scale, then shift by the pivot.
package geo

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Rect is an axis-aligned rectangle in corner form.
type Rect struct {
	X, Y, Width, Height float64
}

// CornerToCenter returns the center of r.
func CornerToCenter(r Rect) mgl64.Vec2 {
	return mgl64.Vec2{r.X + r.Width/2, r.Y + r.Height/2}
}

// CenterToCorner returns the top-left corner of a width x height box centered on center.
func CenterToCorner(center mgl64.Vec2, width, height float64) mgl64.Vec2 {
	return mgl64.Vec2{center.X() - width/2, center.Y() - height/2}
}

// Context is one coordinate context, expressed relative to the world.
// Angle is in degrees, clockwise on screen (y axis points down).
// A zero scale is read as 1.
type Context struct {
	X, Y           float64
	Angle          float64
	ScaleX, ScaleY float64
	PivotX, PivotY float64
}

// World is the scene's own coordinate context.
var World = Context{ScaleX: 1, ScaleY: 1}

func (c Context) scale() (float64, float64) {
	sx, sy := c.ScaleX, c.ScaleY
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	return sx, sy
}

// Matrix maps context-local points into world space.
func (c Context) Matrix() mgl64.Mat3 {
	sx, sy := c.scale()
	return mgl64.Translate2D(c.X, c.Y).
		Mul3(mgl64.HomogRotate2D(mgl64.DegToRad(c.Angle))).
		Mul3(mgl64.Scale2D(sx, sy)).
		Mul3(mgl64.Translate2D(-c.PivotX, -c.PivotY))
}

// Inverse maps world points into the context's local space.
func (c Context) Inverse() mgl64.Mat3 {
	sx, sy := c.scale()
	return mgl64.Translate2D(c.PivotX, c.PivotY).
		Mul3(mgl64.Scale2D(1/sx, 1/sy)).
		Mul3(mgl64.HomogRotate2D(-mgl64.DegToRad(c.Angle))).
		Mul3(mgl64.Translate2D(-c.X, -c.Y))
}

// ToGlobal maps a local point of c into world space.
func (c Context) ToGlobal(p mgl64.Vec2) mgl64.Vec2 {
	return apply(c.Matrix(), p)
}

// ToLocal maps a world point into c.
func (c Context) ToLocal(p mgl64.Vec2) mgl64.Vec2 {
	return apply(c.Inverse(), p)
}

// TranslatePoint converts p from the src context into the dst context.
func TranslatePoint(p mgl64.Vec2, src, dst Context) mgl64.Vec2 {
	return apply(dst.Inverse().Mul3(src.Matrix()), p)
}

func apply(m mgl64.Mat3, p mgl64.Vec2) mgl64.Vec2 {
	return m.Mul3x1(p.Vec3(1)).Vec2()
}

// NormalizeDegrees maps a into [0, 360). Stored angles are never normalized;
// this is for comparisons only.
func NormalizeDegrees(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}
