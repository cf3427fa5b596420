package subgrid

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/subgrids/extension/internal/placeable"
	"github.com/subgrids/extension/pkg/core"
)

// Role distinguishes the object driving a subgrid from those it carries.
type Role int

const (
	RolePassenger Role = iota
	RoleMaster
)

func (r Role) String() string {
	if r == RoleMaster {
		return "master"
	}
	return "passenger"
}

// Marker binds one host object to a subgrid. It keeps the object's center in
// the subgrid's local space and its rotation relative to the subgrid.
type Marker struct {
	ref           core.ObjectRef
	role          Role
	frame         *Frame
	local         mgl64.Vec2
	relativeAngle float64
	highlighted   bool
}

func newMarker(f *Frame, obj core.Placeable, role Role) *Marker {
	m := &Marker{
		ref:   obj.Ref(),
		role:  role,
		frame: f,
	}
	m.relativeAngle = obj.Rotation - f.angle
	m.setPosition(obj)
	return m
}

// Ref returns the carried object.
func (m *Marker) Ref() core.ObjectRef { return m.ref }

// Role returns whether the marker is the master or a passenger.
func (m *Marker) Role() Role { return m.role }

// Local is the object's center in the subgrid's space.
func (m *Marker) Local() mgl64.Vec2 { return m.local }

// RelativeAngle is the object's rotation minus the subgrid's.
func (m *Marker) RelativeAngle() float64 { return m.relativeAngle }

// Highlighted reports whether the marker was attached since the last
// ClearHighlights.
func (m *Marker) Highlighted() bool { return m.highlighted }

// the master always sits on the pivot
func (m *Marker) setPosition(obj core.Placeable) {
	if m.role == RoleMaster {
		m.local = m.frame.pivot()
		return
	}
	m.local = placeable.New(obj, m.frame.gridSize()).LocalCenter(m.frame.Context())
}

// UpdateObject re-derives the marker from the object's committed record.
func (m *Marker) UpdateObject(obj core.Placeable, patch core.Patch) {
	if patch.Rotates() {
		m.relativeAngle = obj.Rotation - m.frame.angle
	}
	if patch.Moves() {
		m.setPosition(obj)
	}
}

// Pull writes the object back so its center matches the marker in scene
// space. With rotate set the object's rotation follows the subgrid too.
func (m *Marker) Pull(ctx context.Context, rotate bool) error {
	f := m.frame
	obj, ok := f.deps.Scene.Lookup(m.ref.Kind, m.ref.ID)
	if !ok {
		f.logger.Warn("skipping pull of missing object", "grid", f.name, "kind", m.ref.Kind, "id", m.ref.ID)
		return nil
	}

	center := f.Context().ToGlobal(m.local)
	corner := placeable.New(obj, f.gridSize()).CornerFor(center)
	patch := core.Patch{X: core.Float(corner.X()), Y: core.Float(corner.Y())}
	if rotate {
		patch.Rotation = core.Float(m.relativeAngle + f.angle)
	}

	opts := core.UpdateOptions{Animate: false, Origin: core.OriginFrameSync}
	if err := f.deps.Writer.Update(ctx, m.ref.Kind, m.ref.ID, patch, opts); err != nil {
		return fmt.Errorf("pull %s %s: %w", m.ref.Kind, m.ref.ID, err)
	}
	return nil
}
