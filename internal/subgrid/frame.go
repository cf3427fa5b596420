// Package subgrid implements movable, rotatable grids that carry tokens,
// tiles and lights along with a master object.
//
// A Frame is a coordinate context pivoting on its own center. The master
// object's center is pinned to that pivot, so moving or rotating the master
// moves or rotates the whole frame. Every carried object is recorded as a
// Marker holding its center in frame space; when the frame changes, markers
// are pulled back into scene space and written to the host.
//
// A Frame is not safe for concurrent use. The manager serializes access.
package subgrid

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/subgrids/extension/internal/cache"
	"github.com/subgrids/extension/internal/geo"
	"github.com/subgrids/extension/internal/host"
	"github.com/subgrids/extension/internal/placeable"
	"github.com/subgrids/extension/pkg/core"
)

// State is the lifecycle stage of a Frame.
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// PersistFunc stores a frame's record. A nil PersistFunc disables persistence.
type PersistFunc func(ctx context.Context, rec core.GridRecord) error

// Dependencies are the host-side collaborators of a Frame.
type Dependencies struct {
	Scene   host.Scene
	Writer  host.ObjectWriter
	Persist PersistFunc
	// Members is updated on attach and detach when set.
	Members *cache.MembershipCache
	Logger  *slog.Logger
}

// Option configures a Frame.
type Option func(*Frame)

// WithSkipUpdates makes the frame read-only: it never writes objects,
// never persists and never auto-attaches.
func WithSkipUpdates(skip bool) Option {
	return func(f *Frame) { f.skipUpdates = skip }
}

// WithRenderer sets the frame's renderer.
func WithRenderer(r Renderer) Option {
	return func(f *Frame) {
		if r != nil {
			f.renderer = r
		}
	}
}

// WithContainment overrides the auto-attach containment test.
func WithContainment(c Containment) Option {
	return func(f *Frame) {
		if c != nil {
			f.containment = c
		}
	}
}

// WithOnDestroy registers fn to run once the frame is destroyed.
func WithOnDestroy(fn func(*Frame)) Option {
	return func(f *Frame) { f.onDestroy = append(f.onDestroy, fn) }
}

// Frame is one subgrid.
type Frame struct {
	name  string
	dims  core.Dimensions
	x, y  float64
	angle float64

	master  *Marker
	markers []*Marker

	state       State
	skipUpdates bool

	deps        Dependencies
	logger      *slog.Logger
	renderer    Renderer
	containment Containment
	onDestroy   []func(*Frame)
}

func newFrame(name string, cellWidth, cellHeight, size int, deps Dependencies, opts ...Option) (*Frame, error) {
	if cellWidth <= 0 || cellHeight <= 0 || size <= 0 {
		return nil, fmt.Errorf("%w: %dx%d cells of %d", ErrInvalidDimensions, cellWidth, cellHeight, size)
	}
	f := &Frame{
		name: name,
		dims: core.Dimensions{
			Width:      cellWidth * size,
			Height:     cellHeight * size,
			Size:       size,
			CellWidth:  cellWidth,
			CellHeight: cellHeight,
		},
		deps:        deps,
		logger:      deps.Logger,
		renderer:    nopRenderer{},
		containment: LocalBounds{},
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Create builds a frame of cellWidth x cellHeight scene cells. With a
// non-nil master the frame is attached to it, persisted and drawn.
func Create(ctx context.Context, name string, cellWidth, cellHeight int, master *core.ObjectRef, deps Dependencies, opts ...Option) (*Frame, error) {
	size := int(math.Round(deps.Scene.GridSize()))
	f, err := newFrame(name, cellWidth, cellHeight, size, deps, opts...)
	if err != nil {
		return nil, err
	}
	if master != nil {
		if err := f.SetMaster(ctx, *master); err != nil {
			return nil, err
		}
	}
	f.renderer.Draw(f)
	return f, nil
}

// Name returns the frame's unique name.
func (f *Frame) Name() string { return f.name }

// Dimensions returns the frame's size.
func (f *Frame) Dimensions() core.Dimensions { return f.dims }

// Position returns the frame's pivot in scene space.
func (f *Frame) Position() mgl64.Vec2 { return mgl64.Vec2{f.x, f.y} }

// Angle returns the frame's rotation in degrees.
func (f *Frame) Angle() float64 { return f.angle }

// State returns the lifecycle stage.
func (f *Frame) State() State { return f.state }

// SkipUpdates reports whether the frame is read-only.
func (f *Frame) SkipUpdates() bool { return f.skipUpdates }

// SetSkipUpdates switches the frame between authoritative and read-only.
func (f *Frame) SetSkipUpdates(skip bool) { f.skipUpdates = skip }

// Master returns the master marker, or nil before one is set.
func (f *Frame) Master() *Marker { return f.master }

// Markers returns the passenger markers in attach order.
func (f *Frame) Markers() []*Marker { return slices.Clone(f.markers) }

func (f *Frame) gridSize() float64 { return float64(f.dims.Size) }

func (f *Frame) pivot() mgl64.Vec2 {
	return mgl64.Vec2{float64(f.dims.Width) / 2, float64(f.dims.Height) / 2}
}

// Context is the frame's coordinate context relative to the scene.
func (f *Frame) Context() geo.Context {
	p := f.pivot()
	return geo.Context{
		X:      f.x,
		Y:      f.y,
		Angle:  f.angle,
		ScaleX: 1,
		ScaleY: 1,
		PivotX: p.X(),
		PivotY: p.Y(),
	}
}

// GlobalBounds is the scene-space envelope of the rotated frame.
func (f *Frame) GlobalBounds() (geom.Envelope, error) {
	return geo.GlobalEnvelope(f.Context(), f.LocalRect())
}

// GridPosition returns the cell of the frame containing the scene point p.
// Cells outside the frame yield negative or out-of-range indices.
func (f *Frame) GridPosition(p mgl64.Vec2) (col, row int) {
	local := f.Context().ToLocal(p)
	size := f.gridSize()
	return int(math.Floor(local.X() / size)), int(math.Floor(local.Y() / size))
}

// IsMaster reports whether id is the frame's master.
func (f *Frame) IsMaster(id string) bool {
	return f.master != nil && f.master.ref.ID == id
}

// Has reports whether id is a passenger of the frame.
func (f *Frame) Has(id string) bool {
	return f.marker(id) != nil
}

func (f *Frame) marker(id string) *Marker {
	for _, m := range f.markers {
		if m.ref.ID == id {
			return m
		}
	}
	return nil
}

// SetMaster attaches the frame to ref. The frame's position and angle snap
// to the master's center and rotation. An object carried as a passenger is
// detached first.
func (f *Frame) SetMaster(ctx context.Context, ref core.ObjectRef) error {
	if err := f.setMaster(ref); err != nil {
		return err
	}
	return f.persist(ctx)
}

func (f *Frame) setMaster(ref core.ObjectRef) error {
	if f.state == StateDestroyed {
		return ErrFrameDestroyed
	}
	obj, ok := f.deps.Scene.Lookup(ref.Kind, ref.ID)
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrMasterMissing, ref.Kind, ref.ID)
	}
	f.detach(ref.ID)

	center := placeable.New(obj, f.gridSize()).GlobalCenter()
	f.x, f.y = center.X(), center.Y()
	f.angle = obj.Rotation
	f.master = newMarker(f, obj, RoleMaster)
	f.state = StateActive
	if f.deps.Members != nil {
		f.deps.Members.SetMaster(f.name, ref.ID)
	}
	return nil
}

// Add attaches ref as a passenger. The master and objects already carried
// are ignored.
func (f *Frame) Add(ctx context.Context, ref core.ObjectRef) error {
	added, err := f.attach(ref, true)
	if err != nil || !added {
		return err
	}
	return f.persist(ctx)
}

// AddToken attaches the token id.
func (f *Frame) AddToken(ctx context.Context, id string) error {
	return f.Add(ctx, core.ObjectRef{ID: id, Kind: core.KindToken})
}

// AddTile attaches the tile id.
func (f *Frame) AddTile(ctx context.Context, id string) error {
	return f.Add(ctx, core.ObjectRef{ID: id, Kind: core.KindTile})
}

// AddLight attaches the light id.
func (f *Frame) AddLight(ctx context.Context, id string) error {
	return f.Add(ctx, core.ObjectRef{ID: id, Kind: core.KindLight})
}

// AddControlled attaches every object in refs and persists once.
func (f *Frame) AddControlled(ctx context.Context, refs []core.ObjectRef) ([]core.ObjectRef, error) {
	var added []core.ObjectRef
	for _, ref := range refs {
		ok, err := f.attach(ref, true)
		if err != nil {
			return added, err
		}
		if ok {
			added = append(added, ref)
		}
	}
	if len(added) == 0 {
		return nil, nil
	}
	return added, f.persist(ctx)
}

func (f *Frame) attach(ref core.ObjectRef, highlight bool) (bool, error) {
	if f.state == StateDestroyed {
		return false, ErrFrameDestroyed
	}
	if f.IsMaster(ref.ID) || f.Has(ref.ID) {
		return false, nil
	}
	obj, ok := f.deps.Scene.Lookup(ref.Kind, ref.ID)
	if !ok {
		return false, fmt.Errorf("%w: %s %s", ErrObjectMissing, ref.Kind, ref.ID)
	}
	m := newMarker(f, obj, RolePassenger)
	f.markers = append(f.markers, m)
	if f.deps.Members != nil {
		f.deps.Members.Add(f.name, ref.ID)
	}
	if highlight {
		m.highlighted = true
		f.renderer.Highlight(f, ref)
	}
	return true, nil
}

// Remove detaches the passenger id.
func (f *Frame) Remove(ctx context.Context, id string) error {
	if !f.detach(id) {
		return nil
	}
	return f.persist(ctx)
}

func (f *Frame) detach(id string) bool {
	i := slices.IndexFunc(f.markers, func(m *Marker) bool { return m.ref.ID == id })
	if i < 0 {
		return false
	}
	f.markers = slices.Delete(f.markers, i, i+1)
	if f.deps.Members != nil {
		f.deps.Members.Remove(f.name, id)
	}
	return true
}

// Highlight flashes the passenger id.
func (f *Frame) Highlight(id string) bool {
	m := f.marker(id)
	if m == nil {
		return false
	}
	m.highlighted = true
	f.renderer.Highlight(f, m.ref)
	return true
}

// ClearHighlights resets the highlight of every passenger. A completed
// master move clears them.
func (f *Frame) ClearHighlights() {
	for _, m := range f.markers {
		m.highlighted = false
	}
}

// InBounds reports whether obj belongs inside the frame.
func (f *Frame) InBounds(obj core.Placeable) bool {
	return f.containment.Contains(f, placeable.New(obj, f.gridSize()))
}

// AutoAddObjects attaches every tile, token and light inside the frame and
// returns what was attached. Read-only frames never attach.
func (f *Frame) AutoAddObjects(ctx context.Context) ([]core.ObjectRef, error) {
	added, err := f.autoAdd()
	if err != nil || len(added) == 0 {
		return added, err
	}
	return added, f.persist(ctx)
}

func (f *Frame) autoAdd() ([]core.ObjectRef, error) {
	if f.skipUpdates {
		return nil, nil
	}
	if f.state != StateActive {
		return nil, ErrNoMaster
	}
	bounds, err := f.GlobalBounds()
	if err != nil {
		return nil, fmt.Errorf("grid %s: %w", f.name, err)
	}
	var added []core.ObjectRef
	for _, kind := range core.Kinds {
		for _, obj := range f.deps.Scene.Placeables(kind) {
			if f.IsMaster(obj.ID) || f.Has(obj.ID) {
				continue
			}
			a := placeable.New(obj, f.gridSize())
			if !bounds.Contains(geo.XY(a.GlobalCenter())) {
				continue
			}
			if !f.containment.Contains(f, a) {
				continue
			}
			if _, err := f.attach(obj.Ref(), true); err != nil {
				return added, err
			}
			added = append(added, obj.Ref())
		}
	}
	return added, nil
}

// UpdateFromMaster follows a change of the master. prior is the master's
// record before patch is committed. The frame re-derives its pivot and angle
// from the patched record, pulls every passenger and redraws the grid at its
// new transform.
func (f *Frame) UpdateFromMaster(ctx context.Context, prior core.Placeable, patch core.Patch) error {
	if f.state != StateActive {
		return ErrNoMaster
	}
	if patch.Empty() {
		return nil
	}
	next := prior.Apply(patch)

	var angle *float64
	if patch.Rotates() {
		angle = core.Float(next.Rotation)
	}
	if patch.Moves() {
		center := placeable.New(next, f.gridSize()).GlobalCenter()
		f.x, f.y = center.X(), center.Y()
	}

	err := f.PullObjects(ctx, angle)
	if patch.Moves() || patch.Rotates() {
		f.renderer.Draw(f)
	}
	if err != nil {
		if perr := f.persist(ctx); perr != nil {
			f.logger.Error("failed to persist subgrid", "grid", f.name, "error", perr)
		}
		return err
	}
	f.ClearHighlights()
	return f.persist(ctx)
}

// UpdateObject refreshes the marker of a passenger after the host committed
// an external change to it.
func (f *Frame) UpdateObject(obj core.Placeable, patch core.Patch) bool {
	m := f.marker(obj.ID)
	if m == nil {
		return false
	}
	m.UpdateObject(obj, patch)
	return true
}

// PullObjects writes every passenger back to its marker, in attach order.
// A non-nil angle becomes the frame's rotation first and passengers are
// rotated with it. The first failing write aborts the remaining pulls.
// Read-only frames never write.
func (f *Frame) PullObjects(ctx context.Context, angle *float64) error {
	if angle != nil {
		f.angle = *angle
	}
	if f.skipUpdates {
		return nil
	}
	for _, m := range slices.Clone(f.markers) {
		if err := m.Pull(ctx, angle != nil); err != nil {
			return fmt.Errorf("grid %s: %w", f.name, err)
		}
	}
	return nil
}

// Clear detaches every passenger and erases the drawing. The master stays.
func (f *Frame) Clear() {
	for _, m := range f.markers {
		if f.deps.Members != nil {
			f.deps.Members.Remove(f.name, m.ref.ID)
		}
	}
	f.markers = nil
	f.renderer.Erase(f)
}

// Redraw clears the frame, draws it again and re-runs auto-attach.
func (f *Frame) Redraw(ctx context.Context) error {
	if f.state == StateDestroyed {
		return ErrFrameDestroyed
	}
	f.Clear()
	f.renderer.Draw(f)
	if f.state != StateActive {
		return nil
	}
	if _, err := f.autoAdd(); err != nil {
		return err
	}
	return f.persist(ctx)
}

// Reconcile applies a record received from another client. Name, dimensions
// and placement follow the record and passengers are re-attached from it.
// Objects the record names but the scene lacks are skipped.
func (f *Frame) Reconcile(ctx context.Context, rec core.GridRecord) error {
	if f.state == StateDestroyed {
		return ErrFrameDestroyed
	}
	if rec.Name != "" && rec.Name != f.name {
		f.rename(rec.Name)
	}
	d := rec.Dimensions
	if d.CellWidth > 0 && d.CellHeight > 0 && d.Size > 0 {
		f.dims = core.Dimensions{
			Width:      d.CellWidth * d.Size,
			Height:     d.CellHeight * d.Size,
			Size:       d.Size,
			CellWidth:  d.CellWidth,
			CellHeight: d.CellHeight,
		}
	}
	if rec.Master.ID != "" && !f.IsMaster(rec.Master.ID) {
		if err := f.setMaster(rec.Master); err != nil {
			return err
		}
	}
	f.x, f.y, f.angle = rec.Position.X, rec.Position.Y, rec.Position.Angle
	if f.master != nil {
		f.master.local = f.pivot()
	}

	f.Clear()
	f.renderer.Draw(f)
	f.restoreMarkers(rec.Markers)
	if _, err := f.autoAdd(); err != nil {
		return err
	}
	return f.persist(ctx)
}

// rename erases the drawing under the old name before moving membership.
func (f *Frame) rename(name string) {
	f.renderer.Erase(f)
	if f.deps.Members != nil {
		f.deps.Members.RenameGrid(f.name, name)
	}
	f.name = name
}

func (f *Frame) restoreMarkers(refs []core.ObjectRef) {
	for _, ref := range refs {
		if _, err := f.attach(ref, false); err != nil {
			f.logger.Warn("skipping subgrid marker", "grid", f.name, "kind", ref.Kind, "id", ref.ID, "error", err)
		}
	}
}

// Destroy detaches everything, erases the drawing and runs the destroy
// hooks. Destroying twice is a no-op.
func (f *Frame) Destroy() {
	if f.state == StateDestroyed {
		return
	}
	f.Clear()
	if f.deps.Members != nil {
		f.deps.Members.DropGrid(f.name)
	}
	f.master = nil
	f.state = StateDestroyed
	for _, fn := range f.onDestroy {
		fn(f)
	}
}

func (f *Frame) persist(ctx context.Context) error {
	if f.skipUpdates || f.deps.Persist == nil || f.state != StateActive {
		return nil
	}
	if err := f.deps.Persist(ctx, f.Record()); err != nil {
		return fmt.Errorf("persist grid %s: %w", f.name, err)
	}
	return nil
}
