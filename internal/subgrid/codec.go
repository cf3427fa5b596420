package subgrid

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/hashicorp/go-multierror"

	"github.com/subgrids/extension/pkg/core"
)

// Record serializes the frame for persistence.
func (f *Frame) Record() core.GridRecord {
	rec := core.GridRecord{
		Name:       f.name,
		Dimensions: f.dims,
		Position:   core.GridPosition{X: f.x, Y: f.y, Angle: f.angle},
		Markers:    make([]core.ObjectRef, 0, len(f.markers)),
	}
	if f.master != nil {
		rec.Master = f.master.ref
	}
	for _, m := range f.markers {
		rec.Markers = append(rec.Markers, m.ref)
	}
	return rec
}

// Deserialize rebuilds a frame from its record. The master must still exist.
// Passengers that no longer exist are logged and dropped.
func Deserialize(ctx context.Context, rec core.GridRecord, deps Dependencies, opts ...Option) (*Frame, error) {
	d := rec.Dimensions
	size := d.Size
	if size <= 0 {
		size = int(math.Round(deps.Scene.GridSize()))
	}
	cw, ch := d.CellWidth, d.CellHeight
	if (cw <= 0 || ch <= 0) && size > 0 {
		cw, ch = d.Width/size, d.Height/size
	}

	f, err := newFrame(rec.Name, cw, ch, size, deps, opts...)
	if err != nil {
		return nil, fmt.Errorf("grid %s: %w", rec.Name, err)
	}
	if err := f.setMaster(rec.Master); err != nil {
		return nil, fmt.Errorf("grid %s: %w", rec.Name, err)
	}
	f.restoreMarkers(rec.Markers)
	f.renderer.Draw(f)
	return f, nil
}

// RestoreAll deserializes every record in grids in name order. Records that
// cannot be restored are skipped and reported together in the error.
func RestoreAll(ctx context.Context, grids core.Grids, deps Dependencies, opts ...Option) ([]*Frame, error) {
	names := make([]string, 0, len(grids))
	for name := range grids {
		names = append(names, name)
	}
	slices.Sort(names)

	var errs *multierror.Error
	frames := make([]*Frame, 0, len(names))
	for _, name := range names {
		rec := grids[name]
		if rec.Name == "" {
			rec.Name = name
		}
		f, err := Deserialize(ctx, rec, deps, opts...)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		frames = append(frames, f)
	}
	return frames, errs.ErrorOrNil()
}
