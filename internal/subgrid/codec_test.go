package subgrid

import (
	"context"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subgrids/extension/pkg/core"
)

func TestRecord(t *testing.T) {
	fx := newFixture(token("ship", 280, 280, 30), token("t1", 420, 280, 0))
	ctx := context.Background()
	f, err := Create(ctx, "deck", 5, 4, shipRef(), fx.deps())
	require.NoError(t, err)
	require.NoError(t, f.AddToken(ctx, "t1"))

	rec := f.Record()

	assert.Equal(t, "deck", rec.Name)
	assert.Equal(t, core.Dimensions{Width: 700, Height: 560, Size: 140, CellWidth: 5, CellHeight: 4}, rec.Dimensions)
	assert.Equal(t, core.GridPosition{X: 350, Y: 350, Angle: 30}, rec.Position)
	assert.Equal(t, core.ObjectRef{ID: "ship", Kind: core.KindToken}, rec.Master)
	assert.Equal(t, []core.ObjectRef{{ID: "t1", Kind: core.KindToken}}, rec.Markers)
}

func TestDeserialize_RoundTrip(t *testing.T) {
	fx := newFixture(token("ship", 280, 280, 30), token("t1", 420, 280, 10))
	ctx := context.Background()
	f, err := Create(ctx, "deck", 5, 5, shipRef(), fx.deps())
	require.NoError(t, err)
	require.NoError(t, f.AddToken(ctx, "t1"))
	rec := f.Record()

	restored, err := Deserialize(ctx, rec, fx.deps())
	require.NoError(t, err)

	assert.Equal(t, rec, restored.Record())
	assert.Equal(t, StateActive, restored.State())
	require.Len(t, restored.Markers(), 1)
	assert.False(t, restored.Markers()[0].Highlighted(), "restored markers are not highlighted")
	assertVec(t, f.Markers()[0].Local(), restored.Markers()[0].Local())
	assert.InDelta(t, -20.0, restored.Markers()[0].RelativeAngle(), eps)
}

func TestDeserialize_MasterMissing(t *testing.T) {
	fx := newFixture(token("t1", 420, 280, 0))
	rec := core.GridRecord{
		Name:       "deck",
		Dimensions: core.Dimensions{Width: 700, Height: 700, Size: 140, CellWidth: 5, CellHeight: 5},
		Master:     core.ObjectRef{ID: "ship", Kind: core.KindToken},
		Markers:    []core.ObjectRef{{ID: "t1", Kind: core.KindToken}},
	}

	f, err := Deserialize(context.Background(), rec, fx.deps())

	assert.Nil(t, f)
	assert.ErrorIs(t, err, ErrMasterMissing)
	assert.False(t, fx.members.Contains("t1"), "nothing is attached for a dropped grid")
}

func TestDeserialize_SkipsMissingPassengers(t *testing.T) {
	fx := newFixture(ship(), token("t1", 420, 280, 0))
	rec := core.GridRecord{
		Name:       "deck",
		Dimensions: core.Dimensions{Width: 700, Height: 700, Size: 140, CellWidth: 5, CellHeight: 5},
		Master:     core.ObjectRef{ID: "ship", Kind: core.KindToken},
		Markers: []core.ObjectRef{
			{ID: "gone", Kind: core.KindToken},
			{ID: "t1", Kind: core.KindToken},
		},
	}

	f, err := Deserialize(context.Background(), rec, fx.deps())
	require.NoError(t, err)

	require.Len(t, f.Markers(), 1)
	assert.Equal(t, "t1", f.Markers()[0].Ref().ID)
	assert.Empty(t, fx.store.saved, "restoring does not write back")
}

func TestDeserialize_DerivesCellsFromPixels(t *testing.T) {
	fx := newFixture(ship())
	rec := core.GridRecord{
		Name:       "legacy",
		Dimensions: core.Dimensions{Width: 420, Height: 280},
		Master:     core.ObjectRef{ID: "ship", Kind: core.KindToken},
	}

	f, err := Deserialize(context.Background(), rec, fx.deps())
	require.NoError(t, err)

	assert.Equal(t, core.Dimensions{Width: 420, Height: 280, Size: 140, CellWidth: 3, CellHeight: 2}, f.Dimensions())
	assertVec(t, mgl64.Vec2{210, 140}, f.Master().Local())
}

func TestRestoreAll(t *testing.T) {
	fx := newFixture(ship(), token("boat", 1000, 1000, 0))
	dims := core.Dimensions{Width: 280, Height: 280, Size: 140, CellWidth: 2, CellHeight: 2}
	grids := core.Grids{
		"b": {Name: "b", Dimensions: dims, Master: core.ObjectRef{ID: "boat", Kind: core.KindToken}},
		"a": {Name: "a", Dimensions: dims, Master: core.ObjectRef{ID: "ship", Kind: core.KindToken}},
		"z": {Dimensions: dims, Master: core.ObjectRef{ID: "sunk", Kind: core.KindToken}},
	}

	frames, err := RestoreAll(context.Background(), grids, fx.deps())

	require.Len(t, frames, 2)
	assert.Equal(t, "a", frames[0].Name())
	assert.Equal(t, "b", frames[1].Name())

	require.Error(t, err)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 1)
	assert.ErrorIs(t, err, ErrMasterMissing)
	assert.Contains(t, err.Error(), "grid z")
}

func TestReconcile(t *testing.T) {
	fx := newFixture(ship(), token("t1", 420, 280, 0), token("t2", 0, 0, 0))
	ctx := context.Background()
	f, err := Create(ctx, "deck", 5, 5, shipRef(), fx.deps(), WithSkipUpdates(true))
	require.NoError(t, err)

	err = f.Reconcile(ctx, core.GridRecord{
		Name:       "deck",
		Dimensions: core.Dimensions{Width: 840, Height: 560, Size: 140, CellWidth: 6, CellHeight: 4},
		Position:   core.GridPosition{X: 350, Y: 350},
		Master:     core.ObjectRef{ID: "ship", Kind: core.KindToken},
		Markers:    []core.ObjectRef{{ID: "t2", Kind: core.KindToken}},
	})
	require.NoError(t, err)

	assert.Equal(t, 6, f.Dimensions().CellWidth)
	assertVec(t, mgl64.Vec2{420, 280}, f.Master().Local())
	assert.True(t, f.Has("t2"))
	assert.False(t, f.Has("t1"), "replicas follow the record, not auto-attach")
	assert.Empty(t, fx.writer.calls)
	assert.Empty(t, fx.store.saved)
}

func TestReconcile_Rename(t *testing.T) {
	fx := newFixture(ship(), token("t1", 420, 280, 0))
	ctx := context.Background()
	r := &countingRenderer{}
	f, err := Create(ctx, "deck", 5, 5, shipRef(), fx.deps(), WithRenderer(r))
	require.NoError(t, err)
	require.NoError(t, f.AddToken(ctx, "t1"))
	f.SetSkipUpdates(true)

	rec := f.Record()
	rec.Name = "hold"
	require.NoError(t, f.Reconcile(ctx, rec))

	assert.Equal(t, "hold", f.Name())
	assert.True(t, f.Has("t1"))
	assert.Equal(t, []string{"hold"}, fx.members.Grids("t1"))
	name, ok := fx.members.MasterOf("ship")
	require.True(t, ok)
	assert.Equal(t, "hold", name)
	assert.GreaterOrEqual(t, r.erases, 1, "the old drawing is erased")
}
