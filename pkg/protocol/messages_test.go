package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subgrids/extension/pkg/core"
)

func TestEnvelope_HostPreUpdate(t *testing.T) {
	raw := `{"type":"pre_update_object","id":"42","payload":{"kind":"Token","object":{"_id":"ship","x":280,"y":280,"rotation":0,"width":1,"height":1},"patch":{"rotation":90},"options":{"animate":true}}}`

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, TypePreUpdate, env.Type)
	assert.Equal(t, "42", env.ID)
	assert.Empty(t, env.Origin)

	var p UpdatePayload
	require.NoError(t, env.Decode(&p))
	assert.Equal(t, core.KindToken, p.Kind)
	assert.Equal(t, "ship", p.Object.ID)
	assert.Nil(t, p.Patch.X)
	require.NotNil(t, p.Patch.Rotation)
	assert.Equal(t, 90.0, *p.Patch.Rotation)
	assert.True(t, p.Options.Animate)
}

func TestEncode_ObjectUpdateOmitsUnsetFields(t *testing.T) {
	env, err := Encode(TypeUpdateObject, "7", ObjectUpdate{
		Kind:    core.KindTile,
		ID:      "tile1",
		Patch:   core.Patch{X: core.Float(10)},
		Options: core.UpdateOptions{Origin: core.OriginFrameSync},
	})
	require.NoError(t, err)

	out, err := json.Marshal(env)
	require.NoError(t, err)

	assert.JSONEq(t, `{"type":"update_object","id":"7","payload":{"kind":"Tile","id":"tile1","patch":{"x":10},"options":{"animate":false,"origin":"frameSync"}}}`, string(out))
}

func TestEncode_NilPayload(t *testing.T) {
	env, err := Encode(TypeEraseGrid, "", nil)
	require.NoError(t, err)

	out, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"erase_grid"}`, string(out))

	var v GridPayload
	assert.NoError(t, env.Decode(&v))
}

func TestFlagPayload_Schema(t *testing.T) {
	rec := core.GridRecord{
		Name:       "deck",
		Dimensions: core.Dimensions{Width: 700, Height: 700, Size: 140, CellWidth: 5, CellHeight: 5},
		Position:   core.GridPosition{X: 350, Y: 350, Angle: 90},
		Master:     core.ObjectRef{ID: "ship", Kind: core.KindToken},
		Markers:    []core.ObjectRef{{ID: "t1", Kind: core.KindToken}},
	}

	out, err := json.Marshal(FlagPayload{SceneID: "s1", Scope: core.FlagScope, Key: core.FlagKey, Name: "deck", Record: &rec})
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"sceneId":"s1","scope":"subgrids","key":"grids","name":"deck",
		"record":{
			"name":"deck",
			"dimensions":{"width":700,"height":700,"size":140,"cellWidth":5,"cellHeight":5},
			"position":{"x":350,"y":350,"angle":90},
			"master":{"id":"ship","kind":"Token"},
			"markers":[{"id":"t1","kind":"Token"}]
		}
	}`, string(out))
}
