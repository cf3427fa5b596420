// Package protocol defines the JSON messages exchanged with the host over
// the websocket bridge.
package protocol

import (
	"encoding/json"

	"github.com/subgrids/extension/pkg/core"
)

// Message types sent by the host.
const (
	TypeReady          = "ready"
	TypeCanvasReady    = "canvas_ready"
	TypeCanvasTeardown = "canvas_teardown"
	TypePreUpdate      = "pre_update_object"
	TypeUpdateObject   = "update_object"
	TypeUpdateScene    = "update_scene"
	TypeCreateGrid     = "create_grid"
	TypeAddToGrid      = "add_to_grid"
	TypeRemoveFromGrid = "remove_from_grid"
	TypeAutoAddGrid    = "auto_add_grid"
	TypeScuttleGrid    = "scuttle_grid"
	TypeCreateObject   = "create_object"
	TypeDeleteObject   = "delete_object"
	TypeStatus         = "status"
	TypeAck            = "ack"
)

// Message types sent to the host. TypeUpdateObject is shared: inbound it
// reports a committed update, outbound it requests one.
const (
	TypeHello     = "hello"
	TypeSetFlag   = "set_flag"
	TypeUnsetFlag = "unset_flag"
	TypeGetFlag   = "get_flag"
	TypeReply     = "reply"
	TypeDrawGrid  = "draw_grid"
	TypeEraseGrid = "erase_grid"
	TypeHighlight = "highlight_object"
)

// Envelope wraps all messages sent over the WebSocket.
// Requests carry an ID; the matching ack or reply echoes it.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Origin  core.Origin     `json:"origin,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AckPayload is the host's answer to a request. Data is set for reads.
type AckPayload struct {
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ReplyPayload answers a host message once it was handled.
type ReplyPayload struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ReadyPayload introduces the host client.
type ReadyPayload struct {
	UserID        string `json:"userId"`
	Authoritative bool   `json:"authoritative"`
}

// UpdatePayload carries an object update. On pre_update_object Object is the
// record before the patch, on update_object the committed record.
type UpdatePayload struct {
	Kind    core.Kind          `json:"kind"`
	Object  core.Placeable     `json:"object"`
	Patch   core.Patch         `json:"patch"`
	Options core.UpdateOptions `json:"options"`
}

// ObjectPayload reports a created or deleted object.
type ObjectPayload struct {
	Kind   core.Kind      `json:"kind"`
	Object core.Placeable `json:"object"`
}

// HelloPayload announces the extension to the host.
type HelloPayload struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ObjectUpdate asks the host to update one object.
type ObjectUpdate struct {
	Kind    core.Kind          `json:"kind"`
	ID      string             `json:"id"`
	Patch   core.Patch         `json:"patch"`
	Options core.UpdateOptions `json:"options"`
}

// SceneUpdatePayload reports a change of the scene's subgrid flags.
type SceneUpdatePayload struct {
	SceneID string             `json:"sceneId"`
	Grids   core.Grids         `json:"grids"`
	Options core.UpdateOptions `json:"options"`
}

// FlagPayload reads or writes one subgrid record in the scene flags.
type FlagPayload struct {
	SceneID string           `json:"sceneId"`
	Scope   string           `json:"scope"`
	Key     string           `json:"key"`
	Name    string           `json:"name,omitempty"`
	Record  *core.GridRecord `json:"record,omitempty"`
}

// CreateGridPayload is the create-subgrid dialog submission.
type CreateGridPayload struct {
	Name       string         `json:"name"`
	CellWidth  int            `json:"cellWidth"`
	CellHeight int            `json:"cellHeight"`
	Master     core.ObjectRef `json:"master"`
	AutoAdd    bool           `json:"autoAdd"`
}

// GridPayload names one subgrid.
type GridPayload struct {
	Grid string `json:"grid"`
}

// AddToGridPayload attaches objects to a subgrid.
type AddToGridPayload struct {
	Grid    string           `json:"grid"`
	Objects []core.ObjectRef `json:"objects"`
}

// RemoveFromGridPayload detaches one object from a subgrid.
type RemoveFromGridPayload struct {
	Grid string `json:"grid"`
	ID   string `json:"id"`
}

// DrawGridPayload is everything the host needs to render a subgrid.
type DrawGridPayload struct {
	Grid       string            `json:"grid"`
	Position   core.GridPosition `json:"position"`
	Dimensions core.Dimensions   `json:"dimensions"`
	Color      string            `json:"color"`
	Alpha      float64           `json:"alpha"`
}

// HighlightPayload flashes one carried object.
type HighlightPayload struct {
	Grid     string         `json:"grid"`
	Object   core.ObjectRef `json:"object"`
	Duration int64          `json:"durationMs"`
}

// Encode builds an envelope around payload.
func Encode(msgType, id string, payload any) (Envelope, error) {
	env := Envelope{Type: msgType, ID: id}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = raw
	return env, nil
}

// Decode unmarshals the envelope payload into v. An empty payload leaves v untouched.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}
