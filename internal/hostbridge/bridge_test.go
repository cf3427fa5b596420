package hostbridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subgrids/extension/internal/cache"
	"github.com/subgrids/extension/internal/dispatcher"
	"github.com/subgrids/extension/internal/logging"
	"github.com/subgrids/extension/internal/subgrid"
	"github.com/subgrids/extension/pkg/core"
	"github.com/subgrids/extension/pkg/protocol"
)

// fakeHost is an httptest WebSocket server standing in for the host. It
// records every message and answers requests through respond.
type fakeHost struct {
	srv *httptest.Server

	mu       sync.Mutex
	messages []protocol.Envelope
	conn     *ws.Conn
	respond  func(env protocol.Envelope) *protocol.AckPayload
	received chan protocol.Envelope
}

func newFakeHost(t *testing.T) *fakeHost {
	t.Helper()
	h := &fakeHost{
		respond:  func(protocol.Envelope) *protocol.AckPayload { return &protocol.AckPayload{} },
		received: make(chan protocol.Envelope, 100),
	}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		h.mu.Lock()
		h.conn = c
		h.mu.Unlock()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env protocol.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			h.mu.Lock()
			h.messages = append(h.messages, env)
			respond := h.respond
			h.mu.Unlock()
			h.received <- env

			if env.ID == "" || env.Type == protocol.TypeReply {
				continue
			}
			if ack := respond(env); ack != nil {
				if err := h.write(protocol.TypeAck, env.ID, "", ack); err != nil {
					t.Logf("ack error: %v", err)
					return
				}
			}
		}
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *fakeHost) url() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http")
}

func (h *fakeHost) setRespond(fn func(env protocol.Envelope) *protocol.AckPayload) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.respond = fn
}

func (h *fakeHost) write(msgType, id string, origin core.Origin, payload any) error {
	env, err := protocol.Encode(msgType, id, payload)
	if err != nil {
		return err
	}
	env.Origin = origin
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		return errors.New("no client connected")
	}
	return h.conn.WriteMessage(ws.TextMessage, data)
}

// push sends a message to the connected client.
func (h *fakeHost) push(t *testing.T, msgType, id string, origin core.Origin, payload any) {
	t.Helper()
	require.NoError(t, h.write(msgType, id, origin, payload))
}

// next waits for the next message of msgType.
func (h *fakeHost) next(t *testing.T, msgType string) protocol.Envelope {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case env := <-h.received:
			if env.Type == msgType {
				return env
			}
		case <-timeout:
			t.Fatalf("no %s message received", msgType)
			return protocol.Envelope{}
		}
	}
}

func newTestBridge(t *testing.T, h *fakeHost, scene *cache.SceneCache) (*Bridge, *dispatcher.Dispatcher) {
	t.Helper()
	b := New(Config{URL: h.url(), Secret: "test", AckTimeout: time.Second, Name: "subgrids", Version: "test"}, scene, nil)
	d, err := dispatcher.New(logging.NewDispatcherLogger(zerolog.Nop()))
	require.NoError(t, err)
	require.NoError(t, b.Connect(d))
	t.Cleanup(func() { _ = b.Close() })

	hello := h.next(t, protocol.TypeHello)
	var p protocol.HelloPayload
	require.NoError(t, hello.Decode(&p))
	assert.Equal(t, "subgrids", p.Name)
	return b, d
}

func TestUpdate_WritesThroughOnAck(t *testing.T) {
	h := newFakeHost(t)
	scene := cache.NewSceneCache()
	scene.Put(core.Placeable{ID: "t1", Kind: core.KindToken, X: 1, Y: 2})
	b, _ := newTestBridge(t, h, scene)

	opts := core.UpdateOptions{Origin: core.OriginFrameSync}
	require.NoError(t, b.Update(context.Background(), core.KindToken, "t1", core.Patch{X: core.Float(100), Rotation: core.Float(90)}, opts))

	env := h.next(t, protocol.TypeUpdateObject)
	assert.NotEmpty(t, env.ID)
	var p protocol.ObjectUpdate
	require.NoError(t, env.Decode(&p))
	assert.Equal(t, "t1", p.ID)
	assert.Equal(t, core.OriginFrameSync, p.Options.Origin)
	assert.False(t, p.Options.Animate)

	got, _ := scene.Lookup(core.KindToken, "t1")
	assert.Equal(t, 100.0, got.X)
	assert.Equal(t, 2.0, got.Y)
	assert.Equal(t, 90.0, got.Rotation)
}

func TestUpdate_Rejected(t *testing.T) {
	h := newFakeHost(t)
	h.setRespond(func(protocol.Envelope) *protocol.AckPayload {
		return &protocol.AckPayload{Error: "permission denied"}
	})
	scene := cache.NewSceneCache()
	scene.Put(core.Placeable{ID: "t1", Kind: core.KindToken, X: 1})
	b, _ := newTestBridge(t, h, scene)

	err := b.Update(context.Background(), core.KindToken, "t1", core.Patch{X: core.Float(100)}, core.UpdateOptions{})

	assert.ErrorContains(t, err, "permission denied")
	got, _ := scene.Lookup(core.KindToken, "t1")
	assert.Equal(t, 1.0, got.X, "rejected writes never reach the mirror")
}

func TestUpdate_Timeout(t *testing.T) {
	h := newFakeHost(t)
	h.setRespond(func(protocol.Envelope) *protocol.AckPayload { return nil })
	b := New(Config{URL: h.url(), AckTimeout: 50 * time.Millisecond}, cache.NewSceneCache(), nil)
	d, err := dispatcher.New(logging.NewDispatcherLogger(zerolog.Nop()))
	require.NoError(t, err)
	require.NoError(t, b.Connect(d))
	defer b.Close()

	err = b.Update(context.Background(), core.KindToken, "t1", core.Patch{X: core.Float(1)}, core.UpdateOptions{})

	assert.ErrorContains(t, err, "timeout")
}

func TestUpdate_ClosedWhileWaiting(t *testing.T) {
	h := newFakeHost(t)
	h.setRespond(func(protocol.Envelope) *protocol.AckPayload { return nil })
	b, _ := newTestBridge(t, h, cache.NewSceneCache())

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Update(context.Background(), core.KindToken, "t1", core.Patch{X: core.Float(1)}, core.UpdateOptions{})
	}()
	h.next(t, protocol.TypeUpdateObject)
	require.NoError(t, b.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("update did not return after close")
	}
}

func TestFlags(t *testing.T) {
	h := newFakeHost(t)
	stored := core.Grids{"deck": {Name: "deck", Master: core.ObjectRef{ID: "ship", Kind: core.KindToken}}}
	h.setRespond(func(env protocol.Envelope) *protocol.AckPayload {
		if env.Type == protocol.TypeGetFlag {
			data, _ := json.Marshal(stored)
			return &protocol.AckPayload{Data: data}
		}
		return &protocol.AckPayload{}
	})
	b, _ := newTestBridge(t, h, cache.NewSceneCache())
	flags := b.Flags()
	ctx := context.Background()

	grids, err := flags.LoadGrids(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, stored, grids)

	require.NoError(t, flags.SaveGrid(ctx, "s1", core.GridRecord{Name: "raft"}))
	require.NoError(t, flags.DeleteGrid(ctx, "s1", "deck"))

	h.next(t, protocol.TypeGetFlag)
	set := h.next(t, protocol.TypeSetFlag)
	var sp protocol.FlagPayload
	require.NoError(t, set.Decode(&sp))
	assert.Equal(t, "s1", sp.SceneID)
	assert.Equal(t, core.FlagScope, sp.Scope)
	assert.Equal(t, core.FlagKey, sp.Key)
	require.NotNil(t, sp.Record)
	assert.Equal(t, "raft", sp.Record.Name)

	unset := h.next(t, protocol.TypeUnsetFlag)
	var up protocol.FlagPayload
	require.NoError(t, unset.Decode(&up))
	assert.Equal(t, "deck", up.Name)
	assert.Nil(t, up.Record)
}

func TestFlags_EmptyScene(t *testing.T) {
	h := newFakeHost(t)
	b, _ := newTestBridge(t, h, cache.NewSceneCache())

	grids, err := b.Flags().LoadGrids(context.Background(), "s1")

	require.NoError(t, err)
	assert.Empty(t, grids)
}

func TestEvents_RepliedAfterHandling(t *testing.T) {
	h := newFakeHost(t)
	_, d := newTestBridge(t, h, cache.NewSceneCache())
	d.Register(protocol.TypePreUpdate, func(e dispatcher.Event) (any, error) {
		var p protocol.UpdatePayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, err
		}
		p.Options.Animate = false
		return p.Options, nil
	}, dispatcher.InLane("events", 10))

	h.push(t, protocol.TypePreUpdate, "e1", "", protocol.UpdatePayload{
		Kind:    core.KindToken,
		Object:  core.Placeable{ID: "ship"},
		Options: core.UpdateOptions{Animate: true},
	})

	reply := h.next(t, protocol.TypeReply)
	assert.Equal(t, "e1", reply.ID)
	var p struct {
		Result core.UpdateOptions `json:"result"`
		Error  string             `json:"error"`
	}
	require.NoError(t, reply.Decode(&p))
	assert.Empty(t, p.Error)
	assert.False(t, p.Result.Animate)
}

func TestEvents_FrameSyncAnsweredImmediately(t *testing.T) {
	h := newFakeHost(t)
	_, d := newTestBridge(t, h, cache.NewSceneCache())
	block := make(chan struct{})
	defer close(block)
	d.Register(protocol.TypePreUpdate, func(e dispatcher.Event) (any, error) {
		<-block
		return nil, nil
	}, dispatcher.InLane("events", 10))

	// the lane is stuck, yet tagged events still get their answer
	h.push(t, protocol.TypePreUpdate, "busy", "", protocol.UpdatePayload{})
	h.push(t, protocol.TypePreUpdate, "sync", core.OriginFrameSync, protocol.UpdatePayload{})

	reply := h.next(t, protocol.TypeReply)
	assert.Equal(t, "sync", reply.ID)
	var p protocol.ReplyPayload
	require.NoError(t, reply.Decode(&p))
	assert.Equal(t, dispatcher.Suppressed, p.Result)
}

func TestEvents_UnknownTypeReportsError(t *testing.T) {
	h := newFakeHost(t)
	newTestBridge(t, h, cache.NewSceneCache())

	h.push(t, "mystery", "m1", "", nil)

	reply := h.next(t, protocol.TypeReply)
	var p protocol.ReplyPayload
	require.NoError(t, reply.Decode(&p))
	assert.Contains(t, p.Error, "unknown event type")
}

func TestRenderer(t *testing.T) {
	h := newFakeHost(t)
	scene := cache.NewSceneCache()
	scene.SetGridSize(100)
	scene.Put(core.Placeable{ID: "ship", Kind: core.KindToken, Width: 1, Height: 1})
	b, _ := newTestBridge(t, h, scene)
	r := b.Renderer("#ff0000", 0.5)

	master := core.ObjectRef{ID: "ship", Kind: core.KindToken}
	f, err := subgrid.Create(context.Background(), "deck", 2, 3, &master, subgrid.Dependencies{Scene: scene, Writer: b}, subgrid.WithRenderer(r))
	require.NoError(t, err)

	draw := h.next(t, protocol.TypeDrawGrid)
	var p protocol.DrawGridPayload
	require.NoError(t, draw.Decode(&p))
	assert.Equal(t, "deck", p.Grid)
	assert.Equal(t, "#ff0000", p.Color)
	assert.Equal(t, 0.5, p.Alpha)
	assert.Equal(t, 200, p.Dimensions.Width)
	assert.Equal(t, core.GridPosition{X: 50, Y: 50}, p.Position)

	f.Destroy()
	erase := h.next(t, protocol.TypeEraseGrid)
	var e protocol.GridPayload
	require.NoError(t, erase.Decode(&e))
	assert.Equal(t, "deck", e.Grid)
}

// drop closes the server side of the current connection.
func (h *fakeHost) drop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn != nil {
		_ = h.conn.Close()
		h.conn = nil
	}
}

func TestReconnect_ReplaysHelloAndResumesWrites(t *testing.T) {
	h := newFakeHost(t)
	scene := cache.NewSceneCache()
	scene.Put(core.Placeable{ID: "t1", Kind: core.KindToken})
	b, _ := newTestBridge(t, h, scene)

	h.drop()

	hello := h.next(t, protocol.TypeHello)
	var p protocol.HelloPayload
	require.NoError(t, hello.Decode(&p))
	assert.Equal(t, "subgrids", p.Name)

	require.Eventually(t, func() bool {
		return b.Update(context.Background(), core.KindToken, "t1", core.Patch{X: core.Float(70)}, core.UpdateOptions{}) == nil
	}, 3*time.Second, 50*time.Millisecond)

	got, _ := scene.Lookup(core.KindToken, "t1")
	assert.Equal(t, 70.0, got.X)
}
