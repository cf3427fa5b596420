// Package hostbridge connects subgrids to the tabletop host over a
// WebSocket. The host pushes scene and object events; the bridge answers
// them and issues object updates and flag writes on behalf of subgrids.
package hostbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/subgrids/extension/internal/cache"
	"github.com/subgrids/extension/internal/dispatcher"
	"github.com/subgrids/extension/internal/host"
	"github.com/subgrids/extension/pkg/core"
	"github.com/subgrids/extension/pkg/protocol"
)

const defaultAckTimeout = 10 * time.Second

// Config holds WebSocket bridge configuration.
type Config struct {
	URL        string
	Secret     string
	AckTimeout time.Duration
	Name       string
	Version    string
}

// Bridge is the host transport. It implements host.ObjectWriter.
type Bridge struct {
	conn   *connection
	cfg    Config
	scene  *cache.SceneCache
	logger *slog.Logger
}

var _ host.ObjectWriter = (*Bridge)(nil)

// New creates a bridge that mirrors committed writes into scene.
func New(cfg Config, scene *cache.SceneCache, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = defaultAckTimeout
	}
	return &Bridge{
		conn:   newConnection(logger),
		cfg:    cfg,
		scene:  scene,
		logger: logger,
	}
}

// Connect dials the host and starts routing its messages to d.
func (b *Bridge) Connect(d *dispatcher.Dispatcher) error {
	b.conn.onMessage = func(env protocol.Envelope) {
		d.Dispatch(b.event(env))
	}
	if err := b.conn.dial(b.cfg.URL, b.cfg.Secret); err != nil {
		return err
	}

	hello, err := marshalEnvelope(protocol.TypeHello, "", protocol.HelloPayload{Name: b.cfg.Name, Version: b.cfg.Version})
	if err != nil {
		return err
	}
	b.conn.mu.Lock()
	b.conn.cachedHello = hello
	b.conn.mu.Unlock()
	b.conn.send(hello)
	return nil
}

// Close disconnects from the host.
func (b *Bridge) Close() error {
	return b.conn.close()
}

// event turns a host message into a dispatcher event that replies to the host.
func (b *Bridge) event(env protocol.Envelope) dispatcher.Event {
	e := dispatcher.Event{
		Type:      env.Type,
		ID:        env.ID,
		Origin:    env.Origin,
		Payload:   env.Payload,
		Timestamp: time.Now(),
	}
	if env.ID != "" {
		e.Reply = func(result any, err error) { b.reply(env, result, err) }
	}
	return e
}

func (b *Bridge) reply(req protocol.Envelope, result any, err error) {
	p := protocol.ReplyPayload{Result: result}
	if err != nil {
		p.Error = err.Error()
	}
	if err := b.sendEnvelope(protocol.TypeReply, req.ID, p); err != nil {
		b.logger.Error("failed to reply to host", "type", req.Type, "id", req.ID, "error", err)
	}
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType, id string, payload any) ([]byte, error) {
	env, err := protocol.Encode(msgType, id, payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope pushes a message to the write loop (fire-and-forget).
func (b *Bridge) sendEnvelope(msgType, id string, payload any) error {
	data, err := marshalEnvelope(msgType, id, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// request sends a message and waits for the host's ack.
func (b *Bridge) request(ctx context.Context, msgType string, payload any) (protocol.AckPayload, error) {
	env, err := protocol.Encode(msgType, uuid.New().String(), payload)
	if err != nil {
		return protocol.AckPayload{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return b.conn.sendAndWait(ctx, env, b.cfg.AckTimeout)
}

// Update asks the host to update one object and waits until it committed.
// The committed patch is applied to the scene mirror, since the host's own
// echo of a subgrid write-back is suppressed.
func (b *Bridge) Update(ctx context.Context, kind core.Kind, id string, patch core.Patch, opts core.UpdateOptions) error {
	_, err := b.request(ctx, protocol.TypeUpdateObject, protocol.ObjectUpdate{
		Kind:    kind,
		ID:      id,
		Patch:   patch,
		Options: opts,
	})
	if err != nil {
		return err
	}
	if b.scene != nil {
		b.scene.Apply(kind, id, patch)
	}
	return nil
}
