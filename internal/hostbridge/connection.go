package hostbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	ws "github.com/gorilla/websocket"

	"github.com/subgrids/extension/pkg/protocol"
)

const (
	sendChSize   = 10_000
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
)

// ErrClosed is returned by requests pending when the bridge shuts down.
var ErrClosed = errors.New("host connection closed")

// connection manages a WebSocket connection with a single write goroutine.
// Acks are matched to waiters by message id; everything else goes to onMessage.
type connection struct {
	mu     sync.Mutex
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{} // closed on shutdown
	closed bool

	// loopStop is closed when the loops of the current conn must exit.
	loopStop     chan struct{}
	reconnecting bool

	ctx    context.Context
	cancel context.CancelFunc

	pendingMu sync.Mutex
	pending   map[string]chan protocol.AckPayload

	wsURL  string
	secret string

	// Cached hello message for reconnect replay.
	cachedHello []byte

	onMessage func(protocol.Envelope)
	logger    *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{
		sendCh:    make(chan []byte, sendChSize),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		pending:   make(map[string]chan protocol.AckPayload),
		onMessage: func(protocol.Envelope) {},
		logger:    logger,
	}
}

// dial connects to the WebSocket server and starts read/write loops.
func (c *connection) dial(rawURL, secret string) error {
	c.wsURL = rawURL
	c.secret = secret

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}

	if !c.start(conn) {
		_ = conn.Close()
		return ErrClosed
	}
	return nil
}

// start installs conn and runs one read and one write loop bound to it.
// It reports false when the connection was already closed.
func (c *connection) start(conn *ws.Conn) bool {
	stop := make(chan struct{})
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	c.loopStop = stop
	c.mu.Unlock()

	go c.writeLoop(conn, stop)
	go c.readLoop(conn, stop)
	return true
}

// dialOnce performs a single WebSocket dial with the secret query param.
func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", c.secret)
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// writeLoop drains sendCh onto conn. It exits on shutdown, when its
// conn is replaced, or on a write error, which triggers a reconnect.
func (c *connection) writeLoop(conn *ws.Conn, stop <-chan struct{}) {
	for {
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case data := <-c.sendCh:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				go c.reconnect(conn)
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				go c.reconnect(conn)
				return
			}
		}
	}
}

// readLoop reads host messages. Acks are routed to their waiter without
// passing through onMessage, so a handler blocked on a request never
// starves its own ack.
func (c *connection) readLoop(conn *ws.Conn, stop <-chan struct{}) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			case <-stop:
				return
			default:
			}
			c.logger.Warn("WebSocket read error", "error", err)
			go c.reconnect(conn)
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Debug("Malformed message received", "raw", string(message))
			continue
		}

		if env.Type == protocol.TypeAck {
			c.resolve(env)
			continue
		}
		c.onMessage(env)
	}
}

func (c *connection) resolve(env protocol.Envelope) {
	var ack protocol.AckPayload
	if err := env.Decode(&ack); err != nil {
		ack.Error = fmt.Sprintf("malformed ack: %v", err)
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[env.ID]
	delete(c.pending, env.ID)
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Debug("Ack for unknown request", "id", env.ID)
		return
	}
	ch <- ack
}

// reconnect replaces broken with a fresh connection using exponential
// backoff. Only the first loop to notice a broken conn reconnects; the
// other loop is stopped. On success the cached hello is replayed before
// new loops start.
func (c *connection) reconnect(broken *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.reconnecting || c.conn != broken {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	close(c.loopStop)
	_ = c.conn.Close()
	c.conn = nil
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = maxBackoff
	b.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		conn, err := c.dialOnce()
		if err != nil {
			return err
		}

		c.mu.Lock()
		cached := c.cachedHello
		c.mu.Unlock()

		// Replay hello so the host knows which client reconnected.
		if cached != nil {
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				_ = conn.Close()
				return fmt.Errorf("set deadline for hello replay: %w", err)
			}
			if err := conn.WriteMessage(ws.TextMessage, cached); err != nil {
				_ = conn.Close()
				return fmt.Errorf("replay hello: %w", err)
			}
		}

		if !c.start(conn) {
			_ = conn.Close()
			return backoff.Permanent(ErrClosed)
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Reconnect dial failed", "attempt", attempt, "backoff", wait, "error", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxReconnect), c.ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect, "error", err)
		return
	}

	c.logger.Info("WebSocket reconnected", "attempt", attempt)
}

// send pushes data to the write loop. Non-blocking; drops if channel full.
func (c *connection) send(data []byte) {
	select {
	case c.sendCh <- data:
	default:
		c.logger.Warn("WebSocket send channel full, dropping message")
	}
}

// sendAndWait sends env and blocks until the host acknowledges it, the
// timeout expires or ctx is done.
func (c *connection) sendAndWait(ctx context.Context, env protocol.Envelope, timeout time.Duration) (protocol.AckPayload, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return protocol.AckPayload{}, fmt.Errorf("marshal %s envelope: %w", env.Type, err)
	}

	ch := make(chan protocol.AckPayload, 1)
	c.pendingMu.Lock()
	c.pending[env.ID] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, env.ID)
		c.pendingMu.Unlock()
	}()

	c.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ack := <-ch:
		if ack.Error != "" {
			return ack, fmt.Errorf("host rejected %s: %s", env.Type, ack.Error)
		}
		return ack, nil
	case <-timer.C:
		return protocol.AckPayload{}, fmt.Errorf("timeout waiting for ack of %s %s", env.Type, env.ID)
	case <-ctx.Done():
		return protocol.AckPayload{}, ctx.Err()
	case <-c.done:
		return protocol.AckPayload{}, fmt.Errorf("%w while waiting for ack of %s", ErrClosed, env.Type)
	}
}

// close sends a WebSocket close frame and shuts down all goroutines.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.cancel()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		// WriteControl is safe alongside the write loop.
		_ = conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		return conn.Close()
	}
	return nil
}
