package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/subgrids/extension/pkg/core"
)

// Event represents an incoming message from the host.
type Event struct {
	Type      string
	ID        string
	Origin    core.Origin
	Payload   json.RawMessage
	Timestamp time.Time

	// Reply, when set, is called exactly once with the handler's outcome.
	// Queued handlers report through it after they ran.
	Reply func(result any, err error)
}

func (e Event) reply(result any, err error) {
	if e.Reply != nil {
		e.Reply(result, err)
	}
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Suppressed is the result of events dropped at the entry point.
const Suppressed = "suppressed"

// Queued is the result of events handed to a queue.
const Queued = "queued"

// Option configures handler registration.
type Option func(*config)

type config struct {
	lane       string
	bufferSize int
	blocking   bool
	logged     bool
}

// InLane makes the handler run on the named lane's goroutine. Handlers
// sharing a lane run one at a time in dispatch order.
func InLane(lane string, size int) Option {
	return func(c *config) {
		c.lane = lane
		c.bufferSize = size
	}
}

// Blocking makes a queued handler block when the lane is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

type queued struct {
	e Event
	h HandlerFunc
}

// Dispatcher routes events to registered handlers. Events written back by
// subgrids themselves never reach a handler; only mirror handlers see them.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	mirrors  map[string]HandlerFunc
	logger   Logger

	// OTEL metrics
	queueSize  metric.Int64ObservableGauge
	processed  metric.Int64Counter
	dropped    metric.Int64Counter
	suppressed metric.Int64Counter

	// Track lanes for gauge callback
	mu    sync.RWMutex
	lanes map[string]chan queued
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		mirrors:  make(map[string]HandlerFunc),
		lanes:    make(map[string]chan queued),
		logger:   logger,
	}

	// Get meter from global OTel provider (returns no-op if not configured)
	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events in queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for lane, buf := range d.lanes {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(attribute.String("lane", lane)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	d.suppressed, err = m.Int64Counter(
		"dispatcher.events.suppressed",
		metric.WithDescription("Total subgrid write-back events dropped before any handler"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating suppressed counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given event type with optional configuration.
func (d *Dispatcher) Register(eventType string, h HandlerFunc, opts ...Option) {
	d.handlers[eventType] = d.wrap(eventType, h, opts)
}

// RegisterMirror adds a handler that only sees suppressed write-backs of the
// given type. It keeps local state in step with what subgrids wrote and
// must not drive subgrids itself. Its result is not replied.
func (d *Dispatcher) RegisterMirror(eventType string, h HandlerFunc, opts ...Option) {
	d.mirrors[eventType] = d.wrap(eventType, h, opts)
}

func (d *Dispatcher) wrap(eventType string, h HandlerFunc, opts []Option) HandlerFunc {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.logged {
		handler = d.withLogging(eventType, handler)
	}

	if cfg.bufferSize > 0 {
		handler = d.withLane(eventType, cfg.lane, cfg.bufferSize, cfg.blocking, handler)
	}
	return handler
}

// Dispatch routes an event to its registered handler. Events tagged with the
// subgrid write-back origin are answered with Suppressed and only reach the
// mirror handler of their type.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	if e.Origin == core.OriginFrameSync {
		d.suppress(e)
		e.reply(Suppressed, nil)
		return Suppressed, nil
	}

	h, ok := d.handlers[e.Type]
	if !ok {
		err := fmt.Errorf("unknown event type: %s", e.Type)
		e.reply(nil, err)
		return nil, err
	}

	result, err := h(e)
	if result != Queued {
		e.reply(result, err)
	}
	return result, err
}

func (d *Dispatcher) suppress(e Event) {
	d.suppressed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", e.Type)))
	h, ok := d.mirrors[e.Type]
	if !ok {
		return
	}
	e.Reply = nil
	if _, err := h(e); err != nil {
		d.logger.Error("mirroring write-back failed", "type", e.Type, "id", e.ID, "error", err)
	}
}

// HasHandler returns true if a handler is registered for the event type.
func (d *Dispatcher) HasHandler(eventType string) bool {
	_, ok := d.handlers[eventType]
	return ok
}

func (d *Dispatcher) lane(name string, size int) chan queued {
	d.mu.Lock()
	defer d.mu.Unlock()
	if buf, ok := d.lanes[name]; ok {
		return buf
	}

	buf := make(chan queued, size)
	d.lanes[name] = buf
	laneAttr := attribute.String("lane", name)

	go func() {
		for q := range buf {
			result, err := q.h(q.e)
			q.e.reply(result, err)
			d.processed.Add(context.Background(), 1, metric.WithAttributes(laneAttr, attribute.String("type", q.e.Type)))
		}
	}()
	return buf
}

func (d *Dispatcher) withLane(eventType, lane string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	if lane == "" {
		lane = eventType
	}
	buffer := d.lane(lane, size)
	typeAttr := attribute.String("type", eventType)

	if blocking {
		return func(e Event) (any, error) {
			buffer <- queued{e: e, h: h}
			return Queued, nil
		}
	}

	return func(e Event) (any, error) {
		select {
		case buffer <- queued{e: e, h: h}:
			return Queued, nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(typeAttr))
			return nil, fmt.Errorf("queue full: %s", lane)
		}
	}
}

func (d *Dispatcher) withLogging(eventType string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "type", eventType, "id", e.ID, "payload", len(e.Payload))

		result, err := h(e)

		if err != nil {
			d.logger.Error("event failed", "type", eventType, "id", e.ID, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "type", eventType, "id", e.ID, "duration", time.Since(start))
		}

		return result, err
	}
}
