// Package handlers decodes host messages and drives the subgrid manager.
// All handlers are meant to share one dispatcher lane so host events are
// applied in arrival order.
package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/subgrids/extension/internal/cache"
	"github.com/subgrids/extension/internal/dispatcher"
	"github.com/subgrids/extension/internal/manager"
	"github.com/subgrids/extension/pkg/core"
	"github.com/subgrids/extension/pkg/protocol"
)

// Lane is the dispatcher lane every host event runs on.
const Lane = "events"

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Context context.Context
	Scene   *cache.SceneCache
	Manager *manager.Manager
	Logger  *slog.Logger
}

// Service turns host messages into manager calls.
type Service struct {
	ctx     context.Context
	scene   *cache.SceneCache
	manager *manager.Manager
	logger  *slog.Logger
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	s := &Service{
		ctx:     deps.Context,
		scene:   deps.Scene,
		manager: deps.Manager,
		logger:  deps.Logger,
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Handlers maps every inbound message type to its handler.
func (s *Service) Handlers() map[string]dispatcher.HandlerFunc {
	return map[string]dispatcher.HandlerFunc{
		protocol.TypeReady:          s.handleReady,
		protocol.TypeCanvasReady:    s.handleCanvasReady,
		protocol.TypeCanvasTeardown: s.handleCanvasTeardown,
		protocol.TypePreUpdate:      s.handlePreUpdate,
		protocol.TypeUpdateObject:   s.handleUpdateObject,
		protocol.TypeCreateObject:   s.handleCreateObject,
		protocol.TypeDeleteObject:   s.handleDeleteObject,
		protocol.TypeUpdateScene:    s.handleUpdateScene,
		protocol.TypeCreateGrid:     s.handleCreateGrid,
		protocol.TypeAddToGrid:      s.handleAddToGrid,
		protocol.TypeRemoveFromGrid: s.handleRemoveFromGrid,
		protocol.TypeAutoAddGrid:    s.handleAutoAddGrid,
		protocol.TypeScuttleGrid:    s.handleScuttleGrid,
		protocol.TypeStatus:         s.handleStatus,
	}
}

// Register adds every handler to d with opts. Subgrid write-backs of
// committed objects go to the mirror only, on the same lane.
func (s *Service) Register(d *dispatcher.Dispatcher, opts ...dispatcher.Option) {
	for eventType, h := range s.Handlers() {
		d.Register(eventType, h, opts...)
	}
	d.RegisterMirror(protocol.TypeUpdateObject, s.handleSyncedObject, opts...)
}

func decode(e dispatcher.Event, v any) error {
	if err := (protocol.Envelope{Payload: e.Payload}).Decode(v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.Type, err)
	}
	return nil
}

// withKind fills in the layer of records sent without one.
func withKind(kind core.Kind, obj core.Placeable) core.Placeable {
	if obj.Kind == "" {
		obj.Kind = kind
	}
	return obj
}

func (s *Service) handleReady(e dispatcher.Event) (any, error) {
	var p protocol.ReadyPayload
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	s.manager.SetAuthoritative(p.Authoritative)
	s.logger.Info("host ready", "user", p.UserID, "authoritative", p.Authoritative)
	return p.Authoritative, nil
}

func (s *Service) handleCanvasReady(e dispatcher.Event) (any, error) {
	var scene core.Scene
	if err := decode(e, &scene); err != nil {
		return nil, err
	}
	s.scene.Load(scene)
	if err := s.manager.OnSceneReady(s.ctx, scene); err != nil {
		return nil, err
	}
	return s.manager.Len(), nil
}

func (s *Service) handleCanvasTeardown(dispatcher.Event) (any, error) {
	if err := s.manager.OnSceneUnload(s.ctx); err != nil {
		return nil, err
	}
	s.scene.Reset()
	return nil, nil
}

// handlePreUpdate answers with the options the host must commit with.
func (s *Service) handlePreUpdate(e dispatcher.Event) (any, error) {
	var p protocol.UpdatePayload
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	opts := p.Options
	if err := s.manager.OnPreUpdate(s.ctx, p.Kind, withKind(p.Kind, p.Object), p.Patch, &opts); err != nil {
		return opts, err
	}
	return opts, nil
}

func (s *Service) handleUpdateObject(e dispatcher.Event) (any, error) {
	var p protocol.UpdatePayload
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	record := withKind(p.Kind, p.Object)
	s.scene.Put(record)
	return nil, s.manager.OnPostUpdate(s.ctx, p.Kind, record, p.Patch, p.Options)
}

// handleSyncedObject records a passenger moved by a subgrid, possibly on
// another client. Markers derive their locals from the mirror when a record
// is reconciled, so it has to hold the committed position.
func (s *Service) handleSyncedObject(e dispatcher.Event) (any, error) {
	var p protocol.UpdatePayload
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	s.scene.Put(withKind(p.Kind, p.Object))
	return nil, nil
}

func (s *Service) handleCreateObject(e dispatcher.Event) (any, error) {
	var p protocol.ObjectPayload
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	s.scene.Put(withKind(p.Kind, p.Object))
	return nil, nil
}

func (s *Service) handleDeleteObject(e dispatcher.Event) (any, error) {
	var p protocol.ObjectPayload
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	s.scene.Delete(p.Kind, p.Object.ID)
	return nil, s.manager.OnDeleteObject(s.ctx, p.Kind, p.Object.ID)
}

func (s *Service) handleUpdateScene(e dispatcher.Event) (any, error) {
	var p protocol.SceneUpdatePayload
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	return nil, s.manager.OnSceneUpdate(s.ctx, p.Grids, p.Options)
}

func (s *Service) handleCreateGrid(e dispatcher.Event) (any, error) {
	var p protocol.CreateGridPayload
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	if p.Master.Kind == "" {
		p.Master.Kind = core.KindToken
	}
	f, err := s.manager.CreateFrame(s.ctx, manager.CreateRequest{
		Name:       p.Name,
		CellWidth:  p.CellWidth,
		CellHeight: p.CellHeight,
		Master:     p.Master,
		AutoAdd:    p.AutoAdd,
	})
	if f == nil {
		return nil, err
	}
	return f.Record(), err
}

func (s *Service) handleAddToGrid(e dispatcher.Event) (any, error) {
	var p protocol.AddToGridPayload
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	return s.manager.AddObjects(s.ctx, p.Grid, p.Objects)
}

func (s *Service) handleRemoveFromGrid(e dispatcher.Event) (any, error) {
	var p protocol.RemoveFromGridPayload
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	return nil, s.manager.RemoveObject(s.ctx, p.Grid, p.ID)
}

func (s *Service) handleAutoAddGrid(e dispatcher.Event) (any, error) {
	var p protocol.GridPayload
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	return s.manager.AutoAdd(s.ctx, p.Grid)
}

func (s *Service) handleScuttleGrid(e dispatcher.Event) (any, error) {
	var p protocol.GridPayload
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	return nil, s.manager.Scuttle(s.ctx, p.Grid)
}

func (s *Service) handleStatus(dispatcher.Event) (any, error) {
	return s.manager.Status(), nil
}
