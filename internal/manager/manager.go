// Package manager owns the subgrids of the active scene session and turns
// host events into subgrid operations.
package manager

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/subgrids/extension/internal/cache"
	"github.com/subgrids/extension/internal/host"
	"github.com/subgrids/extension/internal/session"
	"github.com/subgrids/extension/internal/subgrid"
	"github.com/subgrids/extension/pkg/core"
)

var (
	// ErrUnknownFrame is returned by commands naming a subgrid that does not exist.
	ErrUnknownFrame = errors.New("unknown subgrid")
	// ErrDuplicateName is returned when creating a subgrid under a taken name.
	ErrDuplicateName = errors.New("subgrid name already in use")
	// ErrMasterInUse is returned when an object already drives another subgrid.
	ErrMasterInUse = errors.New("object already drives a subgrid")
	// ErrNotAuthoritative is returned by commands issued on a read-only client.
	ErrNotAuthoritative = errors.New("client is not authoritative for the scene")
)

// Recorder receives telemetry about master updates.
type Recorder interface {
	RecordPull(f *subgrid.Frame, passengers int, took time.Duration, err error)
}

// Config wires a Manager to the host.
type Config struct {
	Scene    host.Scene
	Writer   host.ObjectWriter
	Store    host.FlagStore
	Session  *session.Context
	Members  *cache.MembershipCache
	Renderer subgrid.Renderer
	Recorder Recorder
	Logger   *slog.Logger
}

// Manager is the roster of subgrids for one scene session.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics

	mu     sync.RWMutex
	frames map[string]*subgrid.Frame
}

var _ host.EventSink = (*Manager)(nil)

// New creates a Manager. Metrics use the global OTel meter provider.
func New(cfg Config) (*Manager, error) {
	if cfg.Session == nil {
		cfg.Session = session.NewContext()
	}
	if cfg.Members == nil {
		cfg.Members = cache.NewMembershipCache()
	}
	m := &Manager{
		cfg:    cfg,
		logger: cfg.Logger,
		frames: make(map[string]*subgrid.Frame),
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	var err error
	if m.metrics, err = newMetrics(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Len returns the number of live subgrids.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.frames)
}

// Frames returns the live subgrids ordered by name.
func (m *Manager) Frames() []*subgrid.Frame {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*subgrid.Frame, 0, len(m.frames))
	for _, f := range m.frames {
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b *subgrid.Frame) int {
		return cmp.Compare(a.Name(), b.Name())
	})
	return out
}

// Frame returns the subgrid called name.
func (m *Manager) Frame(name string) (*subgrid.Frame, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.frames[name]
	return f, ok
}

// FrameForMaster returns the subgrid driven by the object id.
func (m *Manager) FrameForMaster(id string) (*subgrid.Frame, bool) {
	name, ok := m.cfg.Members.MasterOf(id)
	if !ok {
		return nil, false
	}
	return m.Frame(name)
}

func (m *Manager) register(f *subgrid.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames[f.Name()] = f
}

// drop runs synchronously from Frame.Destroy.
func (m *Manager) drop(f *subgrid.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frames[f.Name()] == f {
		delete(m.frames, f.Name())
	}
}

func (m *Manager) deps() subgrid.Dependencies {
	return subgrid.Dependencies{
		Scene:   m.cfg.Scene,
		Writer:  m.cfg.Writer,
		Persist: m.persist,
		Members: m.cfg.Members,
		Logger:  m.logger,
	}
}

func (m *Manager) options() []subgrid.Option {
	return []subgrid.Option{
		subgrid.WithSkipUpdates(!m.cfg.Session.Authoritative()),
		subgrid.WithRenderer(m.cfg.Renderer),
		subgrid.WithOnDestroy(m.drop),
	}
}

func (m *Manager) persist(ctx context.Context, rec core.GridRecord) error {
	if m.cfg.Store == nil {
		return nil
	}
	return m.cfg.Store.SaveGrid(ctx, m.cfg.Session.Scene().ID, rec)
}

// teardown destroys every frame. Destroy hooks remove them from the roster.
func (m *Manager) teardown() {
	for _, f := range m.Frames() {
		f.Destroy()
	}
	m.cfg.Members.Reset()
}

// OnSceneReady starts a session for scene and restores its persisted
// subgrids. Records whose master is gone are dropped with a warning.
func (m *Manager) OnSceneReady(ctx context.Context, scene core.Scene) error {
	m.teardown()
	m.cfg.Session.Begin(scene)

	grids := scene.Grids
	if grids == nil && m.cfg.Store != nil {
		var err error
		if grids, err = m.cfg.Store.LoadGrids(ctx, scene.ID); err != nil {
			return fmt.Errorf("loading subgrids of scene %s: %w", scene.ID, err)
		}
	}

	frames, err := subgrid.RestoreAll(ctx, grids, m.deps(), m.options()...)
	for _, f := range frames {
		m.register(f)
	}
	if err != nil {
		m.logger.Warn("dropped subgrids on restore", "scene", scene.ID, "error", err)
	}
	m.logger.Info("scene ready", "scene", scene.ID, "subgrids", len(frames), "authoritative", scene.Authoritative)
	return nil
}

// SetAuthoritative hands write authority to or away from this client.
func (m *Manager) SetAuthoritative(v bool) {
	m.cfg.Session.SetAuthoritative(v)
	for _, f := range m.Frames() {
		f.SetSkipUpdates(!v)
	}
}

// OnSceneUnload destroys every subgrid and ends the session.
func (m *Manager) OnSceneUnload(ctx context.Context) error {
	m.teardown()
	m.cfg.Session.End()
	return nil
}

// OnPreUpdate runs before the host commits an update. Updates of subgrid
// members are never animated. When the object is a master on the
// authoritative client the subgrid follows it before the commit.
func (m *Manager) OnPreUpdate(ctx context.Context, kind core.Kind, prior core.Placeable, patch core.Patch, opts *core.UpdateOptions) error {
	if opts.FromFrame() {
		m.logger.Debug("ignoring subgrid write-back", "kind", kind, "id", prior.ID)
		return nil
	}
	if !m.cfg.Members.Contains(prior.ID) {
		return nil
	}
	opts.Animate = false

	if !m.cfg.Session.Authoritative() {
		return nil
	}
	f, ok := m.FrameForMaster(prior.ID)
	if !ok {
		return nil
	}
	if prior.Kind == "" {
		prior.Kind = kind
	}

	passengers := len(f.Markers())
	start := time.Now()
	err := f.UpdateFromMaster(ctx, prior, patch)
	took := time.Since(start)

	m.metrics.pulls.Add(ctx, 1, gridAttr(f.Name()))
	if m.cfg.Recorder != nil {
		m.cfg.Recorder.RecordPull(f, passengers, took, err)
	}
	if err != nil {
		m.metrics.pullErrors.Add(ctx, 1, gridAttr(f.Name()))
		return fmt.Errorf("following master %s: %w", prior.ID, err)
	}
	m.logger.Debug("subgrid followed master", "grid", f.Name(), "passengers", passengers, "duration", took)
	return nil
}

// OnPostUpdate runs after the host committed an update. Passengers moved
// on their own get their markers refreshed.
func (m *Manager) OnPostUpdate(ctx context.Context, kind core.Kind, record core.Placeable, patch core.Patch, opts core.UpdateOptions) error {
	if opts.FromFrame() {
		return nil
	}
	if record.Kind == "" {
		record.Kind = kind
	}
	for _, name := range m.cfg.Members.Grids(record.ID) {
		f, ok := m.Frame(name)
		if !ok || f.IsMaster(record.ID) {
			continue
		}
		f.UpdateObject(record, patch)
	}
	return nil
}

// OnSceneUpdate applies subgrid records persisted by the authoritative
// client. The authoritative client ignores its own echo.
func (m *Manager) OnSceneUpdate(ctx context.Context, grids core.Grids, opts core.UpdateOptions) error {
	if m.cfg.Session.Authoritative() || grids == nil {
		return nil
	}

	names := make([]string, 0, len(grids))
	for name := range grids {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		rec := grids[name]
		if rec.Name == "" {
			rec.Name = name
		}
		if f, ok := m.Frame(name); ok {
			if err := f.Reconcile(ctx, rec); err != nil {
				m.logger.Warn("failed to reconcile subgrid", "grid", name, "error", err)
			}
			continue
		}
		if f, ok := m.FrameForMaster(rec.Master.ID); ok {
			if _, kept := grids[f.Name()]; !kept {
				m.renamed(ctx, f, rec)
				continue
			}
		}
		f, err := subgrid.Deserialize(ctx, rec, m.deps(), m.options()...)
		if err != nil {
			m.logger.Warn("failed to restore subgrid", "grid", name, "error", err)
			continue
		}
		m.register(f)
	}

	for _, f := range m.Frames() {
		if _, ok := grids[f.Name()]; !ok {
			f.Destroy()
		}
	}
	return nil
}

// renamed reconciles f under the record's new name and re-keys the roster.
func (m *Manager) renamed(ctx context.Context, f *subgrid.Frame, rec core.GridRecord) {
	old := f.Name()
	if err := f.Reconcile(ctx, rec); err != nil {
		m.logger.Warn("failed to reconcile subgrid", "grid", old, "error", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frames[old] == f {
		delete(m.frames, old)
	}
	if f.State() != subgrid.StateDestroyed {
		m.frames[f.Name()] = f
	}
	m.logger.Info("subgrid renamed", "from", old, "to", f.Name())
}

// OnDeleteObject runs after the host deleted an object. Passengers are
// detached. A deleted master takes its subgrid with it, and the
// authoritative client also deletes the record.
func (m *Manager) OnDeleteObject(ctx context.Context, kind core.Kind, id string) error {
	if f, ok := m.FrameForMaster(id); ok {
		name := f.Name()
		f.Destroy()
		m.logger.Info("subgrid master deleted", "grid", name, "kind", kind, "id", id)
		if m.cfg.Session.Authoritative() && m.cfg.Store != nil {
			if err := m.cfg.Store.DeleteGrid(ctx, m.cfg.Session.Scene().ID, name); err != nil {
				return fmt.Errorf("deleting subgrid %s: %w", name, err)
			}
		}
	}

	var result *multierror.Error
	for _, name := range m.cfg.Members.Grids(id) {
		f, ok := m.Frame(name)
		if !ok {
			continue
		}
		if err := f.Remove(ctx, id); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// CreateRequest describes a new subgrid.
type CreateRequest struct {
	Name       string
	CellWidth  int
	CellHeight int
	Master     core.ObjectRef
	AutoAdd    bool
}

// CreateFrame creates a subgrid driven by req.Master. An empty name gets a
// generated one.
func (m *Manager) CreateFrame(ctx context.Context, req CreateRequest) (*subgrid.Frame, error) {
	if !m.cfg.Session.Authoritative() {
		return nil, ErrNotAuthoritative
	}
	name := req.Name
	if name == "" {
		name = "grid" + uuid.New().String()
	}
	if _, ok := m.Frame(name); ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	if other, ok := m.FrameForMaster(req.Master.ID); ok {
		return nil, fmt.Errorf("%w: %s drives %s", ErrMasterInUse, req.Master.ID, other.Name())
	}

	master := req.Master
	f, err := subgrid.Create(ctx, name, req.CellWidth, req.CellHeight, &master, m.deps(), m.options()...)
	if err != nil {
		return nil, fmt.Errorf("creating subgrid %s: %w", name, err)
	}
	m.register(f)
	m.logger.Info("subgrid created", "grid", name, "master", master.ID, "cells", fmt.Sprintf("%dx%d", req.CellWidth, req.CellHeight))

	if req.AutoAdd {
		if _, err := m.AutoAdd(ctx, name); err != nil {
			return f, err
		}
	}
	return f, nil
}

func (m *Manager) mutable(name string) (*subgrid.Frame, error) {
	if !m.cfg.Session.Authoritative() {
		return nil, ErrNotAuthoritative
	}
	f, ok := m.Frame(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFrame, name)
	}
	return f, nil
}

// AutoAdd attaches every object inside the subgrid called name.
func (m *Manager) AutoAdd(ctx context.Context, name string) ([]core.ObjectRef, error) {
	f, err := m.mutable(name)
	if err != nil {
		return nil, err
	}
	added, err := f.AutoAddObjects(ctx)
	m.metrics.attached.Add(ctx, int64(len(added)), gridAttr(name))
	if err != nil {
		return added, fmt.Errorf("auto-adding to %s: %w", name, err)
	}
	return added, nil
}

// AddObjects attaches refs to the subgrid called name.
func (m *Manager) AddObjects(ctx context.Context, name string, refs []core.ObjectRef) ([]core.ObjectRef, error) {
	f, err := m.mutable(name)
	if err != nil {
		return nil, err
	}
	added, err := f.AddControlled(ctx, refs)
	m.metrics.attached.Add(ctx, int64(len(added)), gridAttr(name))
	if err != nil {
		return added, fmt.Errorf("adding to %s: %w", name, err)
	}
	return added, nil
}

// RemoveObject detaches the object id from the subgrid called name.
func (m *Manager) RemoveObject(ctx context.Context, name, id string) error {
	f, err := m.mutable(name)
	if err != nil {
		return err
	}
	return f.Remove(ctx, id)
}

// Scuttle destroys the subgrid called name and deletes its record.
func (m *Manager) Scuttle(ctx context.Context, name string) error {
	f, err := m.mutable(name)
	if err != nil {
		return err
	}
	f.Destroy()
	if m.cfg.Store != nil {
		if err := m.cfg.Store.DeleteGrid(ctx, m.cfg.Session.Scene().ID, name); err != nil {
			return fmt.Errorf("deleting subgrid %s: %w", name, err)
		}
	}
	m.logger.Info("subgrid scuttled", "grid", name)
	return nil
}

// GridStatus summarizes one live subgrid.
type GridStatus struct {
	Name       string         `json:"name"`
	Master     core.ObjectRef `json:"master"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Angle      float64        `json:"angle"`
	Passengers int            `json:"passengers"`
}

// Status is a point-in-time summary of the session.
type Status struct {
	Time          time.Time    `json:"time"`
	Scene         string       `json:"scene"`
	Authoritative bool         `json:"authoritative"`
	Grids         []GridStatus `json:"grids"`
}

// Status reads every frame, so it must run where frames are mutated.
func (m *Manager) Status() Status {
	scene := m.cfg.Session.Scene()
	st := Status{
		Time:          time.Now(),
		Scene:         scene.ID,
		Authoritative: scene.Authoritative,
		Grids:         []GridStatus{},
	}
	for _, f := range m.Frames() {
		pos := f.Position()
		var master core.ObjectRef
		if mk := f.Master(); mk != nil {
			master = mk.Ref()
		}
		st.Grids = append(st.Grids, GridStatus{
			Name:       f.Name(),
			Master:     master,
			X:          pos.X(),
			Y:          pos.Y(),
			Angle:      f.Angle(),
			Passengers: len(f.Markers()),
		})
	}
	return st
}
