package hostbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/subgrids/extension/internal/host"
	"github.com/subgrids/extension/pkg/core"
	"github.com/subgrids/extension/pkg/protocol"
)

// Flags stores subgrid records in the host's scene flags.
type Flags struct {
	b *Bridge
}

var _ host.FlagStore = (*Flags)(nil)

// Flags returns the host-backed flag store.
func (b *Bridge) Flags() *Flags {
	return &Flags{b: b}
}

// LoadGrids reads every subgrid record of sceneID.
func (f *Flags) LoadGrids(ctx context.Context, sceneID string) (core.Grids, error) {
	ack, err := f.b.request(ctx, protocol.TypeGetFlag, protocol.FlagPayload{
		SceneID: sceneID,
		Scope:   core.FlagScope,
		Key:     core.FlagKey,
	})
	if err != nil {
		return nil, err
	}
	grids := core.Grids{}
	if len(ack.Data) == 0 || string(ack.Data) == "null" {
		return grids, nil
	}
	if err := json.Unmarshal(ack.Data, &grids); err != nil {
		return nil, fmt.Errorf("decode subgrid flags: %w", err)
	}
	return grids, nil
}

// SaveGrid writes one record under its name.
func (f *Flags) SaveGrid(ctx context.Context, sceneID string, rec core.GridRecord) error {
	_, err := f.b.request(ctx, protocol.TypeSetFlag, protocol.FlagPayload{
		SceneID: sceneID,
		Scope:   core.FlagScope,
		Key:     core.FlagKey,
		Name:    rec.Name,
		Record:  &rec,
	})
	return err
}

// DeleteGrid removes the record called name.
func (f *Flags) DeleteGrid(ctx context.Context, sceneID, name string) error {
	_, err := f.b.request(ctx, protocol.TypeUnsetFlag, protocol.FlagPayload{
		SceneID: sceneID,
		Scope:   core.FlagScope,
		Key:     core.FlagKey,
		Name:    name,
	})
	return err
}
