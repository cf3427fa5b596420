// Package gormstorage stores subgrid records in a relational database
// through GORM. The SQLite and Postgres backends embed it.
package gormstorage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/subgrids/extension/pkg/core"
)

// GridRow is one persisted subgrid record.
type GridRow struct {
	SceneID   string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"primaryKey;size:128"`
	Record    datatypes.JSON
	UpdatedAt time.Time
}

// TableName implements gorm's tabler.
func (GridRow) TableName() string {
	return "subgrid_records"
}

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
}

// Backend stores subgrid records in a GORM database.
type Backend struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New creates a GORM backend. Init must run before use.
func New(deps Dependencies) *Backend {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{db: deps.DB, logger: logger}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.db
}

// Init migrates the record table.
func (b *Backend) Init() error {
	if b.db == nil {
		return fmt.Errorf("gorm backend has no database")
	}
	if err := b.db.AutoMigrate(&GridRow{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LoadGrids returns every record of sceneID. Rows that no longer decode
// are skipped with a warning.
func (b *Backend) LoadGrids(ctx context.Context, sceneID string) (core.Grids, error) {
	var rows []GridRow
	if err := b.db.WithContext(ctx).Where("scene_id = ?", sceneID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading subgrids of scene %s: %w", sceneID, err)
	}

	grids := make(core.Grids, len(rows))
	for _, row := range rows {
		var rec core.GridRecord
		if err := json.Unmarshal(row.Record, &rec); err != nil {
			b.logger.Warn("skipping undecodable subgrid row", "scene", sceneID, "grid", row.Name, "error", err)
			continue
		}
		grids[row.Name] = rec
	}
	return grids, nil
}

// SaveGrid upserts rec under its name.
func (b *Backend) SaveGrid(ctx context.Context, sceneID string, rec core.GridRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding subgrid %s: %w", rec.Name, err)
	}
	row := GridRow{
		SceneID:   sceneID,
		Name:      rec.Name,
		Record:    datatypes.JSON(data),
		UpdatedAt: time.Now(),
	}
	err = b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scene_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"record", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("saving subgrid %s: %w", rec.Name, err)
	}
	return nil
}

// DeleteGrid removes the record called name.
func (b *Backend) DeleteGrid(ctx context.Context, sceneID, name string) error {
	err := b.db.WithContext(ctx).
		Where("scene_id = ? AND name = ?", sceneID, name).
		Delete(&GridRow{}).Error
	if err != nil {
		return fmt.Errorf("deleting subgrid %s: %w", name, err)
	}
	return nil
}
