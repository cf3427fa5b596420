package storage

import (
	"fmt"
	"log/slog"

	"github.com/subgrids/extension/internal/config"
	"github.com/subgrids/extension/internal/host"
	gdatastore "github.com/subgrids/extension/internal/storage/gdata"
	gormstorage "github.com/subgrids/extension/internal/storage/gorm"
	"github.com/subgrids/extension/internal/storage/memory"
	"github.com/subgrids/extension/internal/storage/postgres"
	sqlitestorage "github.com/subgrids/extension/internal/storage/sqlite"
)

// NewBackend creates a storage backend based on configuration. hostFlags is
// used for the "host" type, which keeps records in the scene's own flags.
func NewBackend(cfg config.StorageConfig, hostFlags host.FlagStore, logger *slog.Logger) (Backend, error) {
	switch cfg.Type {
	case "", "host":
		if hostFlags == nil {
			return nil, fmt.Errorf("host storage requires a host connection")
		}
		return Passthrough{FlagStore: hostFlags}, nil
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlitestorage.New(sqlitestorage.Config{
			Path:         cfg.SQLite.Path,
			DumpInterval: cfg.SQLite.DumpInterval,
		}, logger)
	case "postgres":
		pg, err := postgres.New(logger)
		if err != nil {
			if logger != nil {
				logger.Error("Failed to connect to Postgres DB, falling back to SQLite", "error", err)
			}
			return sqlitestorage.New(sqlitestorage.Config{Path: cfg.SQLite.Path}, logger)
		}
		return pg, nil
	case "gdata":
		return gdatastore.New(cfg.GData.AppName), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

var (
	_ Backend = (*memory.Backend)(nil)
	_ Backend = (*gormstorage.Backend)(nil)
	_ Backend = (*sqlitestorage.Backend)(nil)
	_ Backend = (*postgres.Backend)(nil)
	_ Backend = (*gdatastore.Backend)(nil)
)
