// Package postgres implements the flag store on PostgreSQL via the GORM
// backend.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/subgrids/extension/internal/database"
	gormstorage "github.com/subgrids/extension/internal/storage/gorm"
)

// Backend is the GORM backend connected to Postgres.
type Backend struct {
	*gormstorage.Backend
}

// New connects using the db.* config keys.
func New(logger *slog.Logger) (*Backend, error) {
	db, err := database.GetPostgresDB()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres DB: %w", err)
	}
	return &Backend{Backend: gormstorage.New(gormstorage.Dependencies{DB: db, Logger: logger})}, nil
}
