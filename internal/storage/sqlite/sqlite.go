// Package sqlitestorage implements the flag store on a SQLite file. It
// wraps the GORM backend and adds periodic snapshots via VACUUM INTO.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/subgrids/extension/internal/database"
	gormstorage "github.com/subgrids/extension/internal/storage/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	Path         string
	DumpInterval time.Duration
	DumpPath     string // defaults to Path + ".bak"
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	cfg      Config
	log      *slog.Logger
	stopChan chan struct{}
	done     sync.WaitGroup
}

// New opens the SQLite database at cfg.Path. An empty path keeps the
// records in memory.
func New(cfg Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := database.GetSqliteDB(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}
	if cfg.DumpPath == "" && cfg.Path != "" {
		cfg.DumpPath = cfg.Path + ".bak"
	}

	return &Backend{
		Backend:  gormstorage.New(gormstorage.Dependencies{DB: db, Logger: logger}),
		cfg:      cfg,
		log:      logger,
		stopChan: make(chan struct{}),
	}, nil
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.done.Add(1)
		go b.dumpLoop()
	}

	return nil
}

// Close stops the dump goroutine and closes the embedded GORM backend.
func (b *Backend) Close() error {
	close(b.stopChan)
	b.done.Wait()
	return b.Backend.Close()
}

// Dump writes a snapshot of the database to the dump path.
func (b *Backend) Dump() error {
	return database.DumpMemoryDBToDisk(b.DB(), b.cfg.DumpPath)
}

// dumpLoop periodically snapshots the database. VACUUM INTO is a
// point-in-time copy, so writers are not paused.
func (b *Backend) dumpLoop() {
	defer b.done.Done()
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.Dump(); err != nil {
				b.log.Error("error dumping subgrid records", "path", b.cfg.DumpPath, "error", err)
			} else {
				b.log.Debug("dumped subgrid records", "path", b.cfg.DumpPath, "duration", time.Since(start))
			}
		}
	}
}
