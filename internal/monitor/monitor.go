// Package monitor periodically writes a status snapshot of the live
// subgrids to a file next to the logs.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/subgrids/extension/internal/dispatcher"
	"github.com/subgrids/extension/internal/manager"
	"github.com/subgrids/extension/pkg/protocol"
)

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	// Dispatcher serves protocol.TypeStatus on the same lane that mutates frames.
	Dispatcher *dispatcher.Dispatcher
	Logger     *slog.Logger
	StatusPath string
	Interval   time.Duration
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Snapshot asks the dispatcher for the current status and waits for the
// reply, which may arrive from a lane goroutine.
func (s *Service) Snapshot(ctx context.Context) (manager.Status, error) {
	type reply struct {
		result any
		err    error
	}
	ch := make(chan reply, 1)
	s.deps.Dispatcher.Dispatch(dispatcher.Event{
		Type:      protocol.TypeStatus,
		ID:        "monitor",
		Timestamp: time.Now(),
		Reply:     func(result any, err error) { ch <- reply{result, err} },
	})

	select {
	case r := <-ch:
		if r.err != nil {
			return manager.Status{}, r.err
		}
		st, ok := r.result.(manager.Status)
		if !ok {
			return manager.Status{}, fmt.Errorf("unexpected status result %T", r.result)
		}
		return st, nil
	case <-ctx.Done():
		return manager.Status{}, ctx.Err()
	}
}

// WriteStatus replaces the status file with one snapshot.
func (s *Service) WriteStatus(ctx context.Context, f *os.File) error {
	st, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err = f.Write(append(out, '\n'))
	return err
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	statusFile, err := os.Create(s.deps.StatusPath)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("creating status file: %w", err)
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer statusFile.Close()
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor", "path", s.deps.StatusPath, "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), s.deps.Interval)
				if err := s.WriteStatus(ctx, statusFile); err != nil {
					logger.Warn("Error writing status", "error", err)
				}
				cancel()
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
