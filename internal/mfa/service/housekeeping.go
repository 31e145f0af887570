package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
	"github.com/aussiebroadwan/twofactor/internal/mfa/store"
)

// HousekeepingService periodically drops idle attempt records and audit
// events past their retention so neither grows without bound.
type HousekeepingService struct {
	Attempts store.AttemptStore
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// StaleAfter is how long a record that never locked may sit idle.
	StaleAfter time.Duration

	// AuditRetention of zero keeps audit events forever.
	AuditRetention time.Duration

	Now func() time.Time

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(
	attempts store.AttemptStore,
	s store.Store,
	logger *slog.Logger,
	interval, staleAfter time.Duration,
) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if staleAfter <= 0 {
		staleAfter = 2 * domain.DefaultLockoutPolicy.LockoutDuration
	}

	return &HousekeepingService{
		Attempts:   attempts,
		Store:      s,
		Logger:     logger,
		Interval:   interval,
		StaleAfter: staleAfter,
		Now:        time.Now,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// Call Stop() to gracefully shutdown the worker.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup runs each purge independently; one failing does not stop the other.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	now := s.Now()

	var successful int

	if s.Attempts != nil {
		n, err := s.Attempts.DeleteStale(ctx, now.Add(-s.StaleAfter))
		if err != nil {
			s.Logger.Error("failed to delete stale attempt records", "error", err)
		} else {
			s.Logger.Debug("deleted stale attempt records", "count", n)
			successful++
		}
	}

	if s.Store != nil && s.AuditRetention > 0 {
		n, err := s.Store.AuditEvents().DeleteAuditEventsBefore(ctx, now.Add(-s.AuditRetention))
		if err != nil {
			s.Logger.Error("failed to delete old audit events", "error", err)
		} else {
			s.Logger.Debug("deleted old audit events", "count", n)
			successful++
		}
	}

	s.Logger.Info("housekeeping cleanup completed", "successful_cleanups", successful)
}
