package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/passport/internal/session/store"
	"github.com/aussiebroadwan/passport/pkg/jwtx"
)

// HousekeepingService periodically deletes expired refresh token records,
// dead pin challenges and idle sessions so the store doesn't grow without
// bound.
type HousekeepingService struct {
	Store    store.Store
	Backend  *jwtx.Backend
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(st store.Store, backend *jwtx.Backend, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    st,
		Backend:  backend,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// Non-blocking; call Stop() to shut the worker down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker. Blocks until any
// in-progress cleanup finishes.
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
	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup performs one deletion pass. Each deletion is independent;
// failures in one won't stop the others.
func (s *HousekeepingService) Cleanup(ctx context.Context) {
	now := time.Now().UTC()
	s.Logger.Info("starting housekeeping cleanup")

	var completed int

	// A refresh token record is dead once its validity anchor plus the
	// refresh lifetime has passed.
	tokenCutoff := now.Add(-s.Backend.RefreshLifetime())
	if err := s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, tokenCutoff); err != nil {
		s.Logger.Error("failed to delete expired refresh tokens", "error", err)
	} else {
		completed++
	}

	if err := s.Store.PinChallenges().DeleteExpiredPinChallenges(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired pin challenges", "error", err)
	} else {
		completed++
	}

	// Sessions linger one refresh lifetime past their last login before
	// being considered abandoned.
	if err := s.Store.Sessions().DeleteIdleSessions(ctx, tokenCutoff); err != nil {
		s.Logger.Error("failed to delete idle sessions", "error", err)
	} else {
		completed++
	}

	s.Logger.Info("housekeeping cleanup completed", "successful_cleanups", completed)
}
