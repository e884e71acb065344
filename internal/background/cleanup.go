package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/jdmarch/gauntlet/internal/repositories"
)

// CleanupManager periodically reclaims expired challenges and failure
// records. Expiry predicates on every read already make stale rows
// invisible; this keeps storage growth bounded.
type CleanupManager struct {
	challengeRepo *repositories.ChallengeRepository
	failureRepo   *repositories.FailureRecordRepository
	logger        *slog.Logger
	interval      time.Duration
	stopCh        chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	challengeRepo *repositories.ChallengeRepository,
	failureRepo *repositories.FailureRecordRepository,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		challengeRepo: challengeRepo,
		failureRepo:   failureRepo,
		logger:        logger,
		interval:      interval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup removes expired rows from both tables
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	challenges, err := cm.challengeRepo.DeleteExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to cleanup expired challenges", slog.Any("error", err))
	}

	records, err := cm.failureRepo.DeleteExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to cleanup expired failure records", slog.Any("error", err))
	}

	if challenges > 0 || records > 0 {
		cm.logger.Info("expired row cleanup completed",
			slog.Int64("challenges_deleted", challenges),
			slog.Int64("failure_records_deleted", records))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
