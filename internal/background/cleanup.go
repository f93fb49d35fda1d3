package background

import (
	"context"
	"log/slog"
	"time"
)

// TokenCleaner removes expired revoked tokens.
type TokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// LockoutPruner removes stale, unblocked lockout records. Permanently
// blocked records are never pruned.
type LockoutPruner interface {
	PruneStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// CleanupManager periodically prunes expired revoked tokens and stale
// lockout records.
type CleanupManager struct {
	tokens    TokenCleaner
	lockouts  LockoutPruner
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
}

// NewCleanupManager creates a new cleanup manager. retention is how long a
// lockout record with no new failures is kept before pruning.
func NewCleanupManager(
	tokens TokenCleaner,
	lockouts LockoutPruner,
	logger *slog.Logger,
	interval time.Duration,
	retention time.Duration,
) *CleanupManager {
	return &CleanupManager{
		tokens:    tokens,
		lockouts:  lockouts,
		logger:    logger,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
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

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tokensDeleted, err := cm.tokens.CleanupExpiredTokens(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to cleanup expired tokens", slog.Any("error", err))
	} else if tokensDeleted > 0 {
		cm.logger.Info("expired token cleanup completed", slog.Int64("rows_deleted", tokensDeleted))
	}

	recordsPruned, err := cm.lockouts.PruneStale(cleanupCtx, time.Now().Add(-cm.retention))
	if err != nil {
		cm.logger.Error("failed to prune stale lockout records", slog.Any("error", err))
	} else if recordsPruned > 0 {
		cm.logger.Info("stale lockout records pruned", slog.Int64("rows_deleted", recordsPruned))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
