package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/parishworks/lychgate/internal/metrics"
	"github.com/parishworks/lychgate/internal/models"
)

// LockoutRepository defines the persistence operations the recorder needs.
type LockoutRepository interface {
	// GetRecord returns the record for a normalized email, or models.ErrNotFound.
	GetRecord(ctx context.Context, email string) (*models.LockoutRecord, error)
	// PutRecord creates or overwrites the record.
	PutRecord(ctx context.Context, record *models.LockoutRecord) error
	// Mutate runs fn against the current record (nil when absent) inside a
	// store transaction and persists the returned record. A nil return from
	// fn skips the write.
	Mutate(ctx context.Context, email string, fn func(current *models.LockoutRecord) (*models.LockoutRecord, error)) error
}

// AlertNotifier is told when an account latches into a permanent block.
type AlertNotifier interface {
	NotifyPermanentBlock(ctx context.Context, email string, at time.Time) error
}

// AttemptRecorder wraps the lockout engine with transactional persistence.
// RecordFailure is the only path that increments counters, and it runs the
// whole read-modify-write inside one store transaction so two concurrent
// failures for the same email never collapse into a single increment.
type AttemptRecorder struct {
	repo   LockoutRepository
	engine *LockoutEngine
	alerts AlertNotifier
	logger *slog.Logger
	now    func() time.Time
}

// NewAttemptRecorder creates a recorder using the wall clock. alerts may be nil.
func NewAttemptRecorder(repo LockoutRepository, engine *LockoutEngine, alerts AlertNotifier, logger *slog.Logger) *AttemptRecorder {
	return NewAttemptRecorderWithClock(repo, engine, alerts, logger, time.Now)
}

// NewAttemptRecorderWithClock creates a recorder with an injectable clock.
func NewAttemptRecorderWithClock(repo LockoutRepository, engine *LockoutEngine, alerts AlertNotifier, logger *slog.Logger, now func() time.Time) *AttemptRecorder {
	return &AttemptRecorder{
		repo:   repo,
		engine: engine,
		alerts: alerts,
		logger: logger,
		now:    now,
	}
}

// RecordFailure counts one failed login and returns the resulting status.
// Store faults degrade to a locally computed status so the caller can still
// surface attempt feedback instead of a silent success.
func (r *AttemptRecorder) RecordFailure(ctx context.Context, email string) models.LockoutStatus {
	email = models.NormalizeEmail(email)
	now := r.now()

	var (
		status     models.LockoutStatus
		wasBlocked bool
	)

	err := r.repo.Mutate(ctx, email, func(current *models.LockoutRecord) (*models.LockoutRecord, error) {
		wasBlocked = current != nil && current.IsBlocked
		next, st := r.engine.OnFailure(current, email, now)
		status = st
		return next, nil
	})
	if err != nil {
		r.logger.Error("failed to record login failure",
			slog.String("email", email),
			slog.Any("error", err))
		metrics.LockoutStoreErrors.WithLabelValues("record_failure").Inc()

		// Best effort: evaluate against whatever is readable so the UI
		// still shows a failure rather than nothing.
		current, readErr := r.readRecord(ctx, email)
		if readErr != nil {
			current = nil
		}
		_, status = r.engine.OnFailure(current, email, now)
		return status
	}

	if status.IsBlocked && !wasBlocked {
		if status.Permanent {
			metrics.PermanentBlocks.Inc()
			r.logger.Warn("account permanently blocked",
				slog.String("email", email),
				slog.Int("attempts", status.Attempts))
			r.notifyPermanentBlock(ctx, email, now)
		} else {
			metrics.TemporaryBlocks.Inc()
			r.logger.Warn("account temporarily blocked",
				slog.String("email", email),
				slog.Time("block_until", *status.BlockUntil))
		}
	}

	return status
}

// RecordSuccess resets the counters after a successful login. Best effort:
// a persistence fault is logged and never blocks the caller's login.
func (r *AttemptRecorder) RecordSuccess(ctx context.Context, email string) {
	email = models.NormalizeEmail(email)

	record, err := r.readRecord(ctx, email)
	if err != nil {
		r.logger.Warn("failed to load lockout record for reset",
			slog.String("email", email),
			slog.Any("error", err))
		metrics.LockoutStoreErrors.WithLabelValues("record_success").Inc()
		return
	}

	reset := r.engine.OnSuccess(record)
	if reset == nil {
		return
	}

	if err := r.repo.PutRecord(ctx, reset); err != nil {
		r.logger.Warn("failed to persist lockout reset",
			slog.String("email", email),
			slog.Any("error", err))
		metrics.LockoutStoreErrors.WithLabelValues("record_success").Inc()
	}
}

// CheckStatus evaluates the current state without counting an attempt.
// An expired block triggers the advisory reset write; the write is
// idempotent, so a redundant reset from a concurrent checker is harmless.
// Store read faults degrade to "not blocked" so a store outage does not
// lock every account out.
func (r *AttemptRecorder) CheckStatus(ctx context.Context, email string) models.LockoutStatus {
	email = models.NormalizeEmail(email)
	now := r.now()

	record, err := r.readRecord(ctx, email)
	if err != nil {
		r.logger.Error("failed to read lockout record, failing open",
			slog.String("email", email),
			slog.Any("error", err))
		metrics.LockoutStoreErrors.WithLabelValues("check_status").Inc()
		status, _ := r.engine.Evaluate(nil, now)
		return status
	}

	status, reset := r.engine.Evaluate(record, now)
	if reset != nil {
		if err := r.repo.PutRecord(ctx, reset); err != nil {
			r.logger.Warn("failed to persist expiry reset",
				slog.String("email", email),
				slog.Any("error", err))
			metrics.LockoutStoreErrors.WithLabelValues("check_status").Inc()
		}
	}

	return status
}

// readRecord maps a missing document to a nil record.
func (r *AttemptRecorder) readRecord(ctx context.Context, email string) (*models.LockoutRecord, error) {
	record, err := r.repo.GetRecord(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *AttemptRecorder) notifyPermanentBlock(ctx context.Context, email string, at time.Time) {
	if r.alerts == nil {
		return
	}
	if err := r.alerts.NotifyPermanentBlock(ctx, email, at); err != nil {
		r.logger.Warn("failed to send permanent block alert",
			slog.String("email", email),
			slog.Any("error", err))
	}
}
