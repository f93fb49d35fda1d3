package services

import (
	"time"

	"github.com/parishworks/lychgate/internal/models"
)

// LockoutPolicy holds the thresholds for brute-force login protection.
type LockoutPolicy struct {
	MaxAttempts         int           // consecutive failures before a temporary block
	BlockDuration       time.Duration // length of a temporary block
	PermanentBlockAfter int           // temporary blocks before the permanent latch
}

// DefaultLockoutPolicy returns the product defaults.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxAttempts:         5,
		BlockDuration:       15 * time.Minute,
		PermanentBlockAfter: 10,
	}
}

// LockoutEngine is the pure decision logic for the login rate limiter.
// It never performs I/O; callers pass the persisted record and the clock
// and persist whatever comes back.
//
// Ordering invariant on every path: the permanent-block check precedes the
// temporary-block check. A permanent block dominates and is a one-way latch.
type LockoutEngine struct {
	policy LockoutPolicy
}

// NewLockoutEngine creates an engine with the given policy.
func NewLockoutEngine(policy LockoutPolicy) *LockoutEngine {
	return &LockoutEngine{policy: policy}
}

// Policy returns the engine's thresholds.
func (e *LockoutEngine) Policy() LockoutPolicy {
	return e.policy
}

// Evaluate turns the current record into a status without counting an
// attempt. When a temporary block has expired, the second return value is
// the zeroed record the caller should persist (an idempotent, advisory
// write; blockCount survives it).
func (e *LockoutEngine) Evaluate(record *models.LockoutRecord, now time.Time) (models.LockoutStatus, *models.LockoutRecord) {
	if record == nil {
		return models.LockoutStatus{
			Attempts:          0,
			AttemptsRemaining: e.policy.MaxAttempts,
		}, nil
	}

	if record.PermanentBlock {
		return models.LockoutStatus{
			Attempts:  record.Attempts,
			IsBlocked: true,
			Permanent: true,
		}, nil
	}

	if record.BlockUntil != nil {
		if now.Before(*record.BlockUntil) {
			until := *record.BlockUntil
			return models.LockoutStatus{
				Attempts:   record.Attempts,
				IsBlocked:  true,
				BlockUntil: &until,
			}, nil
		}

		// Block expired: attempts reset, blockCount is preserved.
		reset := *record
		reset.Attempts = 0
		reset.IsBlocked = false
		reset.BlockUntil = nil
		return models.LockoutStatus{
			Attempts:          0,
			AttemptsRemaining: e.policy.MaxAttempts,
		}, &reset
	}

	return models.LockoutStatus{
		Attempts:          record.Attempts,
		AttemptsRemaining: remaining(e.policy.MaxAttempts, record.Attempts),
		IsBlocked:         false,
	}, nil
}

// OnFailure computes the record after one failed login. The expiry-reset
// and the new failure collapse into a single transition: a failure against
// an expired block becomes attempt #1 of a fresh window in one step, so a
// concurrent writer can never separate the reset from the increment.
//
// A blocked record does not accumulate further attempts.
func (e *LockoutEngine) OnFailure(record *models.LockoutRecord, email string, now time.Time) (*models.LockoutRecord, models.LockoutStatus) {
	if record == nil {
		record = &models.LockoutRecord{Email: models.NormalizeEmail(email)}
	} else {
		copied := *record
		record = &copied
	}

	if record.PermanentBlock {
		status, _ := e.Evaluate(record, now)
		return record, status
	}

	if record.BlockUntil != nil && now.Before(*record.BlockUntil) {
		status, _ := e.Evaluate(record, now)
		return record, status
	}

	if record.BlockUntil != nil {
		// Expired block: this failure opens a fresh window.
		record.Attempts = 1
		record.IsBlocked = false
		record.BlockUntil = nil
	} else {
		record.Attempts++
	}
	record.LastAttempt = now

	if record.Attempts >= e.policy.MaxAttempts {
		record.Attempts = e.policy.MaxAttempts
		record.IsBlocked = true
		record.BlockCount++

		if record.BlockCount >= e.policy.PermanentBlockAfter {
			record.PermanentBlock = true
			record.BlockUntil = nil
			at := now
			record.PermanentBlockAt = &at
		} else {
			until := now.Add(e.policy.BlockDuration)
			record.BlockUntil = &until
		}
	}

	status, _ := e.Evaluate(record, now)
	return record, status
}

// OnSuccess returns the record to persist after a successful login, or nil
// when nothing should change. Correct credentials never lift a permanent
// block; only support intervention does.
func (e *LockoutEngine) OnSuccess(record *models.LockoutRecord) *models.LockoutRecord {
	if record == nil || record.PermanentBlock {
		return nil
	}

	reset := *record
	reset.Attempts = 0
	reset.IsBlocked = false
	reset.BlockUntil = nil
	return &reset
}

func remaining(max, attempts int) int {
	if attempts >= max {
		return 0
	}
	return max - attempts
}
