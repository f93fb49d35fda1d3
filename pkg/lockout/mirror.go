// Package lockout is the client-side companion to the server's login
// protection: a device-local mirror of block state for instant feedback, a
// live countdown, and an advisory secondary throttle. The server decision
// always wins; nothing in this package grants or denies access on its own.
package lockout

import (
	"context"
	"time"
)

// Status is the server's verdict on an email, as reported by the API.
type Status struct {
	Attempts          int        `json:"attempts"`
	AttemptsRemaining int        `json:"attempts_remaining"`
	IsBlocked         bool       `json:"is_blocked"`
	BlockUntil        *time.Time `json:"block_until,omitempty"`
	Permanent         bool       `json:"permanent"`
}

// StatusChecker asks the server for the authoritative lockout state.
type StatusChecker interface {
	CheckStatus(ctx context.Context, email string) (Status, error)
}

// Mirror is the device-local cache of the last server response for one
// email. It pre-populates the UI before the first round trip and is
// rebuilt from every server response.
type Mirror struct {
	Email           string     `json:"email"`
	FailedAttempts  int        `json:"failed_attempts"`
	LockUntil       *time.Time `json:"lock_until,omitempty"`
	LastAttemptTime *time.Time `json:"last_attempt_time,omitempty"`
	Permanent       bool       `json:"permanent"`
}

// AttemptEntry is one line of the local attempt log.
type AttemptEntry struct {
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
}

// Storage persists the mirror and the attempt log on the device.
// Load returns nil when no mirror is stored for the email.
type Storage interface {
	LoadMirror(email string) (*Mirror, error)
	SaveMirror(mirror *Mirror) error
	ClearMirror(email string) error

	// AppendAttempt records an entry and prunes everything older than the
	// retention window in the same write.
	AppendAttempt(entry AttemptEntry) error
	// RecentFailures counts failed entries for an email inside the window.
	// Display and debugging only.
	RecentFailures(email string, since time.Time) (int, error)
}

// mirrorFromStatus rebuilds the mirror from an authoritative response.
func mirrorFromStatus(email string, status Status, at time.Time) *Mirror {
	m := &Mirror{
		Email:          email,
		FailedAttempts: status.Attempts,
		Permanent:      status.Permanent,
	}
	if status.Attempts > 0 || status.IsBlocked {
		t := at
		m.LastAttemptTime = &t
	}
	if status.BlockUntil != nil {
		until := *status.BlockUntil
		m.LockUntil = &until
	}
	return m
}
