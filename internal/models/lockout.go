package models

import (
	"strings"
	"time"
)

// LockoutRecord tracks consecutive login failures for one normalized email.
// One record exists per address; it is created on the first failure and
// mutated only through the attempt recorder's transactional path.
type LockoutRecord struct {
	Email            string     `json:"email"`
	Attempts         int        `json:"attempts"`
	LastAttempt      time.Time  `json:"last_attempt"`
	IsBlocked        bool       `json:"is_blocked"`
	BlockUntil       *time.Time `json:"block_until"`
	BlockCount       int        `json:"block_count"`
	PermanentBlock   bool       `json:"permanent_block"`
	PermanentBlockAt *time.Time `json:"permanent_block_at"`
}

// LockoutStatus is the decision returned to callers after evaluating a
// record. BlockUntil is nil for a permanent block; Permanent distinguishes
// the two blocked states.
type LockoutStatus struct {
	Attempts          int        `json:"attempts"`
	AttemptsRemaining int        `json:"attempts_remaining"`
	IsBlocked         bool       `json:"is_blocked"`
	BlockUntil        *time.Time `json:"block_until,omitempty"`
	Permanent         bool       `json:"permanent"`
}

// NormalizeEmail lower-cases and trims an address for use as a lockout key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
