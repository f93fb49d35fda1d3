package lockout

import (
	"errors"
	"sync"
	"time"
)

// Advisory rejection reasons. Callers show a message and let the user
// retry; nothing here is enforced server-side.
var (
	ErrTooSoon       = errors.New("previous attempt was too recent")
	ErrNoInteraction = errors.New("no human interaction observed yet")
)

// DefaultMinInterval is the minimum spacing between submits.
const DefaultMinInterval = 2 * time.Second

// Throttle is the device-local secondary throttle: minimum inter-attempt
// spacing plus a crude interaction heuristic. It runs before the server
// check to shed obviously scripted hammering, and its verdict is advisory
// only.
type Throttle struct {
	minInterval time.Duration
	log         Storage
	now         func() time.Time

	mu          sync.Mutex
	lastSubmit  time.Time
	interaction bool
}

// NewThrottle creates a throttle. log may be nil when the caller does not
// want attempt counting.
func NewThrottle(minInterval time.Duration, log Storage) *Throttle {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Throttle{
		minInterval: minInterval,
		log:         log,
		now:         time.Now,
	}
}

// MarkInteraction records that a pointer, key or scroll event happened in
// this page lifetime. Called by the UI layer's event hooks.
func (t *Throttle) MarkInteraction() {
	t.mu.Lock()
	t.interaction = true
	t.mu.Unlock()
}

// Allow decides whether a submit may go forward. The first rejection that
// applies wins; a nil error means proceed to the server check.
func (t *Throttle) Allow() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.interaction {
		return ErrNoInteraction
	}

	now := t.now()
	if !t.lastSubmit.IsZero() && now.Sub(t.lastSubmit) < t.minInterval {
		return ErrTooSoon
	}

	t.lastSubmit = now
	return nil
}

// RecentFailures reports the failed attempts for an email in the last 24
// hours from the local log. Display and debugging only.
func (t *Throttle) RecentFailures(email string) int {
	if t.log == nil {
		return 0
	}
	count, err := t.log.RecentFailures(email, t.now().Add(-attemptRetention))
	if err != nil {
		return 0
	}
	return count
}
