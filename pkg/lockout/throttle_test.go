package lockout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottle_RequiresInteraction(t *testing.T) {
	throttle := NewThrottle(time.Second, nil)

	assert.ErrorIs(t, throttle.Allow(), ErrNoInteraction)

	throttle.MarkInteraction()
	assert.NoError(t, throttle.Allow())
}

func TestThrottle_MinimumSpacing(t *testing.T) {
	throttle := NewThrottle(2*time.Second, nil)
	now := time.Unix(1000, 0)
	throttle.now = func() time.Time { return now }
	throttle.MarkInteraction()

	assert.NoError(t, throttle.Allow())

	now = now.Add(time.Second)
	assert.ErrorIs(t, throttle.Allow(), ErrTooSoon)

	now = now.Add(2 * time.Second)
	assert.NoError(t, throttle.Allow())
}

func TestThrottle_RejectedSubmitDoesNotResetSpacing(t *testing.T) {
	throttle := NewThrottle(2*time.Second, nil)
	now := time.Unix(1000, 0)
	throttle.now = func() time.Time { return now }
	throttle.MarkInteraction()

	assert.NoError(t, throttle.Allow())

	// Hammering inside the window keeps being rejected until the original
	// window elapses.
	now = now.Add(time.Second)
	assert.ErrorIs(t, throttle.Allow(), ErrTooSoon)
	now = now.Add(1100 * time.Millisecond)
	assert.NoError(t, throttle.Allow())
}

func TestThrottle_RecentFailuresWithoutLog(t *testing.T) {
	throttle := NewThrottle(time.Second, nil)
	assert.Equal(t, 0, throttle.RecentFailures("a@x.com"))
}
