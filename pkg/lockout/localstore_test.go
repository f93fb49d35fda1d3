package lockout

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := OpenBoltStore(filepath.Join(t.TempDir(), "lockout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBoltStore_MirrorRoundTrip(t *testing.T) {
	store := newTestBoltStore(t)

	loaded, err := store.LoadMirror("a@x.com")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	until := time.Now().Add(10 * time.Minute).UTC().Truncate(time.Second)
	mirror := &Mirror{
		Email:          "a@x.com",
		FailedAttempts: 3,
		LockUntil:      &until,
	}
	require.NoError(t, store.SaveMirror(mirror))

	loaded, err = store.LoadMirror("a@x.com")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 3, loaded.FailedAttempts)
	require.NotNil(t, loaded.LockUntil)
	assert.True(t, loaded.LockUntil.Equal(until))

	require.NoError(t, store.ClearMirror("a@x.com"))
	loaded, err = store.LoadMirror("a@x.com")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestBoltStore_RecentFailures(t *testing.T) {
	store := newTestBoltStore(t)
	now := time.Now().UTC()

	entries := []AttemptEntry{
		{Email: "a@x.com", Timestamp: now.Add(-time.Hour), Success: false},
		{Email: "a@x.com", Timestamp: now.Add(-30 * time.Minute), Success: true},
		{Email: "a@x.com", Timestamp: now.Add(-time.Minute), Success: false},
		{Email: "b@x.com", Timestamp: now.Add(-time.Minute), Success: false},
	}
	for _, entry := range entries {
		require.NoError(t, store.AppendAttempt(entry))
	}

	count, err := store.RecentFailures("a@x.com", now.Add(-attemptRetention))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = store.RecentFailures("a@x.com", now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBoltStore_AppendPrunesOldEntries(t *testing.T) {
	store := newTestBoltStore(t)
	now := time.Now().UTC()

	require.NoError(t, store.AppendAttempt(AttemptEntry{
		Email:     "a@x.com",
		Timestamp: now.Add(-25 * time.Hour),
		Success:   false,
	}))
	require.NoError(t, store.AppendAttempt(AttemptEntry{
		Email:     "a@x.com",
		Timestamp: now,
		Success:   false,
	}))

	count, err := store.RecentFailures("a@x.com", now.Add(-48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBoltStore_AttemptKeysOrderWithinOneSecond(t *testing.T) {
	store := newTestBoltStore(t)
	base := time.Now().UTC().Truncate(time.Second)

	// A whole-second timestamp and a fractional one in the same second.
	// Key order must match time order, so a seek at the whole second
	// sees both entries.
	require.NoError(t, store.AppendAttempt(AttemptEntry{Email: "a@x.com", Timestamp: base, Success: false}))
	require.NoError(t, store.AppendAttempt(AttemptEntry{Email: "a@x.com", Timestamp: base.Add(500 * time.Millisecond), Success: false}))

	count, err := store.RecentFailures("a@x.com", base)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = store.RecentFailures("a@x.com", base.Add(250*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBoltStore_ClearAttempts(t *testing.T) {
	store := newTestBoltStore(t)
	now := time.Now().UTC()

	require.NoError(t, store.AppendAttempt(AttemptEntry{Email: "a@x.com", Timestamp: now, Success: false}))
	require.NoError(t, store.AppendAttempt(AttemptEntry{Email: "b@x.com", Timestamp: now, Success: false}))
	require.NoError(t, store.ClearAttempts("a@x.com"))

	count, err := store.RecentFailures("a@x.com", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = store.RecentFailures("b@x.com", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
