package lockout

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStorage is an in-memory Storage for presenter tests.
type fakeStorage struct {
	mu       sync.Mutex
	mirrors  map[string]*Mirror
	attempts []AttemptEntry
	loadErr  error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{mirrors: make(map[string]*Mirror)}
}

func (f *fakeStorage) LoadMirror(email string) (*Mirror, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if m, ok := f.mirrors[email]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeStorage) SaveMirror(mirror *Mirror) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *mirror
	f.mirrors[mirror.Email] = &copied
	return nil
}

func (f *fakeStorage) ClearMirror(email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.mirrors, email)
	return nil
}

func (f *fakeStorage) AppendAttempt(entry AttemptEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, entry)
	return nil
}

func (f *fakeStorage) RecentFailures(email string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, e := range f.attempts {
		if e.Email == email && !e.Success && e.Timestamp.After(since) {
			count++
		}
	}
	return count, nil
}

// fakeChecker returns a scripted server status.
type fakeChecker struct {
	status Status
	err    error
	calls  int
}

func (f *fakeChecker) CheckStatus(ctx context.Context, email string) (Status, error) {
	f.calls++
	return f.status, f.err
}

func newTestPresenter(store Storage, checker StatusChecker, now func() time.Time) *Presenter {
	p := NewPresenter(store, checker, 5, slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	if now != nil {
		p.now = now
	}
	return p
}

func TestMount_NoMirror(t *testing.T) {
	p := newTestPresenter(newFakeStorage(), &fakeChecker{}, nil)

	view := p.Mount("a@x.com")
	assert.False(t, view.Blocked)
	assert.Equal(t, 5, view.AttemptsRemaining)
}

func TestMount_ActiveLock(t *testing.T) {
	store := newFakeStorage()
	now := time.Now()
	until := now.Add(10 * time.Minute)
	store.mirrors["a@x.com"] = &Mirror{Email: "a@x.com", FailedAttempts: 5, LockUntil: &until}

	p := newTestPresenter(store, &fakeChecker{}, func() time.Time { return now })
	view := p.Mount("a@x.com")

	assert.True(t, view.Blocked)
	require.NotNil(t, view.LockUntil)
	assert.False(t, view.Permanent)
}

func TestMount_ExpiredLockIsCleared(t *testing.T) {
	store := newFakeStorage()
	now := time.Now()
	until := now.Add(-time.Minute)
	store.mirrors["a@x.com"] = &Mirror{Email: "a@x.com", FailedAttempts: 5, LockUntil: &until}

	p := newTestPresenter(store, &fakeChecker{}, func() time.Time { return now })
	view := p.Mount("a@x.com")

	assert.False(t, view.Blocked)
	assert.Equal(t, 5, view.AttemptsRemaining)
	assert.Nil(t, store.mirrors["a@x.com"])
}

func TestMount_PartialAttempts(t *testing.T) {
	store := newFakeStorage()
	store.mirrors["a@x.com"] = &Mirror{Email: "a@x.com", FailedAttempts: 2}

	p := newTestPresenter(store, &fakeChecker{}, nil)
	view := p.Mount("a@x.com")

	assert.Equal(t, 3, view.AttemptsRemaining)
}

func TestPreCheck_ServerBlocked(t *testing.T) {
	store := newFakeStorage()
	now := time.Now()
	until := now.Add(5 * time.Minute)
	checker := &fakeChecker{status: Status{IsBlocked: true, BlockUntil: &until}}

	p := newTestPresenter(store, checker, func() time.Time { return now })
	view, allowed := p.PreCheck(context.Background(), "a@x.com")

	assert.False(t, allowed)
	assert.True(t, view.Blocked)
	// The server answer rebuilds the mirror.
	require.NotNil(t, store.mirrors["a@x.com"])
	require.NotNil(t, store.mirrors["a@x.com"].LockUntil)
}

func TestPreCheck_PermanentBlock(t *testing.T) {
	checker := &fakeChecker{status: Status{IsBlocked: true, Permanent: true}}
	p := newTestPresenter(newFakeStorage(), checker, nil)

	view, allowed := p.PreCheck(context.Background(), "a@x.com")

	assert.False(t, allowed)
	assert.True(t, view.Permanent)
	assert.Contains(t, view.Message, "contact parish support")
}

func TestPreCheck_ServerErrorProceeds(t *testing.T) {
	checker := &fakeChecker{err: errors.New("network down")}
	p := newTestPresenter(newFakeStorage(), checker, nil)

	view, allowed := p.PreCheck(context.Background(), "a@x.com")

	assert.True(t, allowed)
	assert.False(t, view.Blocked)
}

func TestApplyFailure_UpdatesMirrorAndLog(t *testing.T) {
	store := newFakeStorage()
	now := time.Now()
	p := newTestPresenter(store, &fakeChecker{}, func() time.Time { return now })

	view := p.ApplyFailure("a@x.com", Status{Attempts: 2, AttemptsRemaining: 3})

	assert.False(t, view.Blocked)
	assert.Equal(t, 3, view.AttemptsRemaining)
	assert.Contains(t, view.Message, "3 attempts remaining")
	require.NotNil(t, store.mirrors["a@x.com"])
	assert.Equal(t, 2, store.mirrors["a@x.com"].FailedAttempts)

	count, _ := store.RecentFailures("a@x.com", now.Add(-time.Hour))
	assert.Equal(t, 1, count)
}

func TestApplySuccess_ClearsMirror(t *testing.T) {
	store := newFakeStorage()
	store.mirrors["a@x.com"] = &Mirror{Email: "a@x.com", FailedAttempts: 4}
	p := newTestPresenter(store, &fakeChecker{}, nil)

	p.ApplySuccess("a@x.com")

	assert.Nil(t, store.mirrors["a@x.com"])
}

func TestStartCountdown_TicksAndExpires(t *testing.T) {
	p := newTestPresenter(newFakeStorage(), &fakeChecker{}, nil)

	expired := make(chan struct{})
	var mu sync.Mutex
	var ticks []time.Duration

	stop := p.StartCountdown(time.Now().Add(2500*time.Millisecond),
		func(remaining time.Duration) {
			mu.Lock()
			ticks = append(ticks, remaining)
			mu.Unlock()
		},
		func() { close(expired) },
	)
	defer stop()

	select {
	case <-expired:
	case <-time.After(5 * time.Second):
		t.Fatal("countdown did not expire")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, ticks)
	for i := 1; i < len(ticks); i++ {
		assert.Less(t, ticks[i], ticks[i-1])
	}
}

func TestStartCountdown_StopTearsDown(t *testing.T) {
	p := newTestPresenter(newFakeStorage(), &fakeChecker{}, nil)

	expired := make(chan struct{})
	stop := p.StartCountdown(time.Now().Add(time.Hour),
		func(time.Duration) {},
		func() { close(expired) },
	)

	stop()
	stop() // safe to call twice

	select {
	case <-expired:
		t.Fatal("expired after stop")
	case <-time.After(1500 * time.Millisecond):
	}
}

func TestStartCountdown_RestartThenOldStop(t *testing.T) {
	p := newTestPresenter(newFakeStorage(), &fakeChecker{}, nil)

	firstStop := p.StartCountdown(time.Now().Add(time.Hour),
		func(time.Duration) {},
		func() {},
	)

	// A fresh server status restarts the countdown, cancelling the first one.
	expired := make(chan struct{})
	secondStop := p.StartCountdown(time.Now().Add(time.Hour),
		func(time.Duration) {},
		func() { close(expired) },
	)
	defer secondStop()

	// The first caller's deferred stop still runs. It must be a no-op,
	// not a second close of an already-closed channel.
	firstStop()
	firstStop()

	select {
	case <-expired:
		t.Fatal("second countdown expired after stopping the first")
	case <-time.After(1500 * time.Millisecond):
	}
}

func TestFormatCountdown(t *testing.T) {
	assert.Equal(t, "15:00", FormatCountdown(15*time.Minute))
	assert.Equal(t, "00:01", FormatCountdown(500*time.Millisecond))
	assert.Equal(t, "00:00", FormatCountdown(0))
	assert.Equal(t, "00:00", FormatCountdown(-time.Second))
	assert.Equal(t, "01:05", FormatCountdown(65*time.Second))
}
