package services_test

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

	"github.com/parishworks/lychgate/internal/docstore"
	"github.com/parishworks/lychgate/internal/models"
	"github.com/parishworks/lychgate/internal/repositories"
	"github.com/parishworks/lychgate/internal/services"
)

// MockLockoutRepository implements LockoutRepository in memory.
type MockLockoutRepository struct {
	mu      sync.Mutex
	records map[string]*models.LockoutRecord

	getErr    error
	putErr    error
	mutateErr error
}

func NewMockLockoutRepository() *MockLockoutRepository {
	return &MockLockoutRepository{records: make(map[string]*models.LockoutRecord)}
}

// Seed installs a record without going through the store path.
func (m *MockLockoutRepository) Seed(record *models.LockoutRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *record
	m.records[record.Email] = &copied
}

func (m *MockLockoutRepository) GetRecord(ctx context.Context, email string) (*models.LockoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	record, ok := m.records[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (m *MockLockoutRepository) PutRecord(ctx context.Context, record *models.LockoutRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	copied := *record
	m.records[record.Email] = &copied
	return nil
}

func (m *MockLockoutRepository) Mutate(ctx context.Context, email string, fn func(current *models.LockoutRecord) (*models.LockoutRecord, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mutateErr != nil {
		return m.mutateErr
	}

	var current *models.LockoutRecord
	if record, ok := m.records[email]; ok {
		copied := *record
		current = &copied
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if next != nil {
		copied := *next
		m.records[email] = &copied
	}
	return nil
}

// MockAlertNotifier records permanent-block notifications.
type MockAlertNotifier struct {
	mu     sync.Mutex
	emails []string
}

func (m *MockAlertNotifier) NotifyPermanentBlock(ctx context.Context, email string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails = append(m.emails, email)
	return nil
}

func (m *MockAlertNotifier) Notified() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.emails...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func newTestRecorder(repo services.LockoutRepository, alerts services.AlertNotifier, now func() time.Time) *services.AttemptRecorder {
	engine := services.NewLockoutEngine(services.DefaultLockoutPolicy())
	return services.NewAttemptRecorderWithClock(repo, engine, alerts, testLogger(), now)
}

func TestRecordFailure_CountsAndBlocks(t *testing.T) {
	repo := NewMockLockoutRepository()
	now := time.Now()
	recorder := newTestRecorder(repo, nil, func() time.Time { return now })
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		status := recorder.RecordFailure(ctx, "User@X.com")
		assert.False(t, status.IsBlocked)
		assert.Equal(t, i, status.Attempts)
	}

	status := recorder.RecordFailure(ctx, "user@x.com")
	assert.True(t, status.IsBlocked)
	require.NotNil(t, status.BlockUntil)

	// Email is normalized before it reaches the store.
	record, err := repo.GetRecord(ctx, "user@x.com")
	require.NoError(t, err)
	assert.Equal(t, 5, record.Attempts)
	assert.Equal(t, 1, record.BlockCount)
}

func TestRecordFailure_StoreErrorReturnsBestEffortStatus(t *testing.T) {
	repo := NewMockLockoutRepository()
	repo.mutateErr = errors.New("store unavailable")
	now := time.Now()
	recorder := newTestRecorder(repo, nil, func() time.Time { return now })

	// The caller still sees a failure counted, not a silent success.
	status := recorder.RecordFailure(context.Background(), "a@x.com")
	assert.Equal(t, 1, status.Attempts)
	assert.Equal(t, 4, status.AttemptsRemaining)
	assert.False(t, status.IsBlocked)
}

func TestRecordFailure_NotifiesOnPermanentLatch(t *testing.T) {
	repo := NewMockLockoutRepository()
	alerts := &MockAlertNotifier{}
	now := time.Now()
	recorder := newTestRecorder(repo, alerts, func() time.Time { return now })
	ctx := context.Background()

	repo.records["a@x.com"] = &models.LockoutRecord{
		Email:      "a@x.com",
		Attempts:   4,
		BlockCount: 9,
	}

	status := recorder.RecordFailure(ctx, "a@x.com")

	assert.True(t, status.Permanent)
	assert.Equal(t, []string{"a@x.com"}, alerts.Notified())
}

func TestRecordSuccess_ResetsRecord(t *testing.T) {
	repo := NewMockLockoutRepository()
	now := time.Now()
	recorder := newTestRecorder(repo, nil, func() time.Time { return now })
	ctx := context.Background()

	recorder.RecordFailure(ctx, "a@x.com")
	recorder.RecordFailure(ctx, "a@x.com")
	recorder.RecordSuccess(ctx, "a@x.com")

	record, err := repo.GetRecord(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 0, record.Attempts)
	assert.False(t, record.IsBlocked)
}

func TestRecordSuccess_StoreErrorDoesNotPanic(t *testing.T) {
	repo := NewMockLockoutRepository()
	repo.getErr = errors.New("store unavailable")
	recorder := newTestRecorder(repo, nil, time.Now)

	recorder.RecordSuccess(context.Background(), "a@x.com")
}

func TestCheckStatus_FailsOpenOnReadError(t *testing.T) {
	repo := NewMockLockoutRepository()
	repo.records["a@x.com"] = &models.LockoutRecord{
		Email:          "a@x.com",
		PermanentBlock: true,
		IsBlocked:      true,
	}
	repo.getErr = errors.New("store unavailable")
	recorder := newTestRecorder(repo, nil, time.Now)

	status := recorder.CheckStatus(context.Background(), "a@x.com")
	assert.False(t, status.IsBlocked)
	assert.Equal(t, 5, status.AttemptsRemaining)
}

func TestCheckStatus_PersistsExpiryReset(t *testing.T) {
	repo := NewMockLockoutRepository()
	now := time.Now()
	until := now.Add(-time.Minute)
	repo.records["a@x.com"] = &models.LockoutRecord{
		Email:      "a@x.com",
		Attempts:   5,
		IsBlocked:  true,
		BlockUntil: &until,
		BlockCount: 3,
	}
	recorder := newTestRecorder(repo, nil, func() time.Time { return now })
	ctx := context.Background()

	status := recorder.CheckStatus(ctx, "a@x.com")

	assert.False(t, status.IsBlocked)
	record, err := repo.GetRecord(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 0, record.Attempts)
	assert.Equal(t, 3, record.BlockCount)
}

// TestRecordFailure_NoLostUpdates drives concurrent failures for one email
// through the real repository over the in-memory document store.
func TestRecordFailure_NoLostUpdates(t *testing.T) {
	store := docstore.NewMemoryStore()
	repo := repositories.NewLockoutRepository(store)
	now := time.Now()
	recorder := newTestRecorder(repo, nil, func() time.Time { return now })
	ctx := context.Background()

	const workers = 4
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.RecordFailure(ctx, "race@x.com")
		}()
	}
	wg.Wait()

	record, err := repo.GetRecord(ctx, "race@x.com")
	require.NoError(t, err)
	assert.Equal(t, workers, record.Attempts)
	assert.False(t, record.IsBlocked)
}
