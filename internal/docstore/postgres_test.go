package docstore

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPgxTx records commit and rollback calls. The embedded interface
// stands in for the pgx.Tx methods these tests never touch.
type stubPgxTx struct {
	pgx.Tx
	commitErr  error
	committed  bool
	rolledBack bool
}

func (s *stubPgxTx) Commit(ctx context.Context) error {
	s.committed = true
	return s.commitErr
}

func (s *stubPgxTx) Rollback(ctx context.Context) error {
	s.rolledBack = true
	return nil
}

func TestRunTx_CommitErrorPropagates(t *testing.T) {
	stub := &stubPgxTx{commitErr: errors.New("connection reset by peer")}

	err := runTx(context.Background(), stub, func(tx Tx) error { return nil })

	require.Error(t, err)
	assert.ErrorContains(t, err, "commit transaction")
	assert.True(t, stub.committed)
	assert.False(t, stub.rolledBack)
}

func TestRunTx_FnErrorRollsBack(t *testing.T) {
	stub := &stubPgxTx{}
	want := errors.New("boom")

	err := runTx(context.Background(), stub, func(tx Tx) error { return want })

	require.ErrorIs(t, err, want)
	assert.True(t, stub.rolledBack)
	assert.False(t, stub.committed)
}

func TestRunTx_CommitsOnSuccess(t *testing.T) {
	stub := &stubPgxTx{}

	require.NoError(t, runTx(context.Background(), stub, func(tx Tx) error { return nil }))
	assert.True(t, stub.committed)
	assert.False(t, stub.rolledBack)
}

func TestRunTx_PanicRollsBack(t *testing.T) {
	stub := &stubPgxTx{}

	assert.Panics(t, func() {
		_ = runTx(context.Background(), stub, func(tx Tx) error { panic("boom") })
	})
	assert.True(t, stub.rolledBack)
	assert.False(t, stub.committed)
}
