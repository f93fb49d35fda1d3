package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/parishworks/lychgate/internal/database"
	"github.com/parishworks/lychgate/internal/docstore"
	"github.com/parishworks/lychgate/internal/models"
)

// LockoutCollection is the document collection holding one record per
// normalized email.
const LockoutCollection = "login_rate_limits"

// LockoutRepository maps lockout records onto the document store.
type LockoutRepository struct {
	store docstore.Store
}

// NewLockoutRepository creates a repository over any document store.
func NewLockoutRepository(store docstore.Store) *LockoutRepository {
	return &LockoutRepository{store: store}
}

// GetRecord returns the record for a normalized email, or models.ErrNotFound.
func (r *LockoutRepository) GetRecord(ctx context.Context, email string) (*models.LockoutRecord, error) {
	fields, err := r.store.Get(ctx, LockoutCollection, email)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fieldsToRecord(fields)
}

// PutRecord creates or overwrites the record, merging over any fields the
// record does not carry.
func (r *LockoutRepository) PutRecord(ctx context.Context, record *models.LockoutRecord) error {
	fields, err := recordToFields(record)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, LockoutCollection, record.Email, fields, true)
}

// UpdateRecord applies a partial update; fails with models.ErrNotFound if
// the record does not exist.
func (r *LockoutRepository) UpdateRecord(ctx context.Context, email string, fields docstore.Fields) error {
	err := r.store.Update(ctx, LockoutCollection, email, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.ErrNotFound
	}
	return err
}

// DeleteRecord removes the record entirely (support intervention).
func (r *LockoutRepository) DeleteRecord(ctx context.Context, email string) error {
	return r.store.Delete(ctx, LockoutCollection, email)
}

// Mutate runs fn against the current record inside a store transaction.
// The transactional read locks the key, so concurrent mutations serialize
// and no increment is lost.
func (r *LockoutRepository) Mutate(ctx context.Context, email string, fn func(current *models.LockoutRecord) (*models.LockoutRecord, error)) error {
	return r.store.Transaction(ctx, func(tx docstore.Tx) error {
		var current *models.LockoutRecord

		fields, err := tx.Get(ctx, LockoutCollection, email)
		switch {
		case errors.Is(err, docstore.ErrNotFound):
			current = nil
		case err != nil:
			return err
		default:
			if current, err = fieldsToRecord(fields); err != nil {
				return err
			}
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}

		nextFields, err := recordToFields(next)
		if err != nil {
			return err
		}
		return tx.Set(ctx, LockoutCollection, next.Email, nextFields)
	})
}

// recordToFields and fieldsToRecord round-trip through JSON so that both
// store implementations see identical document shapes.

func recordToFields(record *models.LockoutRecord) (docstore.Fields, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal lockout record: %w", err)
	}
	var fields docstore.Fields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal lockout record: %w", err)
	}
	return fields, nil
}

func fieldsToRecord(fields docstore.Fields) (*models.LockoutRecord, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal lockout fields: %w", err)
	}
	var record models.LockoutRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("unmarshal lockout fields: %w", err)
	}
	return &record, nil
}

// LockoutPruner deletes stale lockout documents directly. Records under a
// permanent block are never pruned; the latch must survive retention.
type LockoutPruner struct {
	db *database.DB
}

// NewLockoutPruner creates a pruner over the shared connection pool.
func NewLockoutPruner(db *database.DB) *LockoutPruner {
	return &LockoutPruner{db: db}
}

// PruneStale removes lockout documents untouched since the cutoff.
func (p *LockoutPruner) PruneStale(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM documents
		WHERE collection = $1
		  AND updated_at < $2
		  AND (data->>'permanent_block') IS DISTINCT FROM 'true'
	`

	tag, err := p.db.Pool.Exec(ctx, query, LockoutCollection, olderThan)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
