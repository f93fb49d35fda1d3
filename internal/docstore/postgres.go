package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/parishworks/lychgate/internal/database"
)

// PostgresStore persists documents as JSONB rows keyed by (collection, doc_key).
//
// Rows whose data is JSON null are placeholders created by transactional
// reads to lock a not-yet-existing key; they read back as absent.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a document store over the shared connection pool.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, collection, key string) (Fields, error) {
	query := `
		SELECT data FROM documents
		WHERE collection = $1 AND doc_key = $2 AND data <> 'null'::jsonb
	`

	var raw []byte
	err := s.db.Pool.QueryRow(ctx, query, collection, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	return unmarshalFields(raw)
}

func (s *PostgresStore) Set(ctx context.Context, collection, key string, fields Fields, merge bool) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	query := `
		INSERT INTO documents (collection, doc_key, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, doc_key) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = CURRENT_TIMESTAMP
	`
	if merge {
		// A placeholder row must not contribute fields to the merge.
		query = `
			INSERT INTO documents (collection, doc_key, data)
			VALUES ($1, $2, $3)
			ON CONFLICT (collection, doc_key) DO UPDATE SET
				data = CASE
					WHEN documents.data = 'null'::jsonb THEN EXCLUDED.data
					ELSE documents.data || EXCLUDED.data
				END,
				updated_at = CURRENT_TIMESTAMP
		`
	}

	if _, err := s.db.Pool.Exec(ctx, query, collection, key, raw); err != nil {
		return fmt.Errorf("set document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, collection, key string, fields Fields) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	query := `
		UPDATE documents
		SET data = data || $3, updated_at = CURRENT_TIMESTAMP
		WHERE collection = $1 AND doc_key = $2 AND data <> 'null'::jsonb
	`

	tag, err := s.db.Pool.Exec(ctx, query, collection, key, raw)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, key string) error {
	query := `DELETE FROM documents WHERE collection = $1 AND doc_key = $2`
	if _, err := s.db.Pool.Exec(ctx, query, collection, key); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Transaction runs fn inside a database transaction. Reads take a row lock
// (creating a placeholder row first when the key is absent), so concurrent
// transactions on the same key serialize instead of losing updates.
func (s *PostgresStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	pgxTx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	return runTx(ctx, pgxTx, fn)
}

// runTx commits when fn succeeds and rolls back otherwise. The return is
// named so a failed commit reaches the caller; a write that never
// committed must not take the success path.
func runTx(ctx context.Context, pgxTx pgx.Tx, fn func(tx Tx) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			_ = pgxTx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = pgxTx.Rollback(ctx)
		} else if commitErr := pgxTx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("commit transaction: %w", commitErr)
		}
	}()

	return fn(&postgresTx{tx: pgxTx})
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Get(ctx context.Context, collection, key string) (Fields, error) {
	// Ensure a row exists so FOR UPDATE has something to lock; the
	// placeholder rolls back with the transaction if fn fails.
	ensure := `
		INSERT INTO documents (collection, doc_key, data)
		VALUES ($1, $2, 'null'::jsonb)
		ON CONFLICT (collection, doc_key) DO NOTHING
	`
	if _, err := t.tx.Exec(ctx, ensure, collection, key); err != nil {
		return nil, fmt.Errorf("lock document: %w", err)
	}

	query := `
		SELECT data FROM documents
		WHERE collection = $1 AND doc_key = $2
		FOR UPDATE
	`

	var raw []byte
	if err := t.tx.QueryRow(ctx, query, collection, key).Scan(&raw); err != nil {
		return nil, fmt.Errorf("get document in transaction: %w", err)
	}
	if string(raw) == "null" {
		return nil, ErrNotFound
	}

	return unmarshalFields(raw)
}

func (t *postgresTx) Set(ctx context.Context, collection, key string, fields Fields) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	query := `
		INSERT INTO documents (collection, doc_key, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, doc_key) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := t.tx.Exec(ctx, query, collection, key, raw); err != nil {
		return fmt.Errorf("set document in transaction: %w", err)
	}
	return nil
}

func unmarshalFields(raw []byte) (Fields, error) {
	var fields Fields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return fields, nil
}
