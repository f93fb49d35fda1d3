// Package docstore defines the document store contract the lockout
// subsystem persists through: read/write by (collection, key) plus an
// isolated read-modify-write transaction per key.
package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Fields is one document's contents. Values must be JSON-marshalable.
type Fields map[string]any

// Tx exposes the operations available inside a transaction. A Get inside
// a transaction locks the document until the transaction finishes, so a
// Get-then-Set cycle never loses a concurrent update to the same key.
type Tx interface {
	Get(ctx context.Context, collection, key string) (Fields, error)
	Set(ctx context.Context, collection, key string, fields Fields) error
}

// Store is the persistent counter store collaborator.
type Store interface {
	// Get returns the document, or ErrNotFound.
	Get(ctx context.Context, collection, key string) (Fields, error)

	// Set creates or overwrites the document. With merge=true, existing
	// fields not present in fields are preserved.
	Set(ctx context.Context, collection, key string, fields Fields, merge bool) error

	// Update applies a partial update. Fails with ErrNotFound if absent.
	Update(ctx context.Context, collection, key string, fields Fields) error

	// Delete removes the document. Deleting an absent document is not an error.
	Delete(ctx context.Context, collection, key string) error

	// Transaction runs fn with read-modify-write isolation. If fn returns
	// an error the transaction is rolled back.
	Transaction(ctx context.Context, fn func(tx Tx) error) error
}

// merged returns base with overlay applied on top.
func merged(base, overlay Fields) Fields {
	out := make(Fields, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}
