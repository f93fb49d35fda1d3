package docstore

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is an in-memory Store used in tests and local development.
// A single mutex covers the whole store, which trivially satisfies the
// transaction isolation contract.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string]Fields // collection -> key -> fields
}

// NewMemoryStore creates an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]Fields),
	}
}

func (s *MemoryStore) Get(ctx context.Context, collection, key string) (Fields, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(collection, key)
}

func (s *MemoryStore) Set(ctx context.Context, collection, key string, fields Fields, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if merge {
		if existing, err := s.get(collection, key); err == nil {
			fields = merged(existing, fields)
		}
	}
	s.put(collection, key, fields)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, key string, fields Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.get(collection, key)
	if err != nil {
		return err
	}
	s.put(collection, key, merged(existing, fields))
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if coll, ok := s.docs[collection]; ok {
		delete(coll, key)
	}
	return nil
}

func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := &memoryTx{store: s, writes: make(map[[2]string]Fields)}
	if err := fn(staged); err != nil {
		return err
	}
	for k, fields := range staged.writes {
		s.put(k[0], k[1], fields)
	}
	return nil
}

type memoryTx struct {
	store  *MemoryStore
	writes map[[2]string]Fields
}

func (t *memoryTx) Get(ctx context.Context, collection, key string) (Fields, error) {
	if fields, ok := t.writes[[2]string{collection, key}]; ok {
		return deepCopy(fields), nil
	}
	return t.store.get(collection, key)
}

func (t *memoryTx) Set(ctx context.Context, collection, key string, fields Fields) error {
	t.writes[[2]string{collection, key}] = deepCopy(fields)
	return nil
}

// get and put assume the store mutex is held.

func (s *MemoryStore) get(collection, key string) (Fields, error) {
	coll, ok := s.docs[collection]
	if !ok {
		return nil, ErrNotFound
	}
	fields, ok := coll[key]
	if !ok {
		return nil, ErrNotFound
	}
	return deepCopy(fields), nil
}

func (s *MemoryStore) put(collection, key string, fields Fields) {
	coll, ok := s.docs[collection]
	if !ok {
		coll = make(map[string]Fields)
		s.docs[collection] = coll
	}
	coll[key] = deepCopy(fields)
}

// deepCopy round-trips through JSON so callers never share references with
// the store, and so values normalize the same way the postgres store does.
func deepCopy(fields Fields) Fields {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	var out Fields
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
