package docstore

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store for tests and single-instance
// development. Transactions are serialized by one mutex.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string][]byte
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string][]byte)}
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, collection, key string, dst any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	body, ok := m.docs[collection][key]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return decode(collection, key, body, dst)
}

// Set implements Store.
func (m *MemoryStore) Set(ctx context.Context, collection, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := encode(collection, key, v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.put(collection, key, body)
	m.mu.Unlock()
	return nil
}

// Transact implements Store. Writes are buffered and applied only when fn
// succeeds.
func (m *MemoryStore) Transact(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{store: m, writes: make(map[string]map[string][]byte)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for collection, docs := range tx.writes {
		for key, body := range docs {
			m.put(collection, key, body)
		}
	}
	return nil
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context, collection, afterKey string, limit int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.docs[collection]))
	for k := range m.docs[collection] {
		if k > afterKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]Document, len(keys))
	for i, k := range keys {
		out[i] = Document{Key: k, Body: append([]byte(nil), m.docs[collection][k]...)}
	}
	return out, nil
}

// Migrate implements Store.
func (m *MemoryStore) Migrate(context.Context) error { return nil }

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) put(collection, key string, body []byte) {
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string][]byte)
	}
	m.docs[collection][key] = body
}

type memoryTx struct {
	store  *MemoryStore
	writes map[string]map[string][]byte
}

func (t *memoryTx) Get(ctx context.Context, collection, key string, dst any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if body, ok := t.writes[collection][key]; ok {
		return decode(collection, key, body, dst)
	}
	body, ok := t.store.docs[collection][key]
	if !ok {
		return ErrNotFound
	}
	return decode(collection, key, body, dst)
}

func (t *memoryTx) Set(ctx context.Context, collection, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := encode(collection, key, v)
	if err != nil {
		return err
	}
	if t.writes[collection] == nil {
		t.writes[collection] = make(map[string][]byte)
	}
	t.writes[collection][key] = body
	return nil
}
