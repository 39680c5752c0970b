package dedup

import (
	"context"
	"sync"
)

// Index is the set of content hashes already ingested. It is an explicit
// collaborator injected into the pipeline rather than process-global state;
// the pipeline serializes its check-and-insert so two workers cannot both
// accept the same new hash.
type Index interface {
	Contains(ctx context.Context, hash string) (bool, error)
	Record(ctx context.Context, hash string) error
}

// MemoryIndex is a mutex-guarded in-memory hash set. It backs tests and a
// single run; persistence across runs comes from PersistentIndex or a store
// scan.
type MemoryIndex struct {
	mu     sync.Mutex
	hashes map[string]struct{}
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{hashes: make(map[string]struct{})}
}

// Preload seeds the index without hitting any backing store.
func (m *MemoryIndex) Preload(hashes []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range hashes {
		m.hashes[h] = struct{}{}
	}
}

func (m *MemoryIndex) Contains(_ context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.hashes[hash]
	return ok, nil
}

func (m *MemoryIndex) Record(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[hash] = struct{}{}
	return nil
}

func (m *MemoryIndex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hashes)
}
