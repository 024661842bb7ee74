package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryLayerName labels the in-process layer in metrics and logs.
const MemoryLayerName = "memory"

type memoryEntry struct {
	key     string
	value   []byte
	expires time.Time
}

// Memory is a bounded in-process layer. When full it evicts the oldest
// insert first.
type Memory struct {
	mu      sync.Mutex
	size    int
	ttl     time.Duration
	order   *list.List
	entries map[string]*list.Element
	now     func() time.Time
}

// NewMemory returns a layer holding at most size entries, each for ttl
// (ttl <= 0 keeps entries until evicted).
func NewMemory(size int, ttl time.Duration) *Memory {
	if size < 1 {
		size = 1
	}
	return &Memory{
		size:    size,
		ttl:     ttl,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Name implements Layer.
func (m *Memory) Name() string { return MemoryLayerName }

// Get implements Layer.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	ent := e.Value.(*memoryEntry)
	if !ent.expires.IsZero() && m.now().After(ent.expires) {
		m.order.Remove(e)
		delete(m.entries, key)
		return nil, false, nil
	}
	return ent.value, true, nil
}

// Set implements Layer.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expires time.Time
	if m.ttl > 0 {
		expires = m.now().Add(m.ttl)
	}
	if e, ok := m.entries[key]; ok {
		ent := e.Value.(*memoryEntry)
		ent.value, ent.expires = value, expires
		return nil
	}
	for m.order.Len() >= m.size {
		oldest := m.order.Front()
		m.order.Remove(oldest)
		delete(m.entries, oldest.Value.(*memoryEntry).key)
	}
	m.entries[key] = m.order.PushBack(&memoryEntry{key: key, value: value, expires: expires})
	return nil
}

// Len returns the number of held entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
