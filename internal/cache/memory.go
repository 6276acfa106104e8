package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type memoryEntry struct {
	key      string
	value    any
	storedAt time.Time
}

// Memory is a thread-safe in-memory cache with lazy TTL expiration and an
// optional LRU capacity bound.
//
// An entry is readable only while now-storedAt < ttl. Expired entries are
// never swept in the background; the Get that observes one removes it.
type Memory struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	capacity  int
	ttl       time.Duration
	items     map[string]*list.Element
	evictList *list.List
}

// Option configures a Memory cache.
type Option func(*Memory)

// WithClock sets the time source used to stamp and expire entries.
func WithClock(c clockwork.Clock) Option {
	return func(m *Memory) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithCapacity bounds the number of entries. When full, the least recently
// used entry is evicted. capacity <= 0 means unbounded.
func WithCapacity(capacity int) Option {
	return func(m *Memory) { m.capacity = capacity }
}

// NewMemory creates a new in-memory cache whose entries live for ttl.
func NewMemory(ttl time.Duration, opts ...Option) *Memory {
	m := &Memory{
		clock:     clockwork.NewRealClock(),
		ttl:       ttl,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the cached value for key, or false if missing or expired.
func (m *Memory) Get(key string) (any, bool) {
	v, ok, _ := m.Lookup(key)
	return v, ok
}

// Lookup is Get that also reports whether a miss was caused by expiry.
func (m *Memory) Lookup(key string) (value any, ok bool, expired bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, found := m.items[key]
	if !found {
		return nil, false, false
	}

	entry := elem.Value.(*memoryEntry)
	if m.clock.Since(entry.storedAt) >= m.ttl {
		m.removeElement(elem)
		return nil, false, true
	}

	m.evictList.MoveToFront(elem)
	return entry.value, true, false
}

// Set stores value under key, replacing any previous entry and restarting
// its lifetime.
func (m *Memory) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if elem, ok := m.items[key]; ok {
		m.evictList.MoveToFront(elem)
		entry := elem.Value.(*memoryEntry)
		entry.value = value
		entry.storedAt = now
		return
	}

	if m.capacity > 0 && m.evictList.Len() >= m.capacity {
		m.removeOldest()
	}

	elem := m.evictList.PushFront(&memoryEntry{key: key, value: value, storedAt: now})
	m.items[key] = elem
}

// Delete removes an entry from the cache.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		m.removeElement(elem)
	}
}

// Len returns the number of stored entries, including expired entries that
// have not been observed yet.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictList.Len()
}

// Clear removes all entries from the cache.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*list.Element)
	m.evictList.Init()
}

func (m *Memory) removeOldest() {
	elem := m.evictList.Back()
	if elem != nil {
		m.removeElement(elem)
	}
}

func (m *Memory) removeElement(elem *list.Element) {
	m.evictList.Remove(elem)
	entry := elem.Value.(*memoryEntry)
	delete(m.items, entry.key)
}
