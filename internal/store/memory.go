package store

import (
	"cmp"
	"maps"
	"slices"
	"strings"
	"sync"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Snapshots are keyed by lower-cased "type/key", with new snapshots replacing
// previous ones. Subscribers receive updates via buffered channels (buffer
// size 100). Updates are sent non-blocking; if a subscriber's buffer is full,
// the update is dropped for that subscriber.
type MemoryStore struct {
	mu          sync.RWMutex
	snapshots   map[string]NodeSnapshot
	subscribers map[chan NodeSnapshot]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots:   make(map[string]NodeSnapshot),
		subscribers: make(map[chan NodeSnapshot]struct{}),
	}
}

func storeKey(nodeType, key string) string {
	return strings.ToLower(nodeType + "/" + key)
}

// Update stores snap and notifies all subscribers.
func (m *MemoryStore) Update(snap NodeSnapshot) (NodeSnapshot, bool) {
	snap.Labels = maps.Clone(snap.Labels)
	k := storeKey(snap.Type, snap.Key)

	m.mu.Lock()
	prev, existed := m.snapshots[k]
	m.snapshots[k] = snap
	m.mu.Unlock()

	m.notifySubscribers(snap)
	return prev, existed
}

// Get returns the snapshot stored for (nodeType, key).
func (m *MemoryStore) Get(nodeType, key string) (NodeSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[storeKey(nodeType, key)]
	return s, ok
}

// GetAll returns a sorted copy of every stored snapshot.
func (m *MemoryStore) GetAll() []NodeSnapshot {
	m.mu.RLock()
	results := make([]NodeSnapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		results = append(results, s)
	}
	m.mu.RUnlock()

	slices.SortFunc(results, func(a, b NodeSnapshot) int {
		return cmp.Or(cmp.Compare(a.Type, b.Type), cmp.Compare(a.Key, b.Key))
	})
	return results
}

// Subscribe creates a new subscription and returns a channel for receiving
// updates.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan NodeSnapshot {
	ch := make(chan NodeSnapshot, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan NodeSnapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends snap to every subscriber without blocking.
func (m *MemoryStore) notifySubscribers(snap NodeSnapshot) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- snap:
		default:
			// subscriber is slow, drop the message
		}
	}
}
