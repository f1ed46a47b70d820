package storage

import (
	"context"
	"sync"

	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/ports"
)

// MemoryHistory is an in-process HistoryStore used by tests and the
// "memory" backend.
type MemoryHistory struct {
	mu           sync.RWMutex
	latest       map[string]domain.HistoryEntry
	revisions    map[string][]domain.HistoryEntry
	fingerprints map[string]string
}

var _ ports.HistoryStore = (*MemoryHistory)(nil)

// NewMemoryHistory builds an empty store.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{
		latest:       map[string]domain.HistoryEntry{},
		revisions:    map[string][]domain.HistoryEntry{},
		fingerprints: map[string]string{},
	}
}

// Get returns the latest entry for key.
func (m *MemoryHistory) Get(_ context.Context, key domain.HistoryKey) (domain.HistoryEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.latest[key.String()]
	return entry, ok, nil
}

// CompareAndSet swaps the latest entry when the stored hash matches expectedHash.
func (m *MemoryHistory) CompareAndSet(_ context.Context, key domain.HistoryKey, expectedHash string, entry domain.HistoryEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := key.String()
	current, ok := m.latest[id]
	switch {
	case expectedHash == "" && ok:
		return false, nil
	case expectedHash != "" && (!ok || current.ContentHash != expectedHash):
		return false, nil
	}

	entry.Key = key
	m.latest[id] = entry
	m.revisions[id] = append(m.revisions[id], entry)
	if _, seen := m.fingerprints[entry.Fingerprint]; !seen {
		m.fingerprints[entry.Fingerprint] = id
	}
	return true, nil
}

// FindByFingerprint returns the first entry stored with fingerprint.
func (m *MemoryHistory) FindByFingerprint(_ context.Context, fingerprint string) (domain.HistoryEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.fingerprints[fingerprint]
	if !ok {
		return domain.HistoryEntry{}, false, nil
	}
	for _, rev := range m.revisions[id] {
		if rev.Fingerprint == fingerprint {
			return rev, true, nil
		}
	}
	return domain.HistoryEntry{}, false, nil
}

// Revisions returns all revisions for key, oldest first.
func (m *MemoryHistory) Revisions(_ context.Context, key domain.HistoryKey) ([]domain.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	revs := m.revisions[key.String()]
	out := make([]domain.HistoryEntry, len(revs))
	copy(out, revs)
	return out, nil
}
