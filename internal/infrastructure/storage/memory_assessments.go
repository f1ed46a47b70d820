package storage

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/ports"
)

// MemoryAssessments keeps assessments in process memory.
type MemoryAssessments struct {
	mu     sync.RWMutex
	byID   map[string]domain.Assessment
	unique map[string]string
}

var _ ports.AssessmentRepository = (*MemoryAssessments)(nil)

// NewMemoryAssessments builds an empty repository.
func NewMemoryAssessments() *MemoryAssessments {
	return &MemoryAssessments{
		byID:   map[string]domain.Assessment{},
		unique: map[string]string{},
	}
}

// Save stores the assessment unless one exists for the same key and revision.
func (m *MemoryAssessments) Save(_ context.Context, a domain.Assessment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uniq := revisionKey(a.Key(), a.Change.Revision)
	if _, exists := m.unique[uniq]; exists {
		return false, nil
	}
	m.unique[uniq] = a.ID
	m.byID[a.ID] = a
	return true, nil
}

// Has reports whether the revision of key was assessed.
func (m *MemoryAssessments) Has(_ context.Context, key domain.HistoryKey, revision int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.unique[revisionKey(key, revision)]
	return ok, nil
}

func revisionKey(key domain.HistoryKey, revision int) string {
	return key.String() + "#" + strconv.Itoa(revision)
}

// Get returns an assessment by id or domain.ErrNotFound.
func (m *MemoryAssessments) Get(_ context.Context, id string) (domain.Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.byID[id]
	if !ok {
		return domain.Assessment{}, domain.ErrNotFound
	}
	return a, nil
}

// ListRecent returns matching assessments, newest first.
func (m *MemoryAssessments) ListRecent(_ context.Context, q domain.RecentQuery) ([]domain.Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Assessment
	for _, a := range m.byID {
		if q.Matches(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
