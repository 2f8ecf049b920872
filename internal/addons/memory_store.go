package addons

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory add-on store for demo/development.
type MemoryStore struct {
	mu     sync.RWMutex
	addOns map[string]*AddOn // by ID
}

// NewMemoryStore creates a new in-memory add-on store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{addOns: make(map[string]*AddOn)}
}

func (m *MemoryStore) Create(_ context.Context, a *AddOn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	m.addOns[a.ID] = &cp
	return nil
}

func (m *MemoryStore) ListByAgency(_ context.Context, agencyID string) ([]*AddOn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*AddOn
	for _, a := range m.addOns {
		if a.AgencyID == agencyID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Cancel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.addOns[id]
	if !ok {
		return ErrAddOnNotFound
	}
	a.Status = StatusCanceled
	return nil
}

func (m *MemoryStore) ReplaceActive(_ context.Context, agencyID string, rows []*AddOn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.addOns {
		if a.AgencyID == agencyID && a.Status == StatusActive {
			a.Status = StatusCanceled
		}
	}
	for _, a := range rows {
		cp := *a
		m.addOns[a.ID] = &cp
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
