package agency

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory agency store for demo/development.
type MemoryStore struct {
	mu       sync.RWMutex
	agencies map[string]*Agency // by ID
	members  map[string]string  // userID → agencyID
}

// NewMemoryStore creates a new in-memory agency store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agencies: make(map[string]*Agency),
		members:  make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, a *Agency) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	m.agencies[a.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Agency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agencies[id]
	if !ok {
		return nil, ErrAgencyNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) FindByUser(_ context.Context, userID string) (*Agency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.agencies {
		if a.OwnerUserID == userID {
			cp := *a
			return &cp, nil
		}
	}
	if id, ok := m.members[userID]; ok {
		if a, ok := m.agencies[id]; ok {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNoMembership
}

func (m *MemoryStore) FindByStripeCustomer(_ context.Context, customerID string) (*Agency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.agencies {
		if customerID != "" && a.StripeCustomerID == customerID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAgencyNotFound
}

func (m *MemoryStore) UpdateProfile(_ context.Context, id, name string) error {
	return m.mutate(id, func(a *Agency) { a.Name = name })
}

func (m *MemoryStore) SetDefaultClient(_ context.Context, id, clientID string) error {
	return m.mutate(id, func(a *Agency) { a.DefaultClientID = &clientID })
}

func (m *MemoryStore) SetSubscription(_ context.Context, id string, sub Subscription) error {
	return m.mutate(id, func(a *Agency) {
		a.Tier = sub.Tier
		a.BillingClass = sub.BillingClass
		if sub.StripeCustomerID != "" {
			a.StripeCustomerID = sub.StripeCustomerID
		}
		if sub.StripeSubscriptionID != "" {
			a.StripeSubscriptionID = sub.StripeSubscriptionID
		}
	})
}

func (m *MemoryStore) GetCredits(_ context.Context, id string) (int, *time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agencies[id]
	if !ok {
		return 0, nil, ErrAgencyNotFound
	}
	var resetAt *time.Time
	if a.CreditsResetAt != nil {
		t := *a.CreditsResetAt
		resetAt = &t
	}
	return a.CreditsUsed, resetAt, nil
}

func (m *MemoryStore) SetCredits(_ context.Context, id string, used int, resetAt time.Time) error {
	return m.mutate(id, func(a *Agency) {
		a.CreditsUsed = used
		a.CreditsResetAt = &resetAt
	})
}

func (m *MemoryStore) AddMember(_ context.Context, agencyID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agencies[agencyID]; !ok {
		return ErrAgencyNotFound
	}
	if _, ok := m.members[userID]; ok {
		return ErrAlreadyMember
	}
	// Owners already belong to their own agency.
	for _, a := range m.agencies {
		if a.OwnerUserID == userID {
			return ErrAlreadyMember
		}
	}
	m.members[userID] = agencyID
	return nil
}

func (m *MemoryStore) ListMemberIDs(_ context.Context, agencyID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for userID, aid := range m.members {
		if aid == agencyID {
			ids = append(ids, userID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) mutate(id string, fn func(*Agency)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agencies[id]
	if !ok {
		return ErrAgencyNotFound
	}
	fn(a)
	a.UpdatedAt = time.Now()
	return nil
}

var _ Store = (*MemoryStore)(nil)
