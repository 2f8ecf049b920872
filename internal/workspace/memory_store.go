package workspace

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory workspace store for demo/development.
type MemoryStore struct {
	mu             sync.RWMutex
	clients        map[string]*Client
	grants         map[string]map[string]bool // userID → clientIDs
	included       map[string]map[string]bool // agencyID → clientIDs
	keywords       map[string]map[string]bool // clientID → phrases
	targetKeywords map[string]map[string]bool // clientID → phrases
	lookups        []*ResearchLookup
}

// NewMemoryStore creates a new in-memory workspace store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients:        make(map[string]*Client),
		grants:         make(map[string]map[string]bool),
		included:       make(map[string]map[string]bool),
		keywords:       make(map[string]map[string]bool),
		targetKeywords: make(map[string]map[string]bool),
	}
}

func (m *MemoryStore) CreateClient(_ context.Context, c *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	m.clients[c.ID] = &cp
	return nil
}

func (m *MemoryStore) GetClient(_ context.Context, id string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) GrantAccess(_ context.Context, userID, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[clientID]; !ok {
		return ErrClientNotFound
	}
	addTo(m.grants, userID, clientID)
	return nil
}

func (m *MemoryStore) MarkIncluded(_ context.Context, agencyID, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[clientID]; !ok {
		return ErrClientNotFound
	}
	addTo(m.included, agencyID, clientID)
	return nil
}

func (m *MemoryStore) ClientIDsForUsers(_ context.Context, userIDs []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	for _, u := range userIDs {
		for id := range m.grants[u] {
			seen[id] = true
		}
	}
	return sortedKeys(seen), nil
}

func (m *MemoryStore) IncludedClientIDs(_ context.Context, agencyID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return sortedKeys(m.included[agencyID]), nil
}

func (m *MemoryStore) KeywordCounts(_ context.Context, clientIDs []string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return countIn(m.keywords, clientIDs), nil
}

func (m *MemoryStore) TargetKeywordCounts(_ context.Context, clientIDs []string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return countIn(m.targetKeywords, clientIDs), nil
}

func (m *MemoryStore) AddKeywords(_ context.Context, clientID string, phrases []string) (int, error) {
	return m.addPhrases(m.keywords, clientID, phrases)
}

func (m *MemoryStore) AddTargetKeywords(_ context.Context, clientID string, phrases []string) (int, error) {
	return m.addPhrases(m.targetKeywords, clientID, phrases)
}

func (m *MemoryStore) CreateLookup(_ context.Context, l *ResearchLookup) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *l
	cp.Keywords = append([]string(nil), l.Keywords...)
	m.lookups = append(m.lookups, &cp)
	return nil
}

// Lookups returns the recorded research requests for an agency.
func (m *MemoryStore) Lookups(agencyID string) []*ResearchLookup {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ResearchLookup
	for _, l := range m.lookups {
		if l.AgencyID == agencyID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out
}

func (m *MemoryStore) addPhrases(table map[string]map[string]bool, clientID string, phrases []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[clientID]; !ok {
		return 0, ErrClientNotFound
	}
	added := 0
	for _, p := range phrases {
		if !table[clientID][p] {
			addTo(table, clientID, p)
			added++
		}
	}
	return added, nil
}

func addTo(set map[string]map[string]bool, key, value string) {
	if set[key] == nil {
		set[key] = make(map[string]bool)
	}
	set[key][value] = true
}

func countIn(table map[string]map[string]bool, clientIDs []string) map[string]int {
	out := make(map[string]int, len(clientIDs))
	for _, id := range clientIDs {
		if n := len(table[id]); n > 0 {
			out[id] = n
		}
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var _ Store = (*MemoryStore)(nil)
