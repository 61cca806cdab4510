package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vetexchange/vetex/internal/trade"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	listings map[string]map[uint64]*Listing // partition -> tradeID -> listing
	profiles map[string]*Profile            // lowercased address -> profile
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings: make(map[string]map[uint64]*Listing),
		profiles: make(map[string]*Profile),
		now:      time.Now,
	}
}

func (m *MemoryStore) UpsertListing(_ context.Context, partition string, l *Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	part, ok := m.listings[partition]
	if !ok {
		part = make(map[uint64]*Listing)
		m.listings[partition] = part
	}

	cp := *l
	cp.UpdatedAt = m.now()
	if existing, ok := part[l.TradeID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	part[l.TradeID] = &cp
	return nil
}

func (m *MemoryStore) GetListing(_ context.Context, partition string, tradeID uint64) (*Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.listings[partition][tradeID]
	if !ok {
		return nil, ErrListingNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *MemoryStore) ListListings(_ context.Context, partition string, limit int) ([]*Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	part := m.listings[partition]
	result := make([]*Listing, 0, len(part))
	for _, l := range part {
		cp := *l
		result = append(result, &cp)
	}

	// Newest trades first, matching the board's ordering.
	sort.Slice(result, func(i, j int) bool {
		return result[i].TradeID > result[j].TradeID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) UpdateListingStatus(_ context.Context, partition string, tradeID uint64, status trade.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.listings[partition][tradeID]
	if !ok {
		return ErrListingNotFound
	}
	l.Status = status
	l.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) UpsertProfile(_ context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	cp.Address = strings.ToLower(p.Address)
	cp.UpdatedAt = m.now()
	m.profiles[cp.Address] = &cp
	return nil
}

func (m *MemoryStore) GetProfile(_ context.Context, address string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[strings.ToLower(address)]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
