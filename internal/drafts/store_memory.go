package drafts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

type draftKey struct {
	tenantID domain.TenantID
	id       uuid.UUID
}

// InMemory is a map-backed draft store for tests and single-node runs.
// Expiry is checked lazily on read.
type InMemory struct {
	mu     sync.RWMutex
	drafts map[draftKey]*Draft
	now    func() time.Time
}

// NewInMemory creates an empty in-memory draft store.
func NewInMemory() *InMemory {
	return &InMemory{
		drafts: make(map[draftKey]*Draft),
		now:    time.Now,
	}
}

func (s *InMemory) Put(_ context.Context, draft *Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *draft
	s.drafts[draftKey{draft.TenantID, draft.ID}] = &cp
	return nil
}

func (s *InMemory) Get(_ context.Context, tenantID domain.TenantID, id uuid.UUID) (*Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	draft, ok := s.drafts[draftKey{tenantID, id}]
	if !ok || draft.Expired(s.now()) {
		return nil, sentinel.ErrNotFound
	}
	cp := *draft
	return &cp, nil
}

func (s *InMemory) Delete(_ context.Context, tenantID domain.TenantID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := draftKey{tenantID, id}
	if _, ok := s.drafts[key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.drafts, key)
	return nil
}

func (s *InMemory) ListByTenant(_ context.Context, tenantID domain.TenantID) ([]*Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	var out []*Draft
	for key, draft := range s.drafts {
		if key.tenantID != tenantID || draft.Expired(now) {
			continue
		}
		cp := *draft
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAtUTC.Equal(out[j].CreatedAtUTC) {
			return out[i].CreatedAtUTC.Before(out[j].CreatedAtUTC)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}
