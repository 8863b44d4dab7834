package store

import (
	"context"
	"sort"
	"sync"

	"attest/internal/ledger/models"
	"attest/pkg/domain"
	"attest/pkg/platform/sentinel"
	txcontext "attest/pkg/platform/tx"
)

type aggregateKey struct {
	tenant   domain.TenantID
	evidence domain.EvidenceID
}

type correlationKey struct {
	tenant      domain.TenantID
	correlation string
}

// InMemory holds evidence records behind a single mutex. Execute runs its
// callbacks under the lock, which serializes concurrent transitions against
// the same record the way FOR UPDATE does in the postgres store.
type InMemory struct {
	mu           sync.RWMutex
	records      map[aggregateKey]*models.Evidence
	correlations map[correlationKey]aggregateKey
}

// NewInMemory creates an empty in-memory ledger store.
func NewInMemory() *InMemory {
	return &InMemory{
		records:      make(map[aggregateKey]*models.Evidence),
		correlations: make(map[correlationKey]aggregateKey),
	}
}

// Create persists the record unless its correlation id was already used.
func (s *InMemory) Create(ctx context.Context, e *models.Evidence) (*models.Evidence, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ck := correlationKey{tenant: e.TenantID, correlation: e.CorrelationID}
	if existing, ok := s.correlations[ck]; ok {
		return s.records[existing].Clone(), false, nil
	}

	key := aggregateKey{tenant: e.TenantID, evidence: e.EvidenceID}
	if _, ok := s.records[key]; ok {
		return nil, false, sentinel.ErrAlreadyUsed
	}

	s.records[key] = e.Clone()
	s.correlations[ck] = key
	if j, ok := txcontext.JournalFrom(ctx); ok {
		j.OnRollback(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.records, key)
			delete(s.correlations, ck)
		})
	}
	return e.Clone(), true, nil
}

// FindByID returns the record or sentinel.ErrNotFound.
func (s *InMemory) FindByID(ctx context.Context, tenantID domain.TenantID, evidenceID domain.EvidenceID) (*models.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.records[aggregateKey{tenant: tenantID, evidence: evidenceID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return e.Clone(), nil
}

// FindByCorrelation returns the record created under the correlation id.
func (s *InMemory) FindByCorrelation(ctx context.Context, tenantID domain.TenantID, correlationID string) (*models.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.correlations[correlationKey{tenant: tenantID, correlation: correlationID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.records[key].Clone(), nil
}

// List returns the tenant's records ordered by creation time.
func (s *InMemory) List(ctx context.Context, tenantID domain.TenantID, filter Filter) ([]*models.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Evidence
	for key, e := range s.records {
		if key.tenant != tenantID {
			continue
		}
		if filter.State != "" && e.LedgerState != filter.State {
			continue
		}
		if filter.Path != "" && e.IngestionPath != filter.Path {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAtUTC.Equal(out[j].CreatedAtUTC) {
			return out[i].EvidenceID.String() < out[j].EvidenceID.String()
		}
		return out[i].CreatedAtUTC.Before(out[j].CreatedAtUTC)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Execute runs validate then mutate under the store lock.
func (s *InMemory) Execute(ctx context.Context, tenantID domain.TenantID, evidenceID domain.EvidenceID,
	validate func(*models.Evidence) error,
	mutate func(*models.Evidence) error,
) (*models.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[aggregateKey{tenant: tenantID, evidence: evidenceID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	if err := validate(e.Clone()); err != nil {
		return nil, err
	}

	// Mutate a copy so a failing mutation leaves the stored record intact.
	next := e.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.Version = e.Version + 1
	key := aggregateKey{tenant: tenantID, evidence: evidenceID}
	s.records[key] = next
	if j, ok := txcontext.JournalFrom(ctx); ok {
		// The prior record is restored when the surrounding unit fails,
		// so a committed mutation whose audit append failed never
		// survives on its own.
		prev := e
		j.OnRollback(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.records[key] = prev
		})
	}
	return next.Clone(), nil
}
