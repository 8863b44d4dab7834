// Package store persists evidence records. Implementations are
// interface-driven so the service layer can run against in-memory storage in
// unit tests and PostgreSQL in production without rewiring business code.
package store

import (
	"context"

	"attest/internal/ledger/models"
	"attest/pkg/domain"
)

// Filter narrows List results. Zero values match everything.
type Filter struct {
	State models.LedgerState
	Path  domain.IngestionPath
	Limit int
}

// Store is the ledger persistence boundary.
//
// There is deliberately no Delete: records leave the ledger only by
// supersession, and Execute is the single mutation entrypoint.
type Store interface {
	// Create persists a new record unless the (tenant, correlation id)
	// pair was already used; in that case it returns the original record
	// and created=false. A retried create is not an error.
	Create(ctx context.Context, e *models.Evidence) (*models.Evidence, bool, error)

	FindByID(ctx context.Context, tenantID domain.TenantID, evidenceID domain.EvidenceID) (*models.Evidence, error)

	FindByCorrelation(ctx context.Context, tenantID domain.TenantID, correlationID string) (*models.Evidence, error)

	// List returns the tenant's records ordered by creation time.
	List(ctx context.Context, tenantID domain.TenantID, filter Filter) ([]*models.Evidence, error)

	// Execute runs validate then mutate as one atomic read-check-write
	// unit: no interleaved writer can change the record between the check
	// and the mutation. The record's version is bumped once per call.
	Execute(ctx context.Context, tenantID domain.TenantID, evidenceID domain.EvidenceID,
		validate func(*models.Evidence) error,
		mutate func(*models.Evidence) error,
	) (*models.Evidence, error)
}
