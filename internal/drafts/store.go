package drafts

import (
	"context"

	"github.com/google/uuid"

	"attest/pkg/domain"
)

// Store persists drafts with expiry. Implementations return
// sentinel.ErrNotFound for missing or expired drafts.
type Store interface {
	Put(ctx context.Context, draft *Draft) error
	Get(ctx context.Context, tenantID domain.TenantID, id uuid.UUID) (*Draft, error)
	Delete(ctx context.Context, tenantID domain.TenantID, id uuid.UUID) error
	ListByTenant(ctx context.Context, tenantID domain.TenantID) ([]*Draft, error)
}
