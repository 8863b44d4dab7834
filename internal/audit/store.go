package audit

import (
	"context"

	"attest/pkg/domain"
)

// Store is the append-only persistence boundary for audit events.
//
// Append assigns the next sequence number for the (tenant, evidence) pair
// atomically with the write; there is deliberately no update or delete.
type Store interface {
	Append(ctx context.Context, event *Event) error
	ListByEvidence(ctx context.Context, tenantID domain.TenantID, evidenceID domain.EvidenceID) ([]Event, error)
	// HasCorrelation reports whether an event with the given action and
	// correlation id already exists for the aggregate. Services use it to
	// detect idempotent transition replays.
	HasCorrelation(ctx context.Context, tenantID domain.TenantID, evidenceID domain.EvidenceID, action Action, correlationID string) (bool, error)
}
