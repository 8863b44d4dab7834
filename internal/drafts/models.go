// Package drafts holds the pre-ledger staging area. A draft is mutable,
// tenant-scoped and expiring; nothing in it is hashed or audited until it is
// committed through the ingestion gateway, at which point the draft is gone
// and an evidence record exists.
package drafts

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

// Draft is staged evidence content. Unlike ledger records drafts may be
// edited and abandoned freely.
type Draft struct {
	ID              uuid.UUID       `json:"id"`
	TenantID        domain.TenantID `json:"tenant_id"`
	IngestionPath   string          `json:"ingestion_path"`
	DeclaredContext map[string]any  `json:"declared_context,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	FileURL         string          `json:"file_url,omitempty"`
	FileHashSHA256  string          `json:"file_hash_sha256,omitempty"`
	ActorID         string          `json:"actor_id"`
	CreatedAtUTC    time.Time       `json:"created_at_utc"`
	UpdatedAtUTC    time.Time       `json:"updated_at_utc"`
	ExpiresAtUTC    time.Time       `json:"expires_at_utc"`
}

// Expired reports whether the draft's retention window has passed.
func (d *Draft) Expired(now time.Time) bool {
	return now.After(d.ExpiresAtUTC)
}

// NewDraft stages content for a tenant. Path and payload are checked only on
// commit; a draft may be saved half-finished.
func NewDraft(tenantID domain.TenantID, actorID string, now time.Time, ttl time.Duration) (*Draft, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "draft requires a tenant id")
	}
	if actorID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "actor_id is required")
	}
	t := now.UTC()
	return &Draft{
		ID:           uuid.New(),
		TenantID:     tenantID,
		ActorID:      actorID,
		CreatedAtUTC: t,
		UpdatedAtUTC: t,
		ExpiresAtUTC: t.Add(ttl),
	}, nil
}
