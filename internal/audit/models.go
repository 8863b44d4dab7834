// Package audit implements the append-only, sequence-numbered event stream
// that accompanies every evidence mutation attempt, plus its replay
// projection and the outbox worker that ships events to Kafka.
package audit

import (
	"time"

	"github.com/google/uuid"

	"attest/internal/ledger/models"
	"attest/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and downstream routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require tamper-proof storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring and
	// forensics: blocked mutations, refused deletions, tenant mismatches.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for operational visibility.
	CategoryOperations EventCategory = "operations"
)

// Action names one attempted or completed state transition.
type Action string

const (
	ActionCreated         Action = "CREATED"
	ActionSealed          Action = "SEALED"
	ActionRejected        Action = "REJECTED"
	ActionFailed          Action = "FAILED"
	ActionMutationAttempt Action = "MUTATION_ATTEMPTED"
	ActionNormalized      Action = "NORMALIZED"
	ActionSuperseded      Action = "SUPERSEDED"
	ActionQuarantined     Action = "QUARANTINED"
)

// actionCategories maps each action to its category.
var actionCategories = map[Action]EventCategory{
	ActionCreated:         CategoryCompliance,
	ActionSealed:          CategoryCompliance,
	ActionRejected:        CategoryCompliance,
	ActionFailed:          CategoryCompliance,
	ActionNormalized:      CategoryCompliance,
	ActionSuperseded:      CategoryCompliance,
	ActionQuarantined:     CategoryCompliance,
	ActionMutationAttempt: CategorySecurity,
}

// Category returns the EventCategory for this action.
// Unknown actions default to CategoryOperations.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is one immutable entry in an evidence aggregate's audit stream.
//
// Invariants:
//   - append-only: never updated or deleted
//   - SequenceNumber is strictly increasing per (TenantID, EvidenceID),
//     gapless, starting at 1
//   - every accepted or blocked transition attempt has exactly one event
//   - the ordered stream is sufficient to reconstruct the live record (replay.go)
type Event struct {
	ID             uuid.UUID          `json:"id"`
	TenantID       domain.TenantID    `json:"tenant_id"`
	EvidenceID     domain.EvidenceID  `json:"evidence_id"`
	SequenceNumber int64              `json:"sequence_number"`
	Action         Action             `json:"action"`
	ActorID        string             `json:"actor_id"`
	ActorRole      string             `json:"actor_role,omitempty"`
	BeforeState    models.LedgerState `json:"before_state,omitempty"`
	AfterState     models.LedgerState `json:"after_state,omitempty"`
	// Outcome is the HTTP-status-equivalent result code of the attempt.
	Outcome       int            `json:"outcome"`
	Context       map[string]any `json:"context,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	RequestID     string         `json:"request_id,omitempty"`
	CreatedAtUTC  time.Time      `json:"created_at_utc"`
}
