package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"attest/internal/hashing"
	"attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

// Evidence is the aggregate root for a submitted proof record.
//
// Invariants:
//   - (TenantID, EvidenceID) is unique; ID is the globally unique storage key
//   - TenantID is immutable post-creation
//   - once LedgerState == SEALED no field changes except the transition to
//     SUPERSEDED or QUARANTINED, which touches state, hashes and timestamps only
//   - CombinedHashSHA256 always equals
//     CombinedHash(PayloadHashSHA256, MetadataHash(), PreviousHashSHA256)
//   - records are never deleted; supersession is the only replacement path
type Evidence struct {
	ID                   uuid.UUID            `json:"id"`
	TenantID             domain.TenantID      `json:"tenant_id"`
	EvidenceID           domain.EvidenceID    `json:"evidence_id"`
	LedgerState          LedgerState          `json:"ledger_state"`
	IngestionPath        domain.IngestionPath `json:"ingestion_path"`
	DeclaredContext      map[string]any       `json:"declared_context,omitempty"`
	CanonicalPayload     json.RawMessage      `json:"canonical_payload"`
	FileURL              string               `json:"file_url,omitempty"`
	FileHashSHA256       string               `json:"file_hash_sha256,omitempty"`
	PayloadHashSHA256    string               `json:"payload_hash_sha256"`
	PreviousHashSHA256   string               `json:"previous_hash_sha256"`
	CombinedHashSHA256   string               `json:"combined_hash_sha256"`
	ActorID              string               `json:"actor_id"`
	CorrelationID        string               `json:"correlation_id"`
	SealedAtUTC          *time.Time           `json:"sealed_at_utc,omitempty"`
	SupersedesEvidenceID *domain.EvidenceID   `json:"supersedes_evidence_id,omitempty"`
	SupersededByID       *domain.EvidenceID   `json:"superseded_by_id,omitempty"`
	FailureCode          string               `json:"failure_code,omitempty"`
	RejectionReason      string               `json:"rejection_reason,omitempty"`
	Version              int64                `json:"version"`
	CreatedAtUTC         time.Time            `json:"created_at_utc"`
	UpdatedAtUTC         time.Time            `json:"updated_at_utc"`
}

// NewEvidenceInput carries everything the gateway binds at creation time.
type NewEvidenceInput struct {
	TenantID        domain.TenantID
	ActorID         string
	IngestionPath   domain.IngestionPath
	DeclaredContext map[string]any
	Payload         any
	FileURL         string
	FileHashSHA256  string
	CorrelationID   string
	// Supersedes links the new record to a sealed predecessor. The
	// predecessor's combined hash becomes the chain link.
	Supersedes *Evidence
}

// NewEvidence constructs an INGESTED record with content already hashed and
// bound, the only way evidence enters the ledger.
func NewEvidence(in NewEvidenceInput, now time.Time) (*Evidence, error) {
	if in.TenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "evidence requires a tenant id")
	}
	if in.ActorID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "actor_id is required")
	}
	if in.CorrelationID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "correlation_id is required")
	}
	if len(in.CorrelationID) > 256 {
		return nil, dErrors.New(dErrors.CodeValidation, "correlation_id must be 256 characters or less")
	}
	if !in.IngestionPath.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid ingestion_path")
	}
	if in.Payload == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "payload is required")
	}
	if (in.FileURL == "") != (in.FileHashSHA256 == "") {
		return nil, dErrors.New(dErrors.CodeValidation, "file_url and file_hash_sha256 must be provided together")
	}

	canonical, err := hashing.Canonicalize(in.Payload)
	if err != nil {
		return nil, err
	}

	e := &Evidence{
		ID:               uuid.New(),
		TenantID:         in.TenantID,
		EvidenceID:       domain.NewEvidenceID(),
		LedgerState:      StateIngested,
		IngestionPath:    in.IngestionPath,
		DeclaredContext:  in.DeclaredContext,
		CanonicalPayload: canonical,
		FileURL:          in.FileURL,
		FileHashSHA256:   in.FileHashSHA256,
		ActorID:          in.ActorID,
		CorrelationID:    in.CorrelationID,
		Version:          1,
		CreatedAtUTC:     now.UTC(),
		UpdatedAtUTC:     now.UTC(),
	}
	e.PayloadHashSHA256 = hashing.Hash(canonical)

	prev := hashing.GenesisLink
	if in.Supersedes != nil {
		sid := in.Supersedes.EvidenceID
		e.SupersedesEvidenceID = &sid
		prev = in.Supersedes.CombinedHashSHA256
	}
	e.PreviousHashSHA256 = prev
	e.CombinedHashSHA256 = hashing.CombinedHash(e.PayloadHashSHA256, e.MetadataHash(), prev)
	return e, nil
}

// MetadataHash hashes the identity and state metadata that the combined hash
// binds alongside the payload.
func (e *Evidence) MetadataHash() string {
	meta := map[string]any{
		"tenant_id":        e.TenantID.String(),
		"evidence_id":      e.EvidenceID.String(),
		"ledger_state":     e.LedgerState.String(),
		"ingestion_path":   e.IngestionPath.String(),
		"actor_id":         e.ActorID,
		"correlation_id":   e.CorrelationID,
		"file_url":         e.FileURL,
		"file_hash_sha256": e.FileHashSHA256,
		"declared_context": e.DeclaredContext,
	}
	if e.SupersedesEvidenceID != nil {
		meta["supersedes_evidence_id"] = e.SupersedesEvidenceID.String()
	}
	// Canonicalize cannot fail here: the map holds only strings and the
	// already-decoded declared context.
	h, _ := hashing.HashCanonical(meta)
	return h
}

// rechain moves the record one link forward: the current combined hash
// becomes the previous link and a new combined hash binds the updated state.
func (e *Evidence) rechain() {
	e.PreviousHashSHA256 = e.CombinedHashSHA256
	e.CombinedHashSHA256 = hashing.CombinedHash(e.PayloadHashSHA256, e.MetadataHash(), e.PreviousHashSHA256)
}

// VerifyIntegrity recomputes every hash from stored content and compares.
//
// Errors: CodeInvariantViolation naming the first binding that fails.
func (e *Evidence) VerifyIntegrity() error {
	canonical, err := hashing.Canonicalize(json.RawMessage(e.CanonicalPayload))
	if err != nil {
		return err
	}
	if hashing.Hash(canonical) != e.PayloadHashSHA256 {
		return dErrors.New(dErrors.CodeInvariantViolation, "payload hash does not match stored content")
	}
	expected := hashing.CombinedHash(e.PayloadHashSHA256, e.MetadataHash(), e.PreviousHashSHA256)
	if expected != e.CombinedHashSHA256 {
		return dErrors.New(dErrors.CodeInvariantViolation, "combined hash does not bind this record")
	}
	return nil
}

// transitionErr names the rejection for an illegal move. Sealed records get
// their own code so transport can answer with the immutability conflict.
func (e *Evidence) transitionErr(target LedgerState) error {
	if e.LedgerState == StateSealed {
		return dErrors.New(dErrors.CodeSealedImmutable, "evidence is sealed and immutable")
	}
	return dErrors.New(dErrors.CodeInvalidState,
		"illegal transition from "+e.LedgerState.String()+" to "+target.String())
}

// CanSeal checks the ordered preconditions for sealing. First unmet
// precondition determines the rejection reason.
func (e *Evidence) CanSeal() error {
	if !e.LedgerState.CanTransitionTo(StateSealed) {
		return e.transitionErr(StateSealed)
	}
	return e.VerifyIntegrity()
}

// ApplySeal marks the record sealed. Call CanSeal first.
func (e *Evidence) ApplySeal(now time.Time) {
	t := now.UTC()
	e.LedgerState = StateSealed
	e.SealedAtUTC = &t
	e.UpdatedAtUTC = t
	e.rechain()
}

// CanReject checks the ordered preconditions for rejection.
func (e *Evidence) CanReject(reason string) error {
	if !e.LedgerState.CanTransitionTo(StateRejected) {
		return e.transitionErr(StateRejected)
	}
	if reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason_code is required")
	}
	return nil
}

// ApplyReject marks the record rejected. Call CanReject first.
func (e *Evidence) ApplyReject(reason string, now time.Time) {
	e.LedgerState = StateRejected
	e.RejectionReason = reason
	e.UpdatedAtUTC = now.UTC()
	e.rechain()
}

// CanFail checks the ordered preconditions for marking processing failure.
func (e *Evidence) CanFail(failureCode string) error {
	if !e.LedgerState.CanTransitionTo(StateFailed) {
		return e.transitionErr(StateFailed)
	}
	if failureCode == "" {
		return dErrors.New(dErrors.CodeValidation, "failure_code is required")
	}
	return nil
}

// ApplyFail marks the record failed. Call CanFail first.
func (e *Evidence) ApplyFail(failureCode string, now time.Time) {
	e.LedgerState = StateFailed
	e.FailureCode = failureCode
	e.UpdatedAtUTC = now.UTC()
	e.rechain()
}

// CanNormalize gates payload normalization: content may only be rewritten
// while the record is still INGESTED.
func (e *Evidence) CanNormalize() error {
	if e.LedgerState != StateIngested {
		return e.transitionErr(StateIngested)
	}
	return nil
}

// ApplyNormalize replaces the payload with a re-canonicalized form and
// re-binds the hashes. Call CanNormalize first.
func (e *Evidence) ApplyNormalize(payload any, now time.Time) error {
	canonical, err := hashing.Canonicalize(payload)
	if err != nil {
		return err
	}
	e.CanonicalPayload = canonical
	e.PayloadHashSHA256 = hashing.Hash(canonical)
	e.UpdatedAtUTC = now.UTC()
	e.rechain()
	return nil
}

// CanSupersede checks the record may be replaced by a successor.
func (e *Evidence) CanSupersede() error {
	if !e.LedgerState.CanTransitionTo(StateSuperseded) {
		return e.transitionErr(StateSuperseded)
	}
	return nil
}

// ApplySuperseded links the sealed record to its successor.
// Call CanSupersede first.
func (e *Evidence) ApplySuperseded(successor domain.EvidenceID, now time.Time) {
	e.LedgerState = StateSuperseded
	e.SupersededByID = &successor
	e.UpdatedAtUTC = now.UTC()
	e.rechain()
}

// CanQuarantine checks the record may be placed under a compliance hold.
func (e *Evidence) CanQuarantine() error {
	if !e.LedgerState.CanTransitionTo(StateQuarantined) {
		return e.transitionErr(StateQuarantined)
	}
	return nil
}

// ApplyQuarantine places the sealed record under hold. Call CanQuarantine first.
func (e *Evidence) ApplyQuarantine(now time.Time) {
	e.LedgerState = StateQuarantined
	e.UpdatedAtUTC = now.UTC()
	e.rechain()
}

// Clone returns a deep enough copy for the in-memory store to hand out
// without aliasing internal state.
func (e *Evidence) Clone() *Evidence {
	cp := *e
	if e.CanonicalPayload != nil {
		cp.CanonicalPayload = append(json.RawMessage(nil), e.CanonicalPayload...)
	}
	if e.DeclaredContext != nil {
		ctx := make(map[string]any, len(e.DeclaredContext))
		for k, v := range e.DeclaredContext {
			ctx[k] = v
		}
		cp.DeclaredContext = ctx
	}
	if e.SealedAtUTC != nil {
		t := *e.SealedAtUTC
		cp.SealedAtUTC = &t
	}
	if e.SupersedesEvidenceID != nil {
		id := *e.SupersedesEvidenceID
		cp.SupersedesEvidenceID = &id
	}
	if e.SupersededByID != nil {
		id := *e.SupersededByID
		cp.SupersededByID = &id
	}
	return &cp
}
