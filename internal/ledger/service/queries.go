package service

import (
	"context"

	"attest/internal/audit"
	"attest/internal/ledger/models"
	"attest/internal/ledger/store"
	"attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

// Get returns a single evidence record. A record belonging to a tenant the
// caller holds no grant for reads as not found.
func (s *Service) Get(ctx context.Context, rawTenantID, rawEvidenceID string) (*models.Evidence, error) {
	tenantID, err := s.lookupTenant(ctx, rawTenantID)
	if err != nil {
		return nil, err
	}
	evidenceID, err := domain.ParseEvidenceID(rawEvidenceID)
	if err != nil {
		return nil, err
	}
	record, err := s.evidence.FindByID(ctx, tenantID, evidenceID)
	return record, wrapFindErr(err)
}

// GetByCorrelation resolves the evidence record created under a correlation
// id. Commit retries lean on this after the staging copy is gone.
func (s *Service) GetByCorrelation(ctx context.Context, rawTenantID, correlationID string) (*models.Evidence, error) {
	tenantID, err := s.lookupTenant(ctx, rawTenantID)
	if err != nil {
		return nil, err
	}
	if correlationID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "correlation id must not be empty")
	}
	record, err := s.evidence.FindByCorrelation(ctx, tenantID, correlationID)
	return record, wrapFindErr(err)
}

// List returns the tenant's evidence records, optionally filtered by state
// and ingestion path.
func (s *Service) List(ctx context.Context, rawTenantID string, filter store.Filter) ([]*models.Evidence, error) {
	tenantID, err := s.guard.Validate(ctx, rawTenantID)
	if err != nil {
		return nil, err
	}
	records, err := s.evidence.List(ctx, tenantID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list evidence")
	}
	return records, nil
}

// AuditTrail returns the full ordered audit stream for one evidence record.
func (s *Service) AuditTrail(ctx context.Context, rawTenantID, rawEvidenceID string) ([]audit.Event, error) {
	tenantID, err := s.lookupTenant(ctx, rawTenantID)
	if err != nil {
		return nil, err
	}
	evidenceID, err := domain.ParseEvidenceID(rawEvidenceID)
	if err != nil {
		return nil, err
	}
	if _, err := s.evidence.FindByID(ctx, tenantID, evidenceID); err != nil {
		return nil, wrapFindErr(err)
	}
	events, err := s.audits.ListByEvidence(ctx, tenantID, evidenceID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit trail")
	}
	return events, nil
}

// VerificationReport is the result of an on-demand integrity check.
type VerificationReport struct {
	EvidenceID         domain.EvidenceID  `json:"evidence_id"`
	LedgerState        models.LedgerState `json:"ledger_state"`
	HashesValid        bool               `json:"hashes_valid"`
	SequenceGapless    bool               `json:"sequence_gapless"`
	ProjectionMatches  bool               `json:"projection_matches"`
	CombinedHashSHA256 string             `json:"combined_hash_sha256"`
	Findings           []string           `json:"findings,omitempty"`
}

// Intact reports whether every check passed.
func (r *VerificationReport) Intact() bool {
	return r.HashesValid && r.SequenceGapless && r.ProjectionMatches
}

// Verify recomputes the record's hash bindings, checks its audit stream for
// sequence gaps, and replays the stream to confirm the projection matches the
// live record.
func (s *Service) Verify(ctx context.Context, rawTenantID, rawEvidenceID string) (*VerificationReport, error) {
	tenantID, err := s.lookupTenant(ctx, rawTenantID)
	if err != nil {
		return nil, err
	}
	evidenceID, err := domain.ParseEvidenceID(rawEvidenceID)
	if err != nil {
		return nil, err
	}
	record, err := s.evidence.FindByID(ctx, tenantID, evidenceID)
	if err != nil {
		return nil, wrapFindErr(err)
	}

	report := &VerificationReport{
		EvidenceID:         record.EvidenceID,
		LedgerState:        record.LedgerState,
		HashesValid:        true,
		SequenceGapless:    true,
		ProjectionMatches:  true,
		CombinedHashSHA256: record.CombinedHashSHA256,
	}
	if err := record.VerifyIntegrity(); err != nil {
		report.HashesValid = false
		report.Findings = append(report.Findings, dErrors.MessageOf(err))
	}

	events, err := s.audits.ListByEvidence(ctx, tenantID, evidenceID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit trail")
	}
	if err := audit.VerifySequence(events); err != nil {
		report.SequenceGapless = false
		report.ProjectionMatches = false
		report.Findings = append(report.Findings, dErrors.MessageOf(err))
		return report, nil
	}

	projected, err := audit.ProjectState(events)
	if err != nil {
		report.ProjectionMatches = false
		report.Findings = append(report.Findings, dErrors.MessageOf(err))
		return report, nil
	}
	if projected.LedgerState != record.LedgerState ||
		projected.CombinedHashSHA256 != record.CombinedHashSHA256 ||
		projected.Version != record.Version {
		report.ProjectionMatches = false
		report.Findings = append(report.Findings, "replayed audit stream does not reproduce the live record")
	}
	return report, nil
}

// MutationCheck answers whether a named operation would currently be allowed.
type MutationCheck struct {
	Operation string `json:"operation"`
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason,omitempty"`
}

type checkableOperation struct {
	action audit.Action
	check  func(*models.Evidence) error
}

// checkableOperations maps a check request to the precondition it asks about.
// DELETE is checkable but never allowed: the answer carries the same refusal
// Delete itself returns.
var checkableOperations = map[string]checkableOperation{
	"SEAL":       {audit.ActionSealed, func(e *models.Evidence) error { return e.CanSeal() }},
	"REJECT":     {audit.ActionRejected, func(e *models.Evidence) error { return e.CanReject("precheck") }},
	"FAIL":       {audit.ActionFailed, func(e *models.Evidence) error { return e.CanFail("precheck") }},
	"NORMALIZE":  {audit.ActionNormalized, func(e *models.Evidence) error { return e.CanNormalize() }},
	"SUPERSEDE":  {audit.ActionSuperseded, func(e *models.Evidence) error { return e.CanSupersede() }},
	"QUARANTINE": {audit.ActionQuarantined, func(e *models.Evidence) error { return e.CanQuarantine() }},
	"DELETE":     {"DELETE", func(*models.Evidence) error { return errDeleteRefused() }},
}

func errDeleteRefused() error {
	return dErrors.New(dErrors.CodeForbidden,
		"evidence records cannot be deleted, supersede the record instead")
}

// CheckMutation evaluates a transition's preconditions without applying it.
// The record is never modified. A denied check still lands on the audit
// stream as MUTATION_ATTEMPTED: asking about an immutable record is itself a
// fact the trail must hold.
func (s *Service) CheckMutation(ctx context.Context, rawTenantID, rawEvidenceID, operation string) (*MutationCheck, error) {
	op, ok := checkableOperations[operation]
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown operation: "+operation)
	}
	record, err := s.Get(ctx, rawTenantID, rawEvidenceID)
	if err != nil {
		return nil, err
	}
	result := &MutationCheck{Operation: operation, Allowed: true}
	if err := op.check(record); err != nil {
		result.Allowed = false
		result.Reason = dErrors.MessageOf(err)
		if recErr := s.recordBlockedAttempt(ctx, record.TenantID, record.EvidenceID, record.LedgerState, op.action, "", err); recErr != nil {
			return nil, recErr
		}
	}
	return result, nil
}

// Delete always refuses: the ledger is append-only and records are replaced
// through supersession. The refusal itself is audited on the record's stream.
func (s *Service) Delete(ctx context.Context, rawTenantID, rawEvidenceID string) error {
	tenantID, err := s.lookupTenant(ctx, rawTenantID)
	if err != nil {
		return err
	}
	evidenceID, err := domain.ParseEvidenceID(rawEvidenceID)
	if err != nil {
		return err
	}
	record, err := s.evidence.FindByID(ctx, tenantID, evidenceID)
	if err != nil {
		return wrapFindErr(err)
	}

	refusal := errDeleteRefused()
	if err := s.recordBlockedAttempt(ctx, tenantID, evidenceID, record.LedgerState, "DELETE", "", refusal); err != nil {
		return err
	}
	return refusal
}
