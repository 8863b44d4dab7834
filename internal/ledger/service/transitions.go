package service

import (
	"context"
	"net/http"

	"attest/internal/audit"
	"attest/internal/ledger/models"
	"attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/httputil"
	"attest/pkg/requestcontext"
)

// transitionSpec describes one step through the lifecycle state machine. The
// engine in applyTransition handles tenant validation, idempotent replay,
// transactional persistence, and blocked-attempt auditing for every step.
type transitionSpec struct {
	action   audit.Action
	validate func(*models.Evidence) error
	mutate   func(*models.Evidence) error
	// eventContext extracts the replay inputs from the mutated record.
	eventContext func(*models.Evidence) map[string]any
}

// applyTransition runs one lifecycle transition end to end. Accepted moves
// commit the record update and the audit event together; refused moves
// produce exactly one MUTATION_ATTEMPTED event and no record change.
func (s *Service) applyTransition(ctx context.Context, rawTenantID, rawEvidenceID, correlationID string, spec transitionSpec) (*models.Evidence, error) {
	tenantID, err := s.lookupTenant(ctx, rawTenantID)
	if err != nil {
		return nil, err
	}
	evidenceID, err := domain.ParseEvidenceID(rawEvidenceID)
	if err != nil {
		return nil, err
	}

	if correlationID != "" {
		replayed, err := s.audits.HasCorrelation(ctx, tenantID, evidenceID, spec.action, correlationID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check transition replay")
		}
		if replayed {
			current, err := s.evidence.FindByID(ctx, tenantID, evidenceID)
			return current, wrapFindErr(err)
		}
	}

	now := requestcontext.Now(ctx)
	var (
		updated     *models.Evidence
		beforeState models.LedgerState
	)
	txErr := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		result, err := s.evidence.Execute(txCtx, tenantID, evidenceID,
			func(e *models.Evidence) error {
				beforeState = e.LedgerState
				return spec.validate(e)
			},
			func(e *models.Evidence) error {
				return spec.mutate(e)
			},
		)
		if err != nil {
			return err
		}
		updated = result

		event := &audit.Event{
			TenantID:      tenantID,
			EvidenceID:    evidenceID,
			Action:        spec.action,
			BeforeState:   beforeState,
			AfterState:    updated.LedgerState,
			Outcome:       http.StatusOK,
			CorrelationID: correlationID,
			CreatedAtUTC:  now.UTC(),
		}
		if spec.eventContext != nil {
			event.Context = spec.eventContext(updated)
		}
		return s.recorder.Record(txCtx, event)
	})
	if txErr == nil {
		return updated, nil
	}

	refused := wrapFindErr(txErr)
	if !isBlockedMutation(refused) {
		return nil, refused
	}
	if err := s.recordBlockedAttempt(ctx, tenantID, evidenceID, beforeState, spec.action, correlationID, refused); err != nil {
		return nil, err
	}
	return nil, refused
}

// isBlockedMutation reports whether the refusal is a lifecycle block that the
// audit trail must capture, as opposed to a lookup or infrastructure failure.
func isBlockedMutation(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeSealedImmutable, dErrors.CodeInvalidState, dErrors.CodeValidation, dErrors.CodeForbidden:
		return true
	default:
		return false
	}
}

// recordBlockedAttempt appends the MUTATION_ATTEMPTED event outside the
// rolled-back transaction so the refusal survives. If this append fails the
// whole request fails: an unauditable refusal must not look like a clean one.
func (s *Service) recordBlockedAttempt(ctx context.Context, tenantID domain.TenantID, evidenceID domain.EvidenceID, state models.LedgerState, attempted audit.Action, correlationID string, cause error) error {
	event := &audit.Event{
		TenantID:    tenantID,
		EvidenceID:  evidenceID,
		Action:      audit.ActionMutationAttempt,
		BeforeState: state,
		AfterState:  state,
		Outcome:     httputil.StatusFor(cause),
		Context: map[string]any{
			audit.ContextKeyBlockedAttempt: string(attempted),
			audit.ContextKeyBlockedReason:  dErrors.MessageOf(cause),
		},
		CorrelationID: correlationID,
		CreatedAtUTC:  requestcontext.Now(ctx).UTC(),
	}
	if err := s.recorder.Record(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to audit blocked mutation")
	}
	s.metrics.IncMutationsBlocked()
	return nil
}

// Seal freezes an ingested record after re-verifying every hash binding.
func (s *Service) Seal(ctx context.Context, tenantID, evidenceID, correlationID string) (*models.Evidence, error) {
	now := requestcontext.Now(ctx)
	sealed, err := s.applyTransition(ctx, tenantID, evidenceID, correlationID, transitionSpec{
		action:   audit.ActionSealed,
		validate: func(e *models.Evidence) error { return e.CanSeal() },
		mutate: func(e *models.Evidence) error {
			e.ApplySeal(now)
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncEvidenceSealed()
	return sealed, nil
}

// Reject marks an ingested record as rejected with a reason code.
func (s *Service) Reject(ctx context.Context, tenantID, evidenceID, reason, correlationID string) (*models.Evidence, error) {
	now := requestcontext.Now(ctx)
	return s.applyTransition(ctx, tenantID, evidenceID, correlationID, transitionSpec{
		action:   audit.ActionRejected,
		validate: func(e *models.Evidence) error { return e.CanReject(reason) },
		mutate: func(e *models.Evidence) error {
			e.ApplyReject(reason, now)
			return nil
		},
		eventContext: func(e *models.Evidence) map[string]any {
			return map[string]any{audit.ContextKeyReason: e.RejectionReason}
		},
	})
}

// Fail marks an ingested record as failed with a processing failure code.
func (s *Service) Fail(ctx context.Context, tenantID, evidenceID, failureCode, correlationID string) (*models.Evidence, error) {
	now := requestcontext.Now(ctx)
	return s.applyTransition(ctx, tenantID, evidenceID, correlationID, transitionSpec{
		action:   audit.ActionFailed,
		validate: func(e *models.Evidence) error { return e.CanFail(failureCode) },
		mutate: func(e *models.Evidence) error {
			e.ApplyFail(failureCode, now)
			return nil
		},
		eventContext: func(e *models.Evidence) map[string]any {
			return map[string]any{audit.ContextKeyFailureCode: e.FailureCode}
		},
	})
}

// Normalize rewrites the payload of a still-ingested record and re-binds its
// hashes. Sealed content can never be normalized.
func (s *Service) Normalize(ctx context.Context, tenantID, evidenceID string, payload any, correlationID string) (*models.Evidence, error) {
	if payload == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "payload is required")
	}
	now := requestcontext.Now(ctx)
	return s.applyTransition(ctx, tenantID, evidenceID, correlationID, transitionSpec{
		action:   audit.ActionNormalized,
		validate: func(e *models.Evidence) error { return e.CanNormalize() },
		mutate: func(e *models.Evidence) error {
			return e.ApplyNormalize(payload, now)
		},
		eventContext: func(e *models.Evidence) map[string]any {
			return map[string]any{audit.ContextKeyPayload: e.CanonicalPayload}
		},
	})
}

// Quarantine places a sealed record under a compliance hold.
func (s *Service) Quarantine(ctx context.Context, tenantID, evidenceID, correlationID string) (*models.Evidence, error) {
	now := requestcontext.Now(ctx)
	return s.applyTransition(ctx, tenantID, evidenceID, correlationID, transitionSpec{
		action:   audit.ActionQuarantined,
		validate: func(e *models.Evidence) error { return e.CanQuarantine() },
		mutate: func(e *models.Evidence) error {
			e.ApplyQuarantine(now)
			return nil
		},
	})
}

// SupersedeInput carries the replacement content for a sealed record.
type SupersedeInput struct {
	TenantID        string
	EvidenceID      string
	IngestionPath   string
	DeclaredContext map[string]any
	Payload         any
	FileURL         string
	FileHashSHA256  string
	CorrelationID   string
}

// Supersede replaces a sealed record with a successor: the predecessor's
// combined hash becomes the successor's previous link, the predecessor moves
// to SUPERSEDED, and both streams record the handover. The whole exchange is
// one transaction.
func (s *Service) Supersede(ctx context.Context, in SupersedeInput) (*models.Evidence, error) {
	tenantID, err := s.lookupTenant(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}
	evidenceID, err := domain.ParseEvidenceID(in.EvidenceID)
	if err != nil {
		return nil, err
	}

	predecessor, err := s.evidence.FindByID(ctx, tenantID, evidenceID)
	if err != nil {
		return nil, wrapFindErr(err)
	}

	if in.CorrelationID != "" {
		replayed, err := s.audits.HasCorrelation(ctx, tenantID, evidenceID, audit.ActionSuperseded, in.CorrelationID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check transition replay")
		}
		if replayed && predecessor.SupersededByID != nil {
			successor, err := s.evidence.FindByID(ctx, tenantID, *predecessor.SupersededByID)
			return successor, wrapFindErr(err)
		}
	}

	if err := predecessor.CanSupersede(); err != nil {
		if recErr := s.recordBlockedAttempt(ctx, tenantID, evidenceID, predecessor.LedgerState, audit.ActionSuperseded, in.CorrelationID, err); recErr != nil {
			return nil, recErr
		}
		return nil, err
	}

	path := predecessor.IngestionPath
	if in.IngestionPath != "" {
		path, err = domain.ParseIngestionPath(in.IngestionPath)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid ingestion_path")
		}
	}

	now := requestcontext.Now(ctx)
	successor, err := models.NewEvidence(models.NewEvidenceInput{
		TenantID:        tenantID,
		ActorID:         requestcontext.ActorID(ctx),
		IngestionPath:   path,
		DeclaredContext: in.DeclaredContext,
		Payload:         in.Payload,
		FileURL:         in.FileURL,
		FileHashSHA256:  in.FileHashSHA256,
		CorrelationID:   in.CorrelationID,
		Supersedes:      predecessor,
	}, now)
	if err != nil {
		return nil, err
	}

	var result *models.Evidence
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		stored, created, err := s.evidence.Create(txCtx, successor)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create successor evidence")
		}
		result = stored
		if !created {
			return nil
		}
		if err := s.recorder.Record(txCtx, &audit.Event{
			TenantID:      stored.TenantID,
			EvidenceID:    stored.EvidenceID,
			Action:        audit.ActionCreated,
			AfterState:    stored.LedgerState,
			Outcome:       http.StatusCreated,
			Context:       map[string]any{audit.ContextKeyRecord: stored},
			CorrelationID: stored.CorrelationID,
			CreatedAtUTC:  now.UTC(),
		}); err != nil {
			return err
		}

		var beforeState models.LedgerState
		retired, err := s.evidence.Execute(txCtx, tenantID, evidenceID,
			func(e *models.Evidence) error {
				beforeState = e.LedgerState
				return e.CanSupersede()
			},
			func(e *models.Evidence) error {
				e.ApplySuperseded(stored.EvidenceID, now)
				return nil
			},
		)
		if err != nil {
			return err
		}
		return s.recorder.Record(txCtx, &audit.Event{
			TenantID:      tenantID,
			EvidenceID:    evidenceID,
			Action:        audit.ActionSuperseded,
			BeforeState:   beforeState,
			AfterState:    retired.LedgerState,
			Outcome:       http.StatusOK,
			Context:       map[string]any{audit.ContextKeySupersededBy: stored.EvidenceID.String()},
			CorrelationID: in.CorrelationID,
			CreatedAtUTC:  now.UTC(),
		})
	})
	if err != nil {
		return nil, wrapFindErr(err)
	}
	s.metrics.IncEvidenceIngested()
	return result, nil
}
