package audit

import (
	"encoding/json"
	"fmt"

	"attest/internal/ledger/models"
	"attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

// Context keys transition events use to carry replay inputs. The CREATED
// event snapshots the full record; every later accepted event carries only
// what its Apply method needs, and replay re-derives hashes the same way the
// live path did.
const (
	ContextKeyRecord         = "record"
	ContextKeyPayload        = "payload"
	ContextKeyReason         = "reason_code"
	ContextKeyFailureCode    = "failure_code"
	ContextKeySupersededBy   = "superseded_by_id"
	ContextKeyBlockedAttempt = "attempted_operation"
	ContextKeyBlockedReason  = "blocked_reason"
)

// VerifySequence checks the gapless-from-1 invariant on an ordered stream.
func VerifySequence(events []Event) error {
	for i, e := range events {
		if e.SequenceNumber != int64(i)+1 {
			return dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("audit sequence gap: expected %d, found %d", i+1, e.SequenceNumber))
		}
	}
	return nil
}

// ProjectState deterministically rebuilds the evidence record from its audit
// stream. The result must be identical to the live ledger record; the
// equivalence is a core tested property.
func ProjectState(events []Event) (*models.Evidence, error) {
	if len(events) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "cannot project an empty audit stream")
	}
	if err := VerifySequence(events); err != nil {
		return nil, err
	}
	if events[0].Action != ActionCreated {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "audit stream must begin with CREATED")
	}

	state, err := decodeRecord(events[0].Context[ContextKeyRecord])
	if err != nil {
		return nil, err
	}

	for _, e := range events[1:] {
		switch e.Action {
		case ActionMutationAttempt:
			// Blocked attempts change nothing.
			continue
		case ActionSealed:
			state.ApplySeal(e.CreatedAtUTC)
		case ActionRejected:
			state.ApplyReject(stringFromContext(e.Context, ContextKeyReason), e.CreatedAtUTC)
		case ActionFailed:
			state.ApplyFail(stringFromContext(e.Context, ContextKeyFailureCode), e.CreatedAtUTC)
		case ActionNormalized:
			payload, ok := e.Context[ContextKeyPayload]
			if !ok {
				return nil, dErrors.New(dErrors.CodeInvariantViolation, "NORMALIZED event is missing its payload")
			}
			if err := state.ApplyNormalize(payload, e.CreatedAtUTC); err != nil {
				return nil, err
			}
		case ActionSuperseded:
			successor, err := domain.ParseEvidenceID(stringFromContext(e.Context, ContextKeySupersededBy))
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "SUPERSEDED event carries no successor id")
			}
			state.ApplySuperseded(successor, e.CreatedAtUTC)
		case ActionQuarantined:
			state.ApplyQuarantine(e.CreatedAtUTC)
		default:
			return nil, dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("unknown audit action %q in stream", e.Action))
		}
		// The store bumps the version once per accepted mutation.
		state.Version++
	}
	return state, nil
}

// decodeRecord round-trips the snapshot through JSON: stores hand back
// contexts as map[string]any regardless of how they were written.
func decodeRecord(v any) (*models.Evidence, error) {
	if v == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "CREATED event is missing its record snapshot")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode record snapshot")
	}
	var e models.Evidence
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode record snapshot")
	}
	return &e, nil
}

func stringFromContext(ctx map[string]any, key string) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx[key].(string); ok {
		return s
	}
	return ""
}
