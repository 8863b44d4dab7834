package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attest/internal/ledger/models"
	"attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

var replayNow = time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)

func replayRecord(t *testing.T) *models.Evidence {
	t.Helper()
	tenant, err := domain.ParseTenantID("11111111-2222-3333-4444-555555555555")
	require.NoError(t, err)
	e, err := models.NewEvidence(models.NewEvidenceInput{
		TenantID:        tenant,
		ActorID:         "actor-1",
		IngestionPath:   domain.IngestionPathDocumentUpload,
		DeclaredContext: map[string]any{"shipment": "SH-1009"},
		Payload:         map[string]any{"invoice": "INV-9", "total": "412.50"},
		CorrelationID:   "corr-replay",
	}, replayNow)
	require.NoError(t, err)
	return e
}

func createdEvent(e *models.Evidence, seq int64) Event {
	return Event{
		TenantID:       e.TenantID,
		EvidenceID:     e.EvidenceID,
		SequenceNumber: seq,
		Action:         ActionCreated,
		Outcome:        201,
		Context:        map[string]any{ContextKeyRecord: e},
		CreatedAtUTC:   e.CreatedAtUTC,
	}
}

func TestVerifySequence(t *testing.T) {
	ok := []Event{{SequenceNumber: 1}, {SequenceNumber: 2}, {SequenceNumber: 3}}
	assert.NoError(t, VerifySequence(ok))

	gap := []Event{{SequenceNumber: 1}, {SequenceNumber: 3}}
	err := VerifySequence(gap)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	fromZero := []Event{{SequenceNumber: 0}}
	assert.Error(t, VerifySequence(fromZero))
}

func TestProjectState(t *testing.T) {
	t.Run("replaying a seal reproduces the live record", func(t *testing.T) {
		live := replayRecord(t)
		events := []Event{createdEvent(live, 1)}

		sealTime := replayNow.Add(time.Minute)
		live = live.Clone()
		live.ApplySeal(sealTime)
		live.Version++
		events = append(events, Event{
			TenantID:       live.TenantID,
			EvidenceID:     live.EvidenceID,
			SequenceNumber: 2,
			Action:         ActionSealed,
			Outcome:        200,
			CreatedAtUTC:   sealTime,
		})

		projected, err := ProjectState(events)
		require.NoError(t, err)
		assert.Equal(t, live.LedgerState, projected.LedgerState)
		assert.Equal(t, live.Version, projected.Version)
		assert.Equal(t, live.PayloadHashSHA256, projected.PayloadHashSHA256)
		assert.Equal(t, live.PreviousHashSHA256, projected.PreviousHashSHA256)
		assert.Equal(t, live.CombinedHashSHA256, projected.CombinedHashSHA256)
		require.NotNil(t, projected.SealedAtUTC)
		assert.True(t, live.SealedAtUTC.Equal(*projected.SealedAtUTC))
	})

	t.Run("blocked attempts change nothing", func(t *testing.T) {
		live := replayRecord(t)
		events := []Event{
			createdEvent(live, 1),
			{
				TenantID:       live.TenantID,
				EvidenceID:     live.EvidenceID,
				SequenceNumber: 2,
				Action:         ActionMutationAttempt,
				Outcome:        409,
				Context: map[string]any{
					ContextKeyBlockedAttempt: string(ActionSealed),
					ContextKeyBlockedReason:  "nope",
				},
				CreatedAtUTC: replayNow.Add(time.Minute),
			},
		}
		projected, err := ProjectState(events)
		require.NoError(t, err)
		assert.Equal(t, live.LedgerState, projected.LedgerState)
		assert.Equal(t, live.Version, projected.Version)
		assert.Equal(t, live.CombinedHashSHA256, projected.CombinedHashSHA256)
	})

	t.Run("reject and supersede replay through their context inputs", func(t *testing.T) {
		created := replayRecord(t)
		rejected := created.Clone()
		rejected.ApplyReject("ILLEGIBLE_SCAN", replayNow.Add(time.Minute))
		rejected.Version++

		projected, err := ProjectState([]Event{
			createdEvent(created, 1),
			{
				TenantID:       created.TenantID,
				EvidenceID:     created.EvidenceID,
				SequenceNumber: 2,
				Action:         ActionRejected,
				Outcome:        200,
				Context:        map[string]any{ContextKeyReason: "ILLEGIBLE_SCAN"},
				CreatedAtUTC:   replayNow.Add(time.Minute),
			},
		})
		require.NoError(t, err)
		assert.Equal(t, models.StateRejected, projected.LedgerState)
		assert.Equal(t, rejected.RejectionReason, projected.RejectionReason)
		assert.Equal(t, rejected.CombinedHashSHA256, projected.CombinedHashSHA256)

		successor := domain.NewEvidenceID()
		sealed := created.Clone()
		sealed.ApplySeal(replayNow.Add(time.Minute))
		sealed.Version++
		superseded := sealed.Clone()
		superseded.ApplySuperseded(successor, replayNow.Add(2*time.Minute))
		superseded.Version++

		projected, err = ProjectState([]Event{
			createdEvent(created, 1),
			{
				TenantID:       created.TenantID,
				EvidenceID:     created.EvidenceID,
				SequenceNumber: 2,
				Action:         ActionSealed,
				Outcome:        200,
				CreatedAtUTC:   replayNow.Add(time.Minute),
			},
			{
				TenantID:       created.TenantID,
				EvidenceID:     created.EvidenceID,
				SequenceNumber: 3,
				Action:         ActionSuperseded,
				Outcome:        200,
				Context:        map[string]any{ContextKeySupersededBy: successor.String()},
				CreatedAtUTC:   replayNow.Add(2 * time.Minute),
			},
		})
		require.NoError(t, err)
		assert.Equal(t, models.StateSuperseded, projected.LedgerState)
		require.NotNil(t, projected.SupersededByID)
		assert.Equal(t, successor, *projected.SupersededByID)
		assert.Equal(t, superseded.CombinedHashSHA256, projected.CombinedHashSHA256)
	})

	t.Run("rejects streams that do not start with CREATED", func(t *testing.T) {
		live := replayRecord(t)
		_, err := ProjectState([]Event{{
			SequenceNumber: 1,
			Action:         ActionSealed,
			EvidenceID:     live.EvidenceID,
		}})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects an empty stream", func(t *testing.T) {
		_, err := ProjectState(nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}
