package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/internal/ledger/models"
	"attest/pkg/domain"
)

type InMemoryAuditSuite struct {
	suite.Suite
	store    *InMemory
	ctx      context.Context
	tenant   domain.TenantID
	evidence domain.EvidenceID
	now      time.Time
}

func TestInMemoryAuditSuite(t *testing.T) {
	suite.Run(t, new(InMemoryAuditSuite))
}

func (s *InMemoryAuditSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	tenant, err := domain.ParseTenantID("11111111-2222-3333-4444-555555555555")
	s.Require().NoError(err)
	s.tenant = tenant
	s.evidence = domain.NewEvidenceID()
	s.now = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
}

func (s *InMemoryAuditSuite) event(action Action) *Event {
	return &Event{
		TenantID:     s.tenant,
		EvidenceID:   s.evidence,
		Action:       action,
		ActorID:      "actor-1",
		AfterState:   models.StateIngested,
		Outcome:      201,
		CreatedAtUTC: s.now,
	}
}

func (s *InMemoryAuditSuite) TestAppend() {
	s.Run("assigns gapless sequence numbers from one", func() {
		for i, action := range []Action{ActionCreated, ActionSealed, ActionMutationAttempt} {
			e := s.event(action)
			s.Require().NoError(s.store.Append(s.ctx, e))
			s.Equal(int64(i)+1, e.SequenceNumber)
		}
	})

	s.Run("streams are isolated per evidence record", func() {
		other := s.event(ActionCreated)
		other.EvidenceID = domain.NewEvidenceID()
		s.Require().NoError(s.store.Append(s.ctx, other))
		s.Equal(int64(1), other.SequenceNumber)
	})

	s.Run("rejects an event without an action", func() {
		e := s.event("")
		s.Error(s.store.Append(s.ctx, e))
	})

	s.Run("concurrent appends never leave a gap", func() {
		target := domain.NewEvidenceID()
		const appenders = 32
		var wg sync.WaitGroup
		for range appenders {
			wg.Add(1)
			go func() {
				defer wg.Done()
				e := s.event(ActionMutationAttempt)
				e.EvidenceID = target
				_ = s.store.Append(s.ctx, e)
			}()
		}
		wg.Wait()

		events, err := s.store.ListByEvidence(s.ctx, s.tenant, target)
		s.Require().NoError(err)
		s.Require().Len(events, appenders)
		s.NoError(VerifySequence(events))
	})
}

func (s *InMemoryAuditSuite) TestListByEvidence() {
	s.Require().NoError(s.store.Append(s.ctx, s.event(ActionCreated)))
	s.Require().NoError(s.store.Append(s.ctx, s.event(ActionSealed)))

	events, err := s.store.ListByEvidence(s.ctx, s.tenant, s.evidence)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(ActionCreated, events[0].Action)
	s.Equal(ActionSealed, events[1].Action)

	s.Run("empty stream lists empty", func() {
		events, err := s.store.ListByEvidence(s.ctx, s.tenant, domain.NewEvidenceID())
		s.Require().NoError(err)
		s.Empty(events)
	})
}

func (s *InMemoryAuditSuite) TestHasCorrelation() {
	e := s.event(ActionSealed)
	e.CorrelationID = "corr-seal-1"
	s.Require().NoError(s.store.Append(s.ctx, e))

	found, err := s.store.HasCorrelation(s.ctx, s.tenant, s.evidence, ActionSealed, "corr-seal-1")
	s.Require().NoError(err)
	s.True(found)

	found, err = s.store.HasCorrelation(s.ctx, s.tenant, s.evidence, ActionRejected, "corr-seal-1")
	s.Require().NoError(err)
	s.False(found)

	found, err = s.store.HasCorrelation(s.ctx, s.tenant, s.evidence, ActionSealed, "corr-other")
	s.Require().NoError(err)
	s.False(found)
}

func (s *InMemoryAuditSuite) TestSink() {
	sink := make(chan Event, 4)
	store := NewInMemory().WithSink(sink)
	s.Require().NoError(store.Append(s.ctx, s.event(ActionCreated)))

	select {
	case got := <-sink:
		s.Equal(ActionCreated, got.Action)
	default:
		s.Fail("expected an event on the sink")
	}
}
