package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/internal/ledger/models"
	"attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store  *InMemory
	ctx    context.Context
	tenant domain.TenantID
	now    time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	tenant, err := domain.ParseTenantID("11111111-2222-3333-4444-555555555555")
	s.Require().NoError(err)
	s.tenant = tenant
	s.now = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) newRecord(correlationID string) *models.Evidence {
	e, err := models.NewEvidence(models.NewEvidenceInput{
		TenantID:      s.tenant,
		ActorID:       "actor-1",
		IngestionPath: domain.IngestionPathERPAPI,
		Payload:       map[string]any{"order": correlationID},
		CorrelationID: correlationID,
	}, s.now)
	s.Require().NoError(err)
	return e
}

func (s *InMemoryStoreSuite) TestCreate() {
	s.Run("stores and returns the record", func() {
		e := s.newRecord("corr-1")
		stored, created, err := s.store.Create(s.ctx, e)
		s.Require().NoError(err)
		s.True(created)
		s.Equal(e.EvidenceID, stored.EvidenceID)
	})

	s.Run("same correlation id returns the original without creating", func() {
		first := s.newRecord("corr-dup")
		_, created, err := s.store.Create(s.ctx, first)
		s.Require().NoError(err)
		s.True(created)

		second := s.newRecord("corr-dup")
		stored, created, err := s.store.Create(s.ctx, second)
		s.Require().NoError(err)
		s.False(created)
		s.Equal(first.EvidenceID, stored.EvidenceID)
	})

	s.Run("same correlation id under another tenant creates separately", func() {
		e := s.newRecord("corr-shared")
		_, created, err := s.store.Create(s.ctx, e)
		s.Require().NoError(err)
		s.True(created)

		other, err := domain.ParseTenantID("99999999-8888-7777-6666-555555555555")
		s.Require().NoError(err)
		foreign, err := models.NewEvidence(models.NewEvidenceInput{
			TenantID:      other,
			ActorID:       "actor-2",
			IngestionPath: domain.IngestionPathERPAPI,
			Payload:       map[string]any{"order": "x"},
			CorrelationID: "corr-shared",
		}, s.now)
		s.Require().NoError(err)
		_, created, err = s.store.Create(s.ctx, foreign)
		s.Require().NoError(err)
		s.True(created)
	})
}

func (s *InMemoryStoreSuite) TestFind() {
	e := s.newRecord("corr-find")
	_, _, err := s.store.Create(s.ctx, e)
	s.Require().NoError(err)

	s.Run("by id", func() {
		found, err := s.store.FindByID(s.ctx, s.tenant, e.EvidenceID)
		s.Require().NoError(err)
		s.Equal(e.CombinedHashSHA256, found.CombinedHashSHA256)
	})

	s.Run("by correlation", func() {
		found, err := s.store.FindByCorrelation(s.ctx, s.tenant, "corr-find")
		s.Require().NoError(err)
		s.Equal(e.EvidenceID, found.EvidenceID)
	})

	s.Run("missing record is not found", func() {
		_, err := s.store.FindByID(s.ctx, s.tenant, domain.NewEvidenceID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("another tenant cannot see the record", func() {
		other, err := domain.ParseTenantID("99999999-8888-7777-6666-555555555555")
		s.Require().NoError(err)
		_, err = s.store.FindByID(s.ctx, other, e.EvidenceID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned record is a copy", func() {
		found, err := s.store.FindByID(s.ctx, s.tenant, e.EvidenceID)
		s.Require().NoError(err)
		found.LedgerState = models.StateSealed

		again, err := s.store.FindByID(s.ctx, s.tenant, e.EvidenceID)
		s.Require().NoError(err)
		s.Equal(models.StateIngested, again.LedgerState)
	})
}

func (s *InMemoryStoreSuite) TestList() {
	a := s.newRecord("corr-a")
	_, _, err := s.store.Create(s.ctx, a)
	s.Require().NoError(err)

	b := s.newRecord("corr-b")
	_, _, err = s.store.Create(s.ctx, b)
	s.Require().NoError(err)

	_, err = s.store.Execute(s.ctx, s.tenant, b.EvidenceID,
		func(e *models.Evidence) error { return e.CanSeal() },
		func(e *models.Evidence) error { e.ApplySeal(s.now); return nil },
	)
	s.Require().NoError(err)

	s.Run("all records", func() {
		out, err := s.store.List(s.ctx, s.tenant, Filter{})
		s.Require().NoError(err)
		s.Len(out, 2)
	})

	s.Run("filter by state", func() {
		out, err := s.store.List(s.ctx, s.tenant, Filter{State: models.StateSealed})
		s.Require().NoError(err)
		s.Require().Len(out, 1)
		s.Equal(b.EvidenceID, out[0].EvidenceID)
	})

	s.Run("limit caps the result", func() {
		out, err := s.store.List(s.ctx, s.tenant, Filter{Limit: 1})
		s.Require().NoError(err)
		s.Len(out, 1)
	})
}

func (s *InMemoryStoreSuite) TestExecute() {
	s.Run("mutation persists and bumps the version", func() {
		e := s.newRecord("corr-exec")
		_, _, err := s.store.Create(s.ctx, e)
		s.Require().NoError(err)

		updated, err := s.store.Execute(s.ctx, s.tenant, e.EvidenceID,
			func(rec *models.Evidence) error { return rec.CanSeal() },
			func(rec *models.Evidence) error { rec.ApplySeal(s.now); return nil },
		)
		s.Require().NoError(err)
		s.Equal(models.StateSealed, updated.LedgerState)
		s.Equal(e.Version+1, updated.Version)
	})

	s.Run("failed validation leaves the record untouched", func() {
		e := s.newRecord("corr-exec-fail")
		_, _, err := s.store.Create(s.ctx, e)
		s.Require().NoError(err)

		_, err = s.store.Execute(s.ctx, s.tenant, e.EvidenceID,
			func(rec *models.Evidence) error { return rec.CanReject("") },
			func(rec *models.Evidence) error { rec.ApplyReject("", s.now); return nil },
		)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		unchanged, err := s.store.FindByID(s.ctx, s.tenant, e.EvidenceID)
		s.Require().NoError(err)
		s.Equal(models.StateIngested, unchanged.LedgerState)
		s.Equal(e.Version, unchanged.Version)
	})

	s.Run("missing record is not found", func() {
		_, err := s.store.Execute(s.ctx, s.tenant, domain.NewEvidenceID(),
			func(rec *models.Evidence) error { return nil },
			func(rec *models.Evidence) error { return nil },
		)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("concurrent seals produce exactly one winner", func() {
		e := s.newRecord("corr-race")
		_, _, err := s.store.Create(s.ctx, e)
		s.Require().NoError(err)

		const writers = 16
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.store.Execute(s.ctx, s.tenant, e.EvidenceID,
					func(rec *models.Evidence) error { return rec.CanSeal() },
					func(rec *models.Evidence) error { rec.ApplySeal(s.now); return nil },
				)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		var wins, losses int
		for err := range errs {
			if err == nil {
				wins++
				continue
			}
			s.True(dErrors.HasCode(err, dErrors.CodeSealedImmutable))
			losses++
		}
		s.Equal(1, wins)
		s.Equal(writers-1, losses)

		final, err := s.store.FindByID(s.ctx, s.tenant, e.EvidenceID)
		s.Require().NoError(err)
		s.Equal(models.StateSealed, final.LedgerState)
		s.Equal(e.Version+1, final.Version)
	})
}
