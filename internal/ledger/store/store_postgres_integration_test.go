//go:build integration

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/internal/ledger/models"
	"attest/internal/platform/postgres"
	"attest/pkg/domain"
	"attest/pkg/platform/sentinel"
	"attest/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
	ctx   context.Context

	tenantID domain.TenantID
	seq      int
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(postgres.EnsureSchema(s.ctx, s.pg.DB))
	s.store = NewPostgres(s.pg.DB)

	tenantID, err := domain.ParseTenantID("3f8a1b2c-4d5e-4f60-8a7b-9c0d1e2f3a4b")
	s.Require().NoError(err)
	s.tenantID = tenantID
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx))
}

func (s *PostgresStoreSuite) newEvidence(correlationID string) *models.Evidence {
	s.seq++
	e, err := models.NewEvidence(models.NewEvidenceInput{
		TenantID:      s.tenantID,
		ActorID:       "actor-pg",
		IngestionPath: domain.IngestionPathDocumentUpload,
		Payload:       map[string]any{"invoice": fmt.Sprintf("INV-%d", s.seq), "total": "10.00"},
		CorrelationID: correlationID,
	}, time.Now())
	s.Require().NoError(err)
	return e
}

func (s *PostgresStoreSuite) TestCreate() {
	s.Run("stores and reads back a record", func() {
		e := s.newEvidence("pg-create-1")
		stored, created, err := s.store.Create(s.ctx, e)
		s.Require().NoError(err)
		s.True(created)

		found, err := s.store.FindByID(s.ctx, s.tenantID, stored.EvidenceID)
		s.Require().NoError(err)
		s.Equal(stored.EvidenceID, found.EvidenceID)
		s.Equal(stored.CombinedHashSHA256, found.CombinedHashSHA256)
		s.JSONEq(string(stored.CanonicalPayload), string(found.CanonicalPayload))
		s.NoError(found.VerifyIntegrity())
	})

	s.Run("duplicate correlation id returns the original", func() {
		first := s.newEvidence("pg-create-dup")
		stored, created, err := s.store.Create(s.ctx, first)
		s.Require().NoError(err)
		s.Require().True(created)

		second := s.newEvidence("pg-create-dup")
		existing, created, err := s.store.Create(s.ctx, second)
		s.Require().NoError(err)
		s.False(created)
		s.Equal(stored.EvidenceID, existing.EvidenceID)
	})
}

func (s *PostgresStoreSuite) TestFind() {
	e := s.newEvidence("pg-find-1")
	stored, _, err := s.store.Create(s.ctx, e)
	s.Require().NoError(err)

	s.Run("by correlation", func() {
		found, err := s.store.FindByCorrelation(s.ctx, s.tenantID, "pg-find-1")
		s.Require().NoError(err)
		s.Equal(stored.EvidenceID, found.EvidenceID)
	})

	s.Run("missing record", func() {
		_, err := s.store.FindByID(s.ctx, s.tenantID, domain.NewEvidenceID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("foreign tenant reads nothing", func() {
		otherTenant, err := domain.ParseTenantID("9e0f1a2b-3c4d-4e5f-8091-a2b3c4d5e6f7")
		s.Require().NoError(err)
		_, err = s.store.FindByID(s.ctx, otherTenant, stored.EvidenceID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestList() {
	a, _, err := s.store.Create(s.ctx, s.newEvidence("pg-list-a"))
	s.Require().NoError(err)
	b, _, err := s.store.Create(s.ctx, s.newEvidence("pg-list-b"))
	s.Require().NoError(err)

	_, err = s.store.Execute(s.ctx, s.tenantID, b.EvidenceID,
		func(e *models.Evidence) error { return e.CanSeal() },
		func(e *models.Evidence) error { e.ApplySeal(time.Now()); return nil },
	)
	s.Require().NoError(err)

	all, err := s.store.List(s.ctx, s.tenantID, Filter{})
	s.Require().NoError(err)
	s.Len(all, 2)

	sealed, err := s.store.List(s.ctx, s.tenantID, Filter{State: models.StateSealed})
	s.Require().NoError(err)
	s.Require().Len(sealed, 1)
	s.Equal(b.EvidenceID, sealed[0].EvidenceID)

	limited, err := s.store.List(s.ctx, s.tenantID, Filter{Limit: 1})
	s.Require().NoError(err)
	s.Len(limited, 1)
	_ = a
}

func (s *PostgresStoreSuite) TestExecute() {
	s.Run("bumps the version and persists the mutation", func() {
		stored, _, err := s.store.Create(s.ctx, s.newEvidence("pg-exec-1"))
		s.Require().NoError(err)

		updated, err := s.store.Execute(s.ctx, s.tenantID, stored.EvidenceID,
			func(e *models.Evidence) error { return e.CanSeal() },
			func(e *models.Evidence) error { e.ApplySeal(time.Now()); return nil },
		)
		s.Require().NoError(err)
		s.Equal(models.StateSealed, updated.LedgerState)
		s.Equal(stored.Version+1, updated.Version)

		found, err := s.store.FindByID(s.ctx, s.tenantID, stored.EvidenceID)
		s.Require().NoError(err)
		s.Equal(models.StateSealed, found.LedgerState)
		s.NoError(found.VerifyIntegrity())
	})

	s.Run("failed validation leaves the row untouched", func() {
		stored, _, err := s.store.Create(s.ctx, s.newEvidence("pg-exec-2"))
		s.Require().NoError(err)

		_, err = s.store.Execute(s.ctx, s.tenantID, stored.EvidenceID,
			func(e *models.Evidence) error { return e.CanSupersede() },
			func(e *models.Evidence) error { return nil },
		)
		s.Require().Error(err)

		found, err := s.store.FindByID(s.ctx, s.tenantID, stored.EvidenceID)
		s.Require().NoError(err)
		s.Equal(models.StateIngested, found.LedgerState)
		s.Equal(stored.Version, found.Version)
	})

	s.Run("concurrent seals elect exactly one winner", func() {
		stored, _, err := s.store.Create(s.ctx, s.newEvidence("pg-exec-race"))
		s.Require().NoError(err)

		const writers = 8
		errs := make(chan error, writers)
		for range writers {
			go func() {
				_, err := s.store.Execute(s.ctx, s.tenantID, stored.EvidenceID,
					func(e *models.Evidence) error { return e.CanSeal() },
					func(e *models.Evidence) error { e.ApplySeal(time.Now()); return nil },
				)
				errs <- err
			}()
		}

		var wins int
		for range writers {
			if err := <-errs; err == nil {
				wins++
			}
		}
		s.Equal(1, wins)

		found, err := s.store.FindByID(s.ctx, s.tenantID, stored.EvidenceID)
		s.Require().NoError(err)
		s.Equal(models.StateSealed, found.LedgerState)
		s.Equal(stored.Version+1, found.Version)
	})
}
