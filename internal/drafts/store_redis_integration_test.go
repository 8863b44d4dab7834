//go:build integration

package drafts

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/pkg/domain"
	"attest/pkg/platform/sentinel"
	"attest/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisStore
	ctx   context.Context

	tenantID domain.TenantID
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.NewRedisContainer(s.T())
	s.store = NewRedisStore(s.redis.Client)

	tenantID, err := domain.ParseTenantID("2a3b4c5d-6e7f-4081-92a3-b4c5d6e7f809")
	s.Require().NoError(err)
	s.tenantID = tenantID
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisStoreSuite) newDraft() *Draft {
	draft, err := NewDraft(s.tenantID, "actor-redis", time.Now(), time.Hour)
	s.Require().NoError(err)
	draft.IngestionPath = "DOCUMENT_UPLOAD"
	draft.Payload = json.RawMessage(`{"invoice":"INV-90"}`)
	return draft
}

func (s *RedisStoreSuite) TestPutAndGet() {
	draft := s.newDraft()
	s.Require().NoError(s.store.Put(s.ctx, draft))

	got, err := s.store.Get(s.ctx, s.tenantID, draft.ID)
	s.Require().NoError(err)
	s.Equal(draft.ID, got.ID)
	s.Equal("DOCUMENT_UPLOAD", got.IngestionPath)
	s.JSONEq(`{"invoice":"INV-90"}`, string(got.Payload))

	s.Run("missing draft", func() {
		other := s.newDraft()
		_, err := s.store.Get(s.ctx, s.tenantID, other.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("an already-expired draft is refused", func() {
		expired := s.newDraft()
		expired.ExpiresAtUTC = time.Now().Add(-time.Minute)
		s.ErrorIs(s.store.Put(s.ctx, expired), sentinel.ErrNotFound)
	})
}

func (s *RedisStoreSuite) TestKeyTTLEnforcesExpiry() {
	draft := s.newDraft()
	draft.ExpiresAtUTC = time.Now().Add(time.Second)
	s.Require().NoError(s.store.Put(s.ctx, draft))

	time.Sleep(1500 * time.Millisecond)

	_, err := s.store.Get(s.ctx, s.tenantID, draft.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	out, err := s.store.ListByTenant(s.ctx, s.tenantID)
	s.Require().NoError(err)
	s.Empty(out, "the stale index entry is pruned on list")
}

func (s *RedisStoreSuite) TestDelete() {
	draft := s.newDraft()
	s.Require().NoError(s.store.Put(s.ctx, draft))

	s.Require().NoError(s.store.Delete(s.ctx, s.tenantID, draft.ID))
	_, err := s.store.Get(s.ctx, s.tenantID, draft.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.ErrorIs(s.store.Delete(s.ctx, s.tenantID, draft.ID), sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestListByTenant() {
	first := s.newDraft()
	s.Require().NoError(s.store.Put(s.ctx, first))
	second := s.newDraft()
	second.CreatedAtUTC = first.CreatedAtUTC.Add(time.Minute)
	s.Require().NoError(s.store.Put(s.ctx, second))

	out, err := s.store.ListByTenant(s.ctx, s.tenantID)
	s.Require().NoError(err)
	s.Require().Len(out, 2)
	s.Equal(first.ID, out[0].ID)
	s.Equal(second.ID, out[1].ID)

	s.Run("a foreign tenant sees nothing", func() {
		other, err := domain.ParseTenantID("7f8e9d0c-1b2a-4394-8576-a1b2c3d4e5f6")
		s.Require().NoError(err)
		out, err := s.store.ListByTenant(s.ctx, other)
		s.Require().NoError(err)
		s.Empty(out)
	})
}
