package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

// RedisStore keeps drafts in Redis with the retention window enforced by key
// TTL. A per-tenant set indexes draft ids for listing; stale index entries
// are pruned as they are discovered.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore creates a draft store over an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func draftValueKey(tenantID domain.TenantID, id uuid.UUID) string {
	return fmt.Sprintf("draft:%s:%s", tenantID, id)
}

func draftIndexKey(tenantID domain.TenantID) string {
	return fmt.Sprintf("draft_index:%s", tenantID)
}

func (s *RedisStore) Put(ctx context.Context, draft *Draft) error {
	raw, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	ttl := draft.ExpiresAtUTC.Sub(s.now())
	if ttl <= 0 {
		return sentinel.ErrNotFound
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, draftValueKey(draft.TenantID, draft.ID), raw, ttl)
	pipe.SAdd(ctx, draftIndexKey(draft.TenantID), draft.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store draft: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, tenantID domain.TenantID, id uuid.UUID) (*Draft, error) {
	raw, err := s.client.Get(ctx, draftValueKey(tenantID, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	var draft Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return &draft, nil
}

func (s *RedisStore) Delete(ctx context.Context, tenantID domain.TenantID, id uuid.UUID) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, draftValueKey(tenantID, id))
	pipe.SRem(ctx, draftIndexKey(tenantID), id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	if del.Val() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *RedisStore) ListByTenant(ctx context.Context, tenantID domain.TenantID) ([]*Draft, error) {
	ids, err := s.client.SMembers(ctx, draftIndexKey(tenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list draft index: %w", err)
	}
	var out []*Draft
	var stale []any
	for _, rawID := range ids {
		id, err := uuid.Parse(rawID)
		if err != nil {
			stale = append(stale, rawID)
			continue
		}
		draft, err := s.Get(ctx, tenantID, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			// Key expired after the index entry was written.
			stale = append(stale, rawID)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, draft)
	}
	if len(stale) > 0 {
		s.client.SRem(ctx, draftIndexKey(tenantID), stale...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAtUTC.Equal(out[j].CreatedAtUTC) {
			return out[i].CreatedAtUTC.Before(out[j].CreatedAtUTC)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}
