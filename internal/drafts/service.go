package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"attest/internal/ledger/models"
	"attest/internal/ledger/service"
	"attest/internal/tenantguard"
	"attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

// Ingestor is the slice of the ledger gateway that commit needs.
type Ingestor interface {
	Ingest(ctx context.Context, in service.IngestInput) (*models.Evidence, bool, error)
	GetByCorrelation(ctx context.Context, rawTenantID, correlationID string) (*models.Evidence, error)
}

// Service manages the staging area and promotes finished drafts into the
// ledger. Every operation revalidates the tenant binding.
type Service struct {
	guard    *tenantguard.Guard
	store    Store
	ingestor Ingestor
	ttl      time.Duration
}

// NewService wires the draft service. ttl is the retention window for newly
// created drafts.
func NewService(guard *tenantguard.Guard, store Store, ingestor Ingestor, ttl time.Duration) *Service {
	return &Service{guard: guard, store: store, ingestor: ingestor, ttl: ttl}
}

// DraftInput carries the editable fields of a draft.
type DraftInput struct {
	IngestionPath   string
	DeclaredContext map[string]any
	Payload         json.RawMessage
	FileURL         string
	FileHashSHA256  string
}

// Create stages a new draft for the tenant.
func (s *Service) Create(ctx context.Context, rawTenantID string, in DraftInput) (*Draft, error) {
	tenantID, err := s.guard.Validate(ctx, rawTenantID)
	if err != nil {
		return nil, err
	}
	draft, err := NewDraft(tenantID, requestcontext.ActorID(ctx), requestcontext.Now(ctx), s.ttl)
	if err != nil {
		return nil, err
	}
	applyInput(draft, in)
	if err := s.store.Put(ctx, draft); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store draft")
	}
	return draft, nil
}

// Get loads a draft. Missing, expired and foreign drafts all read as not
// found.
func (s *Service) Get(ctx context.Context, rawTenantID, rawDraftID string) (*Draft, error) {
	tenantID, id, err := s.resolve(ctx, rawTenantID, rawDraftID)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, tenantID, id)
}

// List returns the tenant's live drafts.
func (s *Service) List(ctx context.Context, rawTenantID string) ([]*Draft, error) {
	tenantID, err := s.guard.Validate(ctx, rawTenantID)
	if err != nil {
		return nil, err
	}
	out, err := s.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list drafts")
	}
	return out, nil
}

// Update replaces the draft's editable fields and extends nothing: the
// expiry set at creation stands.
func (s *Service) Update(ctx context.Context, rawTenantID, rawDraftID string, in DraftInput) (*Draft, error) {
	tenantID, id, err := s.resolve(ctx, rawTenantID, rawDraftID)
	if err != nil {
		return nil, err
	}
	draft, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	applyInput(draft, in)
	draft.UpdatedAtUTC = requestcontext.Now(ctx).UTC()
	if err := s.store.Put(ctx, draft); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store draft")
	}
	return draft, nil
}

// Abandon discards a draft. Unlike ledger records a draft may be deleted:
// nothing was ever promised to the audit trail.
func (s *Service) Abandon(ctx context.Context, rawTenantID, rawDraftID string) error {
	tenantID, id, err := s.resolve(ctx, rawTenantID, rawDraftID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, tenantID, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "draft not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete draft")
	}
	return nil
}

// Commit promotes the draft through the ingestion gateway and discards it.
// The evidence record enters INGESTED with hashes bound; the draft id never
// appears in the ledger except as the default correlation id. A retried
// commit finds the draft gone and returns the already-promoted record by its
// correlation id instead.
func (s *Service) Commit(ctx context.Context, rawTenantID, rawDraftID, correlationID string) (*models.Evidence, error) {
	tenantID, id, err := s.resolve(ctx, rawTenantID, rawDraftID)
	if err != nil {
		return nil, err
	}
	if correlationID == "" {
		correlationID = id.String()
	}
	draft, err := s.load(ctx, tenantID, id)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			if record, lookupErr := s.ingestor.GetByCorrelation(ctx, rawTenantID, correlationID); lookupErr == nil {
				return record, nil
			}
		}
		return nil, err
	}

	var payload any
	if len(draft.Payload) > 0 {
		payload = json.RawMessage(draft.Payload)
	}
	record, _, err := s.ingestor.Ingest(ctx, service.IngestInput{
		TenantID:        rawTenantID,
		IngestionPath:   draft.IngestionPath,
		DeclaredContext: draft.DeclaredContext,
		Payload:         payload,
		FileURL:         draft.FileURL,
		FileHashSHA256:  draft.FileHashSHA256,
		CorrelationID:   correlationID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.Delete(ctx, tenantID, id); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to discard committed draft")
	}
	return record, nil
}

func (s *Service) resolve(ctx context.Context, rawTenantID, rawDraftID string) (domain.TenantID, uuid.UUID, error) {
	tenantID, err := s.guard.Validate(ctx, rawTenantID)
	if err != nil {
		return domain.TenantID{}, uuid.Nil, tenantguard.AsNotFound(err)
	}
	id, err := uuid.Parse(rawDraftID)
	if err != nil {
		return domain.TenantID{}, uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "draft id must be a valid UUID")
	}
	return tenantID, id, nil
}

func (s *Service) load(ctx context.Context, tenantID domain.TenantID, id uuid.UUID) (*Draft, error) {
	draft, err := s.store.Get(ctx, tenantID, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "draft not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load draft")
	}
	return draft, nil
}

func applyInput(draft *Draft, in DraftInput) {
	draft.IngestionPath = in.IngestionPath
	draft.DeclaredContext = in.DeclaredContext
	draft.Payload = in.Payload
	draft.FileURL = in.FileURL
	draft.FileHashSHA256 = in.FileHashSHA256
}
