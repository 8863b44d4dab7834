// Package service implements the single-entrypoint ingestion gateway and the
// transition engine over the evidence ledger.
//
// Every operation runs the same synchronous pipeline: validate tenant → hash
// → check transition → persist + audit. Accepted transitions commit the
// evidence write and the audit append as one unit; blocked attempts commit
// nothing except their MUTATION_ATTEMPTED event.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"attest/internal/audit"
	"attest/internal/ledger/models"
	"attest/internal/ledger/store"
	"attest/internal/platform/metrics"
	"attest/internal/tenantguard"
	"attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

// Service orchestrates the evidence ledger. It is the only path that creates
// or mutates evidence; boundary handlers hold no ledger rules of their own.
type Service struct {
	guard    *tenantguard.Guard
	evidence store.Store
	audits   audit.Store
	recorder *audit.Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tx       StoreTx
}

type serviceConfig struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	tx      StoreTx
}

// Option configures optional service dependencies.
type Option func(*serviceConfig)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) { c.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *serviceConfig) { c.metrics = m }
}

// WithTx sets the transactional boundary (postgres in production).
func WithTx(tx StoreTx) Option {
	return func(c *serviceConfig) { c.tx = tx }
}

// New constructs the ledger service.
func New(guard *tenantguard.Guard, evidence store.Store, audits audit.Store, opts ...Option) *Service {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.tx == nil {
		cfg.tx = newInMemoryStoreTx()
	}
	return &Service{
		guard:    guard,
		evidence: evidence,
		audits:   audits,
		recorder: audit.NewRecorder(audits, audit.WithLogger(cfg.logger), audit.WithMetrics(cfg.metrics)),
		logger:   cfg.logger,
		metrics:  cfg.metrics,
		tx:       cfg.tx,
	}
}

// IngestInput is the gateway's creation request.
type IngestInput struct {
	TenantID        string
	IngestionPath   string
	DeclaredContext map[string]any
	Payload         any
	FileURL         string
	FileHashSHA256  string
	CorrelationID   string
}

// Ingest creates an evidence record in INGESTED state with content hashed
// and bound, appending the CREATED audit event in the same transaction.
//
// Idempotent: a retried call with the same correlation id returns the
// original record (created=false) without a second CREATED event.
func (s *Service) Ingest(ctx context.Context, in IngestInput) (*models.Evidence, bool, error) {
	tenantID, err := s.guard.Validate(ctx, in.TenantID)
	if err != nil {
		return nil, false, err
	}
	path, err := domain.ParseIngestionPath(in.IngestionPath)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeValidation, "invalid ingestion_path")
	}

	now := requestcontext.Now(ctx)
	record, err := models.NewEvidence(models.NewEvidenceInput{
		TenantID:        tenantID,
		ActorID:         requestcontext.ActorID(ctx),
		IngestionPath:   path,
		DeclaredContext: in.DeclaredContext,
		Payload:         in.Payload,
		FileURL:         in.FileURL,
		FileHashSHA256:  in.FileHashSHA256,
		CorrelationID:   in.CorrelationID,
	}, now)
	if err != nil {
		return nil, false, err
	}

	var (
		result  *models.Evidence
		created bool
	)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		stored, ok, err := s.evidence.Create(txCtx, record)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create evidence")
		}
		result, created = stored, ok
		if !ok {
			// Idempotent replay: the correlation id already produced a
			// record and its CREATED event.
			return nil
		}
		return s.recorder.Record(txCtx, &audit.Event{
			TenantID:      stored.TenantID,
			EvidenceID:    stored.EvidenceID,
			Action:        audit.ActionCreated,
			AfterState:    stored.LedgerState,
			Outcome:       http.StatusCreated,
			Context:       map[string]any{audit.ContextKeyRecord: stored},
			CorrelationID: stored.CorrelationID,
			CreatedAtUTC:  now.UTC(),
		})
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		s.metrics.IncEvidenceIngested()
	}
	return result, created, nil
}

// lookupTenant validates the tenant binding for endpoints that check record
// existence: a foreign tenant gets not-found, never forbidden.
func (s *Service) lookupTenant(ctx context.Context, rawTenantID string) (domain.TenantID, error) {
	tenantID, err := s.guard.Validate(ctx, rawTenantID)
	if err != nil {
		return domain.TenantID{}, tenantguard.AsNotFound(err)
	}
	return tenantID, nil
}

// wrapFindErr converts store sentinels into transport codes, leaving errors
// that already carry a domain code untouched.
func wrapFindErr(err error) error {
	var coded *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &coded):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "evidence not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "evidence was modified concurrently, retry the request")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger store failure")
	}
}
