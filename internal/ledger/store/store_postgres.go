package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"attest/internal/ledger/models"
	"attest/pkg/domain"
	"attest/pkg/platform/sentinel"
	txcontext "attest/pkg/platform/tx"
)

// PostgresStore persists evidence in the evidence table. Execute locks the
// row FOR UPDATE for the read-check-write unit and bumps an optimistic
// version column as a backstop against any writer that bypasses the lock.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a PostgreSQL ledger store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const evidenceColumns = `
	id, tenant_id, evidence_id, ledger_state, ingestion_path,
	declared_context, canonical_payload, file_url, file_hash_sha256,
	payload_hash_sha256, previous_hash_sha256, combined_hash_sha256,
	actor_id, correlation_id, sealed_at, supersedes_evidence_id,
	superseded_by_id, failure_code, rejection_reason, version,
	created_at, updated_at`

// Create inserts the record; a correlation-id conflict returns the original.
func (s *PostgresStore) Create(ctx context.Context, e *models.Evidence) (*models.Evidence, bool, error) {
	declaredJSON, err := json.Marshal(e.DeclaredContext)
	if err != nil {
		return nil, false, fmt.Errorf("marshal declared context: %w", err)
	}

	var supersedes, supersededBy any
	if e.SupersedesEvidenceID != nil {
		supersedes = uuid.UUID(*e.SupersedesEvidenceID)
	}
	if e.SupersededByID != nil {
		supersededBy = uuid.UUID(*e.SupersededByID)
	}

	res, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO evidence (`+evidenceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (tenant_id, correlation_id) DO NOTHING
	`,
		e.ID,
		uuid.UUID(e.TenantID),
		uuid.UUID(e.EvidenceID),
		string(e.LedgerState),
		string(e.IngestionPath),
		declaredJSON,
		[]byte(e.CanonicalPayload),
		e.FileURL,
		e.FileHashSHA256,
		e.PayloadHashSHA256,
		e.PreviousHashSHA256,
		e.CombinedHashSHA256,
		e.ActorID,
		e.CorrelationID,
		e.SealedAtUTC,
		supersedes,
		supersededBy,
		e.FailureCode,
		e.RejectionReason,
		e.Version,
		e.CreatedAtUTC,
		e.UpdatedAtUTC,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert evidence: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert evidence affected rows: %w", err)
	}
	if affected == 0 {
		existing, err := s.FindByCorrelation(ctx, e.TenantID, e.CorrelationID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return e.Clone(), true, nil
}

// FindByID returns the record or sentinel.ErrNotFound.
func (s *PostgresStore) FindByID(ctx context.Context, tenantID domain.TenantID, evidenceID domain.EvidenceID) (*models.Evidence, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+evidenceColumns+`
		FROM evidence
		WHERE tenant_id = $1 AND evidence_id = $2
	`, uuid.UUID(tenantID), uuid.UUID(evidenceID))
	return scanEvidence(row)
}

// FindByCorrelation returns the record created under the correlation id.
func (s *PostgresStore) FindByCorrelation(ctx context.Context, tenantID domain.TenantID, correlationID string) (*models.Evidence, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+evidenceColumns+`
		FROM evidence
		WHERE tenant_id = $1 AND correlation_id = $2
	`, uuid.UUID(tenantID), correlationID)
	return scanEvidence(row)
}

// List returns the tenant's records ordered by creation time.
func (s *PostgresStore) List(ctx context.Context, tenantID domain.TenantID, filter Filter) ([]*models.Evidence, error) {
	query := `
		SELECT ` + evidenceColumns + `
		FROM evidence
		WHERE tenant_id = $1`
	args := []any{uuid.UUID(tenantID)}
	if filter.State != "" {
		args = append(args, string(filter.State))
		query += fmt.Sprintf(" AND ledger_state = $%d", len(args))
	}
	if filter.Path != "" {
		args = append(args, string(filter.Path))
		query += fmt.Sprintf(" AND ingestion_path = $%d", len(args))
	}
	query += " ORDER BY created_at ASC, evidence_id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query evidence: %w", err)
	}
	defer rows.Close()

	var out []*models.Evidence
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence: %w", err)
	}
	return out, nil
}

// Execute locks the row, runs validate then mutate, and writes the result.
// Runs inside the ambient transaction when one is present; otherwise it
// opens its own so the lock is held for the whole unit.
func (s *PostgresStore) Execute(ctx context.Context, tenantID domain.TenantID, evidenceID domain.EvidenceID,
	validate func(*models.Evidence) error,
	mutate func(*models.Evidence) error,
) (*models.Evidence, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, tenantID, evidenceID, validate, mutate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin evidence tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := s.executeLocked(txcontext.WithTx(ctx, tx), tenantID, evidenceID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit evidence tx: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) executeLocked(ctx context.Context, tenantID domain.TenantID, evidenceID domain.EvidenceID,
	validate func(*models.Evidence) error,
	mutate func(*models.Evidence) error,
) (*models.Evidence, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+evidenceColumns+`
		FROM evidence
		WHERE tenant_id = $1 AND evidence_id = $2
		FOR UPDATE
	`, uuid.UUID(tenantID), uuid.UUID(evidenceID))
	e, err := scanEvidence(row)
	if err != nil {
		return nil, err
	}

	if err := validate(e.Clone()); err != nil {
		return nil, err
	}

	next := e.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.Version = e.Version + 1

	if err := s.update(ctx, next, e.Version); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *PostgresStore) update(ctx context.Context, e *models.Evidence, expectedVersion int64) error {
	declaredJSON, err := json.Marshal(e.DeclaredContext)
	if err != nil {
		return fmt.Errorf("marshal declared context: %w", err)
	}
	var supersededBy any
	if e.SupersededByID != nil {
		supersededBy = uuid.UUID(*e.SupersededByID)
	}

	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE evidence SET
			ledger_state = $1,
			declared_context = $2,
			canonical_payload = $3,
			payload_hash_sha256 = $4,
			previous_hash_sha256 = $5,
			combined_hash_sha256 = $6,
			sealed_at = $7,
			superseded_by_id = $8,
			failure_code = $9,
			rejection_reason = $10,
			version = $11,
			updated_at = $12
		WHERE id = $13 AND version = $14
	`,
		string(e.LedgerState),
		declaredJSON,
		[]byte(e.CanonicalPayload),
		e.PayloadHashSHA256,
		e.PreviousHashSHA256,
		e.CombinedHashSHA256,
		e.SealedAtUTC,
		supersededBy,
		e.FailureCode,
		e.RejectionReason,
		e.Version,
		e.UpdatedAtUTC,
		e.ID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update evidence: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update evidence affected rows: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvidence(row rowScanner) (*models.Evidence, error) {
	var (
		e                        models.Evidence
		tid, eid                 uuid.UUID
		state, path              string
		declaredJSON, payloadRaw []byte
		sealedAt                 sql.NullTime
		supersedes, supersededBy uuid.NullUUID
		updatedAt, createdAt     time.Time
	)
	err := row.Scan(
		&e.ID, &tid, &eid, &state, &path,
		&declaredJSON, &payloadRaw, &e.FileURL, &e.FileHashSHA256,
		&e.PayloadHashSHA256, &e.PreviousHashSHA256, &e.CombinedHashSHA256,
		&e.ActorID, &e.CorrelationID, &sealedAt, &supersedes,
		&supersededBy, &e.FailureCode, &e.RejectionReason, &e.Version,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan evidence: %w", err)
	}

	e.TenantID = domain.TenantID(tid)
	e.EvidenceID = domain.EvidenceID(eid)
	e.LedgerState = models.LedgerState(state)
	e.IngestionPath = domain.IngestionPath(path)
	e.CanonicalPayload = json.RawMessage(payloadRaw)
	e.CreatedAtUTC = createdAt.UTC()
	e.UpdatedAtUTC = updatedAt.UTC()
	if len(declaredJSON) > 0 {
		if err := json.Unmarshal(declaredJSON, &e.DeclaredContext); err != nil {
			return nil, fmt.Errorf("unmarshal declared context: %w", err)
		}
	}
	if sealedAt.Valid {
		t := sealedAt.Time.UTC()
		e.SealedAtUTC = &t
	}
	if supersedes.Valid {
		id := domain.EvidenceID(supersedes.UUID)
		e.SupersedesEvidenceID = &id
	}
	if supersededBy.Valid {
		id := domain.EvidenceID(supersededBy.UUID)
		e.SupersededByID = &id
	}
	return &e, nil
}
