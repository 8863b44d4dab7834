package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the full ledger DDL. Statements are idempotent so EnsureSchema
// may run on every start.
const schema = `
CREATE TABLE IF NOT EXISTS evidence (
	id                     UUID PRIMARY KEY,
	tenant_id              UUID NOT NULL,
	evidence_id            UUID NOT NULL,
	ledger_state           TEXT NOT NULL,
	ingestion_path         TEXT NOT NULL,
	declared_context       JSONB,
	canonical_payload      JSONB NOT NULL,
	file_url               TEXT NOT NULL DEFAULT '',
	file_hash_sha256       TEXT NOT NULL DEFAULT '',
	payload_hash_sha256    TEXT NOT NULL,
	previous_hash_sha256   TEXT NOT NULL,
	combined_hash_sha256   TEXT NOT NULL,
	actor_id               TEXT NOT NULL,
	correlation_id         TEXT NOT NULL,
	sealed_at              TIMESTAMPTZ,
	supersedes_evidence_id UUID,
	superseded_by_id       UUID,
	failure_code           TEXT NOT NULL DEFAULT '',
	rejection_reason       TEXT NOT NULL DEFAULT '',
	version                BIGINT NOT NULL DEFAULT 1,
	created_at             TIMESTAMPTZ NOT NULL,
	updated_at             TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS evidence_tenant_evidence_uq
	ON evidence (tenant_id, evidence_id);
CREATE UNIQUE INDEX IF NOT EXISTS evidence_tenant_correlation_uq
	ON evidence (tenant_id, correlation_id);
CREATE INDEX IF NOT EXISTS evidence_tenant_state_ix
	ON evidence (tenant_id, ledger_state);

CREATE TABLE IF NOT EXISTS audit_events (
	id              UUID PRIMARY KEY,
	tenant_id       UUID NOT NULL,
	evidence_id     UUID NOT NULL,
	sequence_number BIGINT NOT NULL,
	action          TEXT NOT NULL,
	category        TEXT NOT NULL,
	actor_id        TEXT NOT NULL,
	actor_role      TEXT NOT NULL DEFAULT '',
	before_state    TEXT NOT NULL DEFAULT '',
	after_state     TEXT NOT NULL DEFAULT '',
	outcome         INTEGER NOT NULL,
	context         JSONB,
	correlation_id  TEXT NOT NULL DEFAULT '',
	request_id      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL
);

-- The gapless-sequence backstop: a duplicate assignment aborts the
-- transaction instead of forking the stream.
CREATE UNIQUE INDEX IF NOT EXISTS audit_events_stream_uq
	ON audit_events (tenant_id, evidence_id, sequence_number);
CREATE INDEX IF NOT EXISTS audit_events_correlation_ix
	ON audit_events (tenant_id, evidence_id, action, correlation_id);

CREATE TABLE IF NOT EXISTS audit_outbox (
	id             UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   UUID NOT NULL,
	event_type     TEXT NOT NULL,
	payload        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS audit_outbox_created_ix
	ON audit_outbox (created_at);
`

// EnsureSchema creates the ledger tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
