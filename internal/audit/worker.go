package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// OutboxWorker drains the audit outbox table and publishes entries to the
// external stream. Rows are deleted only after a successful publish, so a
// crash between publish and delete yields at-least-once delivery; consumers
// deduplicate on event id.
type OutboxWorker struct {
	db        *sql.DB
	publisher Publisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewOutboxWorker builds a worker polling at the given interval.
func NewOutboxWorker(db *sql.DB, publisher Publisher, logger *slog.Logger, interval time.Duration) *OutboxWorker {
	if interval <= 0 {
		interval = time.Second
	}
	return &OutboxWorker{
		db:        db,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		batchSize: 100,
	}
}

// Run polls until the context is cancelled. Publish failures are logged and
// retried on the next tick; the outbox keeps the events until then.
func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drainOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

func (w *OutboxWorker) drainOnce(ctx context.Context) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, payload
		FROM audit_outbox
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, w.batchSize)
	if err != nil {
		return fmt.Errorf("select outbox batch: %w", err)
	}

	type entry struct {
		id          uuid.UUID
		aggregateID uuid.UUID
		payload     []byte
	}
	var batch []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.aggregateID, &e.payload); err != nil {
			rows.Close()
			return fmt.Errorf("scan outbox entry: %w", err)
		}
		batch = append(batch, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate outbox: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}

	published := make([]uuid.UUID, 0, len(batch))
	for _, e := range batch {
		if err := w.publisher.Publish(ctx, e.aggregateID.String(), e.payload); err != nil {
			// Stop at the first failure to preserve per-aggregate order.
			w.logger.WarnContext(ctx, "outbox publish failed, will retry",
				"outbox_id", e.id, "error", err)
			break
		}
		published = append(published, e.id)
	}
	if len(published) == 0 {
		return nil
	}

	for _, id := range published {
		if _, err := tx.ExecContext(ctx, `DELETE FROM audit_outbox WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete outbox entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outbox tx: %w", err)
	}
	return nil
}

// ChannelWorker publishes events fed through a channel; it backs the
// in-memory store's sink when no database outbox exists.
type ChannelWorker struct {
	publisher Publisher
	logger    *slog.Logger
	inbox     <-chan Event
}

// NewChannelWorker builds a worker consuming from inbox.
func NewChannelWorker(publisher Publisher, logger *slog.Logger, inbox <-chan Event) *ChannelWorker {
	return &ChannelWorker{publisher: publisher, logger: logger, inbox: inbox}
}

// Run consumes until the context is cancelled.
func (w *ChannelWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			payload, err := json.Marshal(event)
			if err != nil {
				w.logger.ErrorContext(ctx, "marshal audit event", "error", err)
				continue
			}
			if err := w.publisher.Publish(ctx, event.EvidenceID.String(), payload); err != nil {
				w.logger.WarnContext(ctx, "publish audit event failed",
					"event_id", event.ID, "error", err)
			}
		}
	}
}
