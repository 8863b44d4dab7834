package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"attest/internal/platform/metrics"
	"attest/pkg/requestcontext"
)

// Recorder emits audit events with synchronous, fail-closed semantics: the
// caller blocks until the append succeeds, and if it fails the calling
// mutation MUST fail too. Recording a blocked attempt is a compliance
// requirement, not telemetry.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures the Recorder.
type Option func(*Recorder)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// NewRecorder creates a fail-closed recorder over the given store.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record synchronously appends the event, filling actor and request metadata
// from context when the caller left them empty.
//
// Returns an error if persistence fails - the caller MUST fail its operation.
func (r *Recorder) Record(ctx context.Context, event *Event) error {
	if event.Action == "" {
		return fmt.Errorf("audit event requires an action")
	}
	if event.ActorID == "" {
		event.ActorID = requestcontext.ActorID(ctx)
	}
	if event.ActorRole == "" {
		event.ActorRole = requestcontext.ActorRole(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.CreatedAtUTC.IsZero() {
		event.CreatedAtUTC = requestcontext.Now(ctx).UTC()
	}

	start := time.Now()
	if err := r.store.Append(ctx, event); err != nil {
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "CRITICAL: audit append failed",
				"action", event.Action,
				"evidence_id", event.EvidenceID,
				"error", err,
			)
		}
		return fmt.Errorf("audit persistence failed: %w", err)
	}
	r.metrics.IncAuditEventsAppended()
	if r.logger != nil {
		r.logger.DebugContext(ctx, "audit event appended",
			"action", event.Action,
			"evidence_id", event.EvidenceID,
			"sequence", event.SequenceNumber,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return nil
}
