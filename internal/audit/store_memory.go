package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	txcontext "attest/pkg/platform/tx"
)

type aggregateKey struct {
	tenant   domain.TenantID
	evidence domain.EvidenceID
}

// InMemory is the in-process audit store used by unit tests and dev mode.
// Sequence assignment happens under the store lock so concurrent appends to
// the same aggregate can never duplicate or skip a number.
type InMemory struct {
	mu      sync.Mutex
	streams map[aggregateKey][]Event
	// sink receives every appended event for asynchronous publishing.
	// Nil when no worker is attached.
	sink chan<- Event
}

// NewInMemory creates an empty in-memory audit store.
func NewInMemory() *InMemory {
	return &InMemory{streams: make(map[aggregateKey][]Event)}
}

// WithSink attaches a channel that receives a copy of every appended event.
func (s *InMemory) WithSink(sink chan<- Event) *InMemory {
	s.sink = sink
	return s
}

// Append assigns the next gapless sequence number and stores the event.
func (s *InMemory) Append(ctx context.Context, event *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.TenantID.IsNil() || event.EvidenceID.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "audit event requires tenant and evidence ids")
	}
	if event.Action == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "audit event requires an action")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAtUTC.IsZero() {
		event.CreatedAtUTC = time.Now().UTC()
	}

	key := aggregateKey{tenant: event.TenantID, evidence: event.EvidenceID}
	event.SequenceNumber = int64(len(s.streams[key])) + 1
	s.streams[key] = append(s.streams[key], *event)

	if j, ok := txcontext.JournalFrom(ctx); ok {
		id := event.ID
		j.OnRollback(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			stream := s.streams[key]
			for i := len(stream) - 1; i >= 0; i-- {
				if stream[i].ID == id {
					s.streams[key] = append(stream[:i:i], stream[i+1:]...)
					break
				}
			}
		})
	}

	if s.sink != nil {
		select {
		case s.sink <- *event:
		default:
			// The sink is a best-effort relay to external consumers; the
			// store itself is the system of record and has already
			// persisted the event.
		}
	}
	return nil
}

// ListByEvidence returns the aggregate's events ordered by sequence number.
func (s *InMemory) ListByEvidence(ctx context.Context, tenantID domain.TenantID, evidenceID domain.EvidenceID) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[aggregateKey{tenant: tenantID, evidence: evidenceID}]
	out := make([]Event, len(stream))
	copy(out, stream)
	return out, nil
}

// HasCorrelation reports whether the aggregate already recorded the action
// under the given correlation id.
func (s *InMemory) HasCorrelation(ctx context.Context, tenantID domain.TenantID, evidenceID domain.EvidenceID, action Action, correlationID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if correlationID == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.streams[aggregateKey{tenant: tenantID, evidence: evidenceID}] {
		if e.Action == action && e.CorrelationID == correlationID {
			return true, nil
		}
	}
	return false, nil
}
