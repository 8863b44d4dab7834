package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attest/internal/platform/logger"
	"attest/pkg/domain"
)

type fakePublisher struct {
	mu       sync.Mutex
	failNext bool
	keys     []string
	payloads [][]byte
}

func (p *fakePublisher) Publish(_ context.Context, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext {
		p.failNext = false
		return errors.New("broker unavailable")
	}
	p.keys = append(p.keys, key)
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *fakePublisher) Close() {}

func (p *fakePublisher) published() ([]string, [][]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...), append([][]byte(nil), p.payloads...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestChannelWorkerPublishesSinkedEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := make(chan Event, 8)
	store := NewInMemory().WithSink(sink)
	pub := &fakePublisher{}
	worker := NewChannelWorker(pub, logger.New(), sink)
	go func() { _ = worker.Run(ctx) }()

	tenantID, err := domain.ParseTenantID("4b5c6d7e-8f90-4a1b-82c3-d4e5f6a7b8c9")
	require.NoError(t, err)
	evidenceID := domain.NewEvidenceID()

	event := &Event{
		TenantID:     tenantID,
		EvidenceID:   evidenceID,
		Action:       ActionCreated,
		ActorID:      "actor-w",
		Outcome:      201,
		CreatedAtUTC: time.Now().UTC(),
	}
	require.NoError(t, store.Append(context.Background(), event))

	waitFor(t, func() bool { keys, _ := pub.published(); return len(keys) == 1 })

	keys, payloads := pub.published()
	assert.Equal(t, evidenceID.String(), keys[0], "events are keyed by evidence id so one stream stays ordered")

	var out Event
	require.NoError(t, json.Unmarshal(payloads[0], &out))
	assert.Equal(t, ActionCreated, out.Action)
	assert.Equal(t, int64(1), out.SequenceNumber)
}

func TestChannelWorkerKeepsConsumingAfterPublishFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := make(chan Event, 8)
	store := NewInMemory().WithSink(sink)
	pub := &fakePublisher{failNext: true}
	worker := NewChannelWorker(pub, logger.New(), sink)
	go func() { _ = worker.Run(ctx) }()

	tenantID, err := domain.ParseTenantID("4b5c6d7e-8f90-4a1b-82c3-d4e5f6a7b8c9")
	require.NoError(t, err)
	evidenceID := domain.NewEvidenceID()

	for _, action := range []Action{ActionCreated, ActionSealed} {
		require.NoError(t, store.Append(context.Background(), &Event{
			TenantID:     tenantID,
			EvidenceID:   evidenceID,
			Action:       action,
			ActorID:      "actor-w",
			Outcome:      200,
			CreatedAtUTC: time.Now().UTC(),
		}))
	}

	// The first publish fails and is dropped by the channel path; the
	// second must still arrive.
	waitFor(t, func() bool { keys, _ := pub.published(); return len(keys) == 1 })

	_, payloads := pub.published()
	var out Event
	require.NoError(t, json.Unmarshal(payloads[0], &out))
	assert.Equal(t, ActionSealed, out.Action)
}

func TestChannelWorkerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := make(chan Event)
	worker := NewChannelWorker(&fakePublisher{}, logger.New(), sink)

	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}
