package tx

import (
	"context"
	"sync"
)

type journalCtxKey struct{}

var journalKey = journalCtxKey{}

// Journal is the memory-backend counterpart of a SQL transaction. Stores
// that write to maps instead of tables register an undo for each write they
// apply inside RunInTx; when the unit fails, Rollback runs the undos in
// reverse so the evidence mutation and its audit append still commit or
// revert together.
type Journal struct {
	mu   sync.Mutex
	undo []func()
}

// WithJournal attaches a fresh journal to the context.
func WithJournal(ctx context.Context) (context.Context, *Journal) {
	j := &Journal{}
	return context.WithValue(ctx, journalKey, j), j
}

// JournalFrom extracts the ambient journal if present.
func JournalFrom(ctx context.Context) (*Journal, bool) {
	j, ok := ctx.Value(journalKey).(*Journal)
	return j, ok
}

// OnRollback registers an undo for a write that was just applied.
func (j *Journal) OnRollback(fn func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.undo = append(j.undo, fn)
}

// Rollback runs the registered undos newest-first and clears the journal.
func (j *Journal) Rollback() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}
