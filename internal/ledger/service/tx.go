package service

import (
	"context"
	"time"

	dErrors "attest/pkg/domain-errors"
	txcontext "attest/pkg/platform/tx"
)

// StoreTx provides the transactional boundary for a ledger mutation and its
// audit append. Implementations wrap a database transaction or, in-memory,
// pass straight through (the memory stores lock internally).
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// defaultTxTimeout is the maximum duration for a ledger transaction.
const defaultTxTimeout = 5 * time.Second

// inMemoryStoreTx bounds the transaction with a timeout and carries a
// compensation journal: the memory stores register an undo for every write,
// and a failing unit rolls them back so the evidence mutation and its audit
// append still land together or not at all.
type inMemoryStoreTx struct {
	timeout time.Duration
}

func newInMemoryStoreTx() *inMemoryStoreTx {
	return &inMemoryStoreTx{timeout: defaultTxTimeout}
}

func (t *inMemoryStoreTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	ctx, journal := txcontext.WithJournal(ctx)
	if err := fn(ctx); err != nil {
		journal.Rollback()
		return err
	}
	return nil
}
