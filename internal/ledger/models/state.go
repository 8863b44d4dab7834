package models

import dErrors "attest/pkg/domain-errors"

// LedgerState is the lifecycle stage of an evidence record.
//
// DRAFT exists only in the staging area and never reaches the ledger store;
// the gateway creates records directly in INGESTED with hashes already bound.
type LedgerState string

const (
	StateDraft       LedgerState = "DRAFT"
	StateIngested    LedgerState = "INGESTED"
	StateSealed      LedgerState = "SEALED"
	StateRejected    LedgerState = "REJECTED"
	StateFailed      LedgerState = "FAILED"
	StateSuperseded  LedgerState = "SUPERSEDED"
	StateQuarantined LedgerState = "QUARANTINED"
)

// legalTransitions is the single source of truth for the state machine.
// Every guard in the service layer consults this table; no call site
// re-derives the rules.
var legalTransitions = map[LedgerState]map[LedgerState]bool{
	StateDraft: {
		StateIngested: true,
	},
	StateIngested: {
		StateSealed:   true,
		StateRejected: true,
		StateFailed:   true,
	},
	StateSealed: {
		StateSuperseded:  true,
		StateQuarantined: true,
	},
	StateRejected:    {},
	StateFailed:      {},
	StateSuperseded:  {},
	StateQuarantined: {},
}

// CanTransitionTo reports whether the state machine allows moving to target.
func (s LedgerState) CanTransitionTo(target LedgerState) bool {
	return legalTransitions[s][target]
}

// IsTerminal reports whether no further state change is legal.
func (s LedgerState) IsTerminal() bool {
	return len(legalTransitions[s]) == 0
}

// IsValid checks the state is one of the supported enum values.
func (s LedgerState) IsValid() bool {
	_, ok := legalTransitions[s]
	return ok
}

// ParseLedgerState constructs a LedgerState from external input.
func ParseLedgerState(raw string) (LedgerState, error) {
	s := LedgerState(raw)
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid ledger state")
	}
	return s, nil
}

func (s LedgerState) String() string { return string(s) }
