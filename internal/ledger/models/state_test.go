package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionTo(t *testing.T) {
	allowed := []struct {
		from, to LedgerState
	}{
		{StateDraft, StateIngested},
		{StateIngested, StateSealed},
		{StateIngested, StateRejected},
		{StateIngested, StateFailed},
		{StateSealed, StateSuperseded},
		{StateSealed, StateQuarantined},
	}
	for _, tc := range allowed {
		assert.True(t, tc.from.CanTransitionTo(tc.to), "%s -> %s should be legal", tc.from, tc.to)
	}

	denied := []struct {
		from, to LedgerState
	}{
		{StateSealed, StateIngested},
		{StateSealed, StateSealed},
		{StateSealed, StateRejected},
		{StateSealed, StateDraft},
		{StateRejected, StateIngested},
		{StateRejected, StateSealed},
		{StateFailed, StateSealed},
		{StateSuperseded, StateSealed},
		{StateSuperseded, StateQuarantined},
		{StateQuarantined, StateSealed},
		{StateQuarantined, StateSuperseded},
		{StateDraft, StateSealed},
		{StateIngested, StateQuarantined},
		{StateIngested, StateSuperseded},
	}
	for _, tc := range denied {
		assert.False(t, tc.from.CanTransitionTo(tc.to), "%s -> %s should be illegal", tc.from, tc.to)
	}
}

func TestIsTerminal(t *testing.T) {
	for _, state := range []LedgerState{StateRejected, StateFailed, StateSuperseded, StateQuarantined} {
		assert.True(t, state.IsTerminal(), "%s should be terminal", state)
	}
	for _, state := range []LedgerState{StateDraft, StateIngested, StateSealed} {
		assert.False(t, state.IsTerminal(), "%s should not be terminal", state)
	}
}

func TestParseLedgerState(t *testing.T) {
	state, err := ParseLedgerState("SEALED")
	require.NoError(t, err)
	assert.Equal(t, StateSealed, state)

	_, err = ParseLedgerState("MELTED")
	assert.Error(t, err)

	_, err = ParseLedgerState("")
	assert.Error(t, err)
}
