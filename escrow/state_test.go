package escrow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateTransitions(t *testing.T) {
	assert.True(t, StatePending.CanTransition(StateAccepted))
	assert.True(t, StateAccepted.CanTransition(StateInTransit))
	assert.True(t, StateInTransit.CanTransition(StateDelivered))
	assert.True(t, StateDelivered.CanTransition(StateCompleted))

	assert.False(t, StatePending.CanTransition(StateCompleted))
	assert.False(t, StateDelivered.CanTransition(StateAccepted))
	assert.False(t, StateDisputed.CanTransition(StateDisputed))

	for _, s := range []State{StatePending, StateAccepted, StateInTransit, StateDelivered} {
		assert.True(t, s.CanTransition(StateDisputed), "dispute from %s", s)
	}
	for _, s := range []State{StateCompleted, StateCancelled} {
		assert.True(t, s.IsTerminal())
		assert.Empty(t, s.NextStates())
	}

	assert.True(t, StatePending.CanTransition(StateCancelled))
	assert.True(t, StateAccepted.CanTransition(StateCancelled))
	assert.False(t, StateInTransit.CanTransition(StateCancelled))
}

func TestStateLabels(t *testing.T) {
	assert.Equal(t, "In Transit", StateInTransit.String())
	assert.Equal(t, "Unknown(9)", State(9).String())
	assert.False(t, State(9).Valid())

	s, err := ParseState("in transit")
	require.NoError(t, err)
	assert.Equal(t, StateInTransit, s)

	s, err = ParseState("4")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, s)

	_, err = ParseState("shipped")
	assert.Error(t, err)
}

func TestStateAfterTracking(t *testing.T) {
	assert.Equal(t, StateDelivered, StateAfterTracking("Delivered"))
	assert.Equal(t, StateInTransit, StateAfterTracking("left warehouse"))
}

func TestParseAbort(t *testing.T) {
	reason := AbortReason(testPackage, "complete_escrow", EInvalidState, 0)
	abort, ok := ParseAbort(reason)
	require.True(t, ok)
	assert.Equal(t, "complete_escrow", abort.Function)
	assert.Equal(t, EInvalidState, abort.Code)
	assert.Equal(t, "complete_escrow aborted: invalid escrow state (2)", abort.String())

	_, ok = ParseAbort("InsufficientGas")
	assert.False(t, ok)
}
