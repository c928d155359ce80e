package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_LegalEdges(t *testing.T) {
	cases := []struct {
		from, to MeetingState
	}{
		{StateUploaded, StateTranscribing},
		{StateTranscribing, StateTranscribed},
		{StateTranscribing, StateUploaded},
		{StateTranscribing, StateFailed},
		{StateTranscribed, StateCorrecting},
		{StateCorrecting, StateCorrected},
		{StateCorrecting, StateCorrectionReview},
		{StateCorrecting, StateTranscribed},
		{StateCorrecting, StateFailed},
		{StateCorrectionReview, StateTranscribed},
		{StateCorrectionReview, StateCorrecting},
		{StateCorrected, StateIndexed},
		{StateCorrected, StateFailed},
	}
	for _, c := range cases {
		assert.True(t, CanTransition(c.from, c.to), "%s -> %s should be legal", c.from, c.to)
	}
}

func TestCanTransition_IllegalEdges(t *testing.T) {
	cases := []struct {
		from, to MeetingState
	}{
		{StateUploaded, StateTranscribed},
		{StateUploaded, StateCorrecting},
		{StateTranscribed, StateTranscribing},
		{StateCorrected, StateCorrecting},
		{StateIndexed, StateUploaded},
		{StateFailed, StateUploaded},
		{StateFailed, StateTranscribing},
	}
	for _, c := range cases {
		assert.False(t, CanTransition(c.from, c.to), "%s -> %s should be illegal", c.from, c.to)
	}
}

// TestStateGraph_TerminalStatesHaveNoOutgoingEdges guards the invariant that
// once a meeting reaches INDEXED or FAILED, nothing can move it again.
func TestStateGraph_TerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	assert.Empty(t, ValidTransitions[StateIndexed])
	assert.Empty(t, ValidTransitions[StateFailed])
}

func TestBeforeCreate_AssignsIDAndDefaults(t *testing.T) {
	m := &Meeting{AudioFilePath: "/audio/in.wav"}
	err := m.BeforeCreate(nil)
	assert.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, StateUploaded, m.State)
	assert.False(t, m.StateChangedAt.IsZero())
}

func TestBeforeCreate_PreservesExplicitID(t *testing.T) {
	m := &Meeting{ID: "fixed-id", AudioFilePath: "/audio/in.wav"}
	err := m.BeforeCreate(nil)
	assert.NoError(t, err)
	assert.Equal(t, "fixed-id", m.ID)
}
