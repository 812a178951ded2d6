package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientTerminalEventSurvivesFullBuffer(t *testing.T) {
	c := NewClient("c1", "", "")
	for c.deliver(&Event{Kind: EventPositionBatch}) {
	}
	require.Len(t, c.Events, cap(c.Events))

	c.deliverTerminal(&Event{Kind: EventKicked, Terminal: true})

	select {
	case <-c.Done():
	default:
		t.Fatal("session was not ended")
	}

	var last *Event
	for len(c.Events) > 0 {
		last = <-c.Events
	}
	require.NotNil(t, last)
	assert.Equal(t, EventKicked, last.Kind)
	assert.True(t, last.Terminal)
}
