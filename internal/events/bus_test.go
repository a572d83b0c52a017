package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewatch/codewatch/internal/logging"
)

func TestMemoryBusRecordsEmissions(t *testing.T) {
	b := NewMemoryBus()
	b.EmitOnListener(EventNewProjectAdded, map[string]interface{}{"projectID": "p1"})
	b.EmitOnListener(EventProjectDeletion, map[string]interface{}{"projectID": "p1"})
	b.EmitOnListener(EventNewProjectAdded, map[string]interface{}{"projectID": "p2"})

	assert.Len(t, b.Events(), 3)

	added := b.Named(EventNewProjectAdded)
	require.Len(t, added, 2)
	payload, ok := added[1].Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "p2", payload["projectID"])

	assert.Empty(t, b.Named(EventProjectLogsListChanged))
}

func TestPortalBusUnreachableDropsEvent(t *testing.T) {
	// No listener on the target port: the emission is dropped, not fatal.
	b := NewPortalBus("ws://127.0.0.1:1/ws", logging.NewNop())
	b.EmitOnListener(EventNewProjectAdded, map[string]interface{}{"projectID": "p1"})
	assert.NoError(t, b.Close())
}
