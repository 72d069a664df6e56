package eventlog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamsaleh11/DroneSystem/core/factory"
)

func TestRecordJSONKeys(t *testing.T) {
	rec := Record{Timestamp: time.Unix(0, 0), Category: CategoryFault, AgentID: 2, Message: "stuck"}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, k := range []string{"timestamp", "category", "agent_id", "message"} {
		assert.Contains(t, m, k)
	}
	assert.NotContains(t, m, "incident_id")
	assert.Equal(t, "FAULT REPORT", m["category"])
}

func TestRecordLine(t *testing.T) {
	rec := Record{
		Timestamp: time.Date(2025, 3, 1, 14, 5, 9, 0, time.UTC),
		Category:  CategoryPending,
		Message:   "Zone 3 FIRE_DETECTED High",
	}
	assert.Equal(t, "[14:05:09] PENDING INCIDENT: Zone 3 FIRE_DETECTED High", rec.Line())
}

func TestQueryMatch(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := Record{Timestamp: at, Category: CategoryAssignment, AgentID: 4, IncidentID: "abc"}

	assert.True(t, Query{}.Match(rec))
	assert.True(t, Query{AgentID: 4, Category: CategoryAssignment}.Match(rec))
	assert.False(t, Query{AgentID: 5}.Match(rec))
	assert.False(t, Query{IncidentID: "xyz"}.Match(rec))
	assert.False(t, Query{Start: at.Add(time.Second)}.Match(rec))
	assert.False(t, Query{End: at.Add(-time.Second)}.Match(rec))
	assert.False(t, Query{Category: CategoryOffline}.Match(rec))
}

func TestNewStoreDefaultsToNop(t *testing.T) {
	s, err := NewStore(factory.ModuleConfig{})
	require.NoError(t, err)
	assert.IsType(t, NopStore{}, s)

	_, err = NewStore(factory.ModuleConfig{Type: "carrier-pigeon"})
	assert.Error(t, err)
}
