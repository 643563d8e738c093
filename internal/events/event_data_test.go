package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanGeneratedData(t *testing.T) {
	data := PlanGeneratedData{
		RunID:          "run-1",
		Targets:        19,
		Ineligible:     2,
		UnallocatedPct: 1.5,
		Passes:         3,
		Converged:      true,
		Violations:     4,
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"run_id":"run-1"`)
	assert.Contains(t, string(jsonData), `"unallocated_pct":1.5`)

	var unmarshaled PlanGeneratedData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data, unmarshaled)
}

func TestBatchSequencedData(t *testing.T) {
	data := BatchSequencedData{
		RunID:        "run-2",
		Policy:       "SMART",
		Executed:     3,
		Partial:      1,
		Rejected:     2,
		StartingCash: 500,
		FinalCash:    120.5,
		TotalFees:    6,
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)

	var unmarshaled BatchSequencedData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data, unmarshaled)
}

func TestEventDataInterface(t *testing.T) {
	tests := []struct {
		data EventData
		want EventType
	}{
		{&RunStartedData{}, RunStarted},
		{&PlanGeneratedData{}, PlanGenerated},
		{&ComplianceEvaluatedData{}, ComplianceEvaluated},
		{&RecommendationsReadyData{}, RecommendationsReady},
		{&BatchSequencedData{}, BatchSequenced},
		{&TradeTransitionedData{}, TradeTransitioned},
		{&RunArchivedData{}, RunArchived},
		{&ErrorEventData{}, ErrorOccurred},
		{&LogFileChangedData{}, LogFileChanged},
		{&GenericEventData{Type: "CUSTOM"}, EventType("CUSTOM")},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.data.EventType())
		})
	}

	for _, eventType := range AllEventTypes {
		assert.NotNil(t, newEventData(eventType), eventType)
	}
}

func TestEventWithData_RoundTrip(t *testing.T) {
	original := &EventWithData{
		Type:      ComplianceEvaluated,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Module:    "planning",
		Data: &ComplianceEvaluatedData{
			RunID:     "run-3",
			Score:     80,
			Compliant: false,
			Critical:  1,
		},
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded EventWithData
	require.NoError(t, json.Unmarshal(jsonData, &decoded))

	assert.Equal(t, ComplianceEvaluated, decoded.Type)
	assert.Equal(t, "planning", decoded.Module)
	assert.True(t, original.Timestamp.Equal(decoded.Timestamp))

	data, ok := decoded.Data.(*ComplianceEvaluatedData)
	require.True(t, ok)
	assert.Equal(t, 80.0, data.Score)
	assert.Equal(t, 1, data.Critical)
}

func TestEventWithData_UnknownTypeKeepsRawMap(t *testing.T) {
	raw := `{"type":"SOMETHING_ELSE","module":"x","timestamp":"2026-01-01T00:00:00Z","data":{"answer":42}}`

	var decoded EventWithData
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))

	generic, ok := decoded.Data.(*GenericEventData)
	require.True(t, ok)
	assert.Equal(t, EventType("SOMETHING_ELSE"), generic.EventType())
	assert.Equal(t, 42.0, generic.Data["answer"])
}

func TestEvent_GetTypedData(t *testing.T) {
	event := &Event{
		Type: TradeTransitioned,
		Data: convertEventDataToMap(&TradeTransitionedData{
			RunID:  "run-4",
			Ticker: "AAA",
			From:   "PENDING",
			To:     "EXECUTING",
			Cash:   12.5,
		}),
	}

	typed, ok := event.GetTypedData().(*TradeTransitionedData)
	require.True(t, ok)
	assert.Equal(t, "AAA", typed.Ticker)
	assert.Equal(t, 12.5, typed.Cash)

	assert.Nil(t, (&Event{Type: TradeTransitioned}).GetTypedData())
	assert.Nil(t, (&Event{Type: "UNKNOWN", Data: map[string]interface{}{}}).GetTypedData())
}
