// Package events provides the in-process event bus and typed event payloads.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	RunStarted           EventType = "RUN_STARTED"
	PlanGenerated        EventType = "PLAN_GENERATED"
	ComplianceEvaluated  EventType = "COMPLIANCE_EVALUATED"
	RecommendationsReady EventType = "RECOMMENDATIONS_READY"
	BatchSequenced       EventType = "BATCH_SEQUENCED"
	TradeTransitioned    EventType = "TRADE_TRANSITIONED"
	RunArchived          EventType = "RUN_ARCHIVED"
	ErrorOccurred        EventType = "ERROR_OCCURRED"
	LogFileChanged       EventType = "LOG_FILE_CHANGED"
)

// AllEventTypes lists every event type, used by stream handlers subscribing to everything
var AllEventTypes = []EventType{
	RunStarted,
	PlanGenerated,
	ComplianceEvaluated,
	RecommendationsReady,
	BatchSequenced,
	TradeTransitioned,
	RunArchived,
	ErrorOccurred,
	LogFileChanged,
}

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// GetTypedData converts the Data map to its typed EventData.
// Returns nil for unknown types or data that does not decode.
func (e *Event) GetTypedData() EventData {
	if e.Data == nil {
		return nil
	}
	data := newEventData(e.Type)
	if data == nil {
		return nil
	}
	if err := convertMapToStruct(e.Data, data); err != nil {
		return nil
	}
	return data
}
