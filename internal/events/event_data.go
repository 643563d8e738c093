package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// RunStartedData contains data for RunStarted events
type RunStartedData struct {
	RunID    string  `json:"run_id"`
	Source   string  `json:"source"`
	Holdings int     `json:"holdings"`
	Cash     float64 `json:"cash"`
}

// EventType returns the event type for RunStartedData
func (d *RunStartedData) EventType() EventType {
	return RunStarted
}

// PlanGeneratedData contains data for PlanGenerated events
type PlanGeneratedData struct {
	RunID          string  `json:"run_id"`
	Targets        int     `json:"targets"`
	Ineligible     int     `json:"ineligible"`
	UnallocatedPct float64 `json:"unallocated_pct"`
	Passes         int     `json:"passes"`
	Converged      bool    `json:"converged"`
	Violations     int     `json:"violations"`
}

// EventType returns the event type for PlanGeneratedData
func (d *PlanGeneratedData) EventType() EventType {
	return PlanGenerated
}

// ComplianceEvaluatedData contains data for ComplianceEvaluated events
type ComplianceEvaluatedData struct {
	RunID     string  `json:"run_id"`
	Score     float64 `json:"score"`
	Compliant bool    `json:"compliant"`
	Critical  int     `json:"critical"`
	Warnings  int     `json:"warnings"`
	Info      int     `json:"info"`
}

// EventType returns the event type for ComplianceEvaluatedData
func (d *ComplianceEvaluatedData) EventType() EventType {
	return ComplianceEvaluated
}

// RecommendationsReadyData contains data for RecommendationsReady events
type RecommendationsReadyData struct {
	RunID   string `json:"run_id"`
	Count   int    `json:"count"`
	Skipped int    `json:"skipped"`
}

// EventType returns the event type for RecommendationsReadyData
func (d *RecommendationsReadyData) EventType() EventType {
	return RecommendationsReady
}

// BatchSequencedData contains data for BatchSequenced events
type BatchSequencedData struct {
	RunID        string  `json:"run_id"`
	Policy       string  `json:"policy"`
	Executed     int     `json:"executed"`
	Partial      int     `json:"partial"`
	Rejected     int     `json:"rejected"`
	StartingCash float64 `json:"starting_cash"`
	FinalCash    float64 `json:"final_cash"`
	TotalFees    float64 `json:"total_fees"`
}

// EventType returns the event type for BatchSequencedData
func (d *BatchSequencedData) EventType() EventType {
	return BatchSequenced
}

// TradeTransitionedData contains data for TradeTransitioned events
type TradeTransitionedData struct {
	RunID   string  `json:"run_id"`
	TradeID string  `json:"trade_id"`
	Ticker  string  `json:"ticker"`
	Action  string  `json:"action"`
	From    string  `json:"from"`
	To      string  `json:"to"`
	Cash    float64 `json:"cash"`
}

// EventType returns the event type for TradeTransitionedData
func (d *TradeTransitionedData) EventType() EventType {
	return TradeTransitioned
}

// RunArchivedData contains data for RunArchived events
type RunArchivedData struct {
	RunID string `json:"run_id"`
	Key   string `json:"key"`
	Bytes int    `json:"bytes"`
}

// EventType returns the event type for RunArchivedData
func (d *RunArchivedData) EventType() EventType {
	return RunArchived
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// LogFileChangedData contains data for LogFileChanged events
type LogFileChangedData struct {
	LogFile string `json:"log_file"`
}

// EventType returns the event type for LogFileChangedData
func (d *LogFileChangedData) EventType() EventType {
	return LogFileChanged
}

// newEventData returns an empty payload for the given type, or nil if the type is unknown
func newEventData(t EventType) EventData {
	switch t {
	case RunStarted:
		return &RunStartedData{}
	case PlanGenerated:
		return &PlanGeneratedData{}
	case ComplianceEvaluated:
		return &ComplianceEvaluatedData{}
	case RecommendationsReady:
		return &RecommendationsReadyData{}
	case BatchSequenced:
		return &BatchSequencedData{}
	case TradeTransitioned:
		return &TradeTransitionedData{}
	case RunArchived:
		return &RunArchivedData{}
	case ErrorOccurred:
		return &ErrorEventData{}
	case LogFileChanged:
		return &LogFileChangedData{}
	}
	return nil
}

// EventWithData represents an event with typed data
type EventWithData struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// MarshalJSON customizes JSON serialization for EventWithData
func (e *EventWithData) MarshalJSON() ([]byte, error) {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON customizes JSON deserialization for EventWithData
func (e *EventWithData) UnmarshalJSON(data []byte) error {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.Data) == 0 {
		return nil
	}

	eventData := newEventData(aux.Type)
	if eventData == nil {
		// Unknown types keep the raw map
		eventData = &GenericEventData{Type: aux.Type}
	}
	if err := json.Unmarshal(aux.Data, eventData); err != nil {
		return err
	}
	e.Data = eventData
	return nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}

// convertMapToStruct converts a map[string]interface{} to a struct via JSON
func convertMapToStruct(m map[string]interface{}, v interface{}) error {
	jsonBytes, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonBytes, v)
}

// convertEventDataToMap converts typed EventData to the map carried on the bus
func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}
	return result
}
