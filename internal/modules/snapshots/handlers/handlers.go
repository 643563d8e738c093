// Package handlers provides HTTP handlers for snapshot validation.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/tierfolio/internal/domain"
	"github.com/aristath/tierfolio/internal/modules/snapshots"
	"github.com/aristath/tierfolio/internal/modules/tiers"
)

const maxBodyBytes = 10 << 20

// Handler handles snapshot HTTP requests
type Handler struct {
	classifier *tiers.Classifier
	log        zerolog.Logger
}

// NewHandler creates a new snapshot handler
func NewHandler(classifier *tiers.Classifier, log zerolog.Logger) *Handler {
	return &Handler{
		classifier: classifier,
		log:        log.With().Str("handler", "snapshots").Logger(),
	}
}

// ValidationResponse reports whether a snapshot can be analyzed, and how its
// holdings classify when it can
type ValidationResponse struct {
	Valid       bool                    `json:"valid"`
	Problems    []string                `json:"problems,omitempty"`
	TotalValue  float64                 `json:"total_value"`
	CashPct     float64                 `json:"cash_pct"`
	Weights     map[string]float64      `json:"weights,omitempty"`
	Eligibility map[string]tiers.Record `json:"eligibility,omitempty"`
}

// HandleValidate handles POST /api/snapshots/validate. Nothing is stored.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Snapshot too large", http.StatusRequestEntityTooLarge)
		return
	}

	snapshot, err := snapshots.Parse(body, snapshots.FormatFromContentType(r.Header.Get("Content-Type")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := domain.ValidateSnapshot(snapshot); err != nil {
		var fatal *domain.FatalInputError
		if !errors.As(err, &fatal) {
			h.log.Error().Err(err).Msg("Snapshot validation failed")
			http.Error(w, "Validation failed", http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, http.StatusOK, ValidationResponse{Valid: false, Problems: fatal.Problems})
		return
	}

	eligibility := h.classifier.ClassifyAll(snapshot.Holdings)
	records := make(map[string]tiers.Record, len(eligibility))
	for ticker, e := range eligibility {
		records[ticker] = tiers.ToRecord(e)
	}

	h.writeJSON(w, http.StatusOK, ValidationResponse{
		Valid:       true,
		TotalValue:  snapshot.TotalValue(),
		CashPct:     snapshot.CashPct(),
		Weights:     snapshot.Weights(),
		Eligibility: records,
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
