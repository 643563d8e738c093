// Package handlers provides stateless what-if rebalancing endpoints. Nothing
// submitted here is stored, emitted or archived.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/tierfolio/internal/domain"
	"github.com/aristath/tierfolio/internal/modules/planning"
	"github.com/aristath/tierfolio/internal/modules/rebalancing"
	"github.com/aristath/tierfolio/internal/modules/reports"
	"github.com/aristath/tierfolio/internal/modules/sequencing"
	"github.com/aristath/tierfolio/internal/modules/snapshots"
)

const maxBodyBytes = 10 << 20

// Planner is the store-free subset of planning.Service
type Planner interface {
	Analyze(snapshot *domain.Snapshot) (*reports.Run, error)
	SequenceRun(run *reports.Run, req planning.SequenceRequest, opts ...sequencing.Option) (sequencing.Summary, error)
	Simulate(run *reports.Run, summary sequencing.Summary) (*planning.Projection, error)
	Config() planning.Config
}

// Handler handles rebalancing HTTP requests
type Handler struct {
	planner Planner
	costs   domain.TransactionCost
	log     zerolog.Logger
}

// NewHandler creates a new rebalancing handler
func NewHandler(
	planner Planner,
	costs domain.TransactionCost,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		planner: planner,
		costs:   costs,
		log:     log.With().Str("handler", "rebalancing").Logger(),
	}
}

// CalculateResponse is the trade list for a submitted snapshot
type CalculateResponse struct {
	Trades         []domain.Trade             `json:"trades"`
	Skipped        []rebalancing.SkippedTrade `json:"skipped"`
	PortfolioValue float64                    `json:"portfolio_value"`
	MinTradeValue  float64                    `json:"min_trade_value"`
}

// SimulateRebalanceRequest is a snapshot plus optional sequencing overrides
type SimulateRebalanceRequest struct {
	Snapshot *domain.Snapshot `json:"snapshot"`
	planning.SequenceRequest
}

// SimulateRebalanceResponse is the sequenced batch and the portfolio it leaves behind
type SimulateRebalanceResponse struct {
	Trades     []domain.Trade       `json:"trades"`
	Execution  sequencing.Summary   `json:"execution"`
	Projection *planning.Projection `json:"projection"`
}

// MinTradeAmountResponse describes the trade value filter
type MinTradeAmountResponse struct {
	MinTradeValue    float64                `json:"min_trade_value"`
	CostDerivedValue float64                `json:"cost_derived_value"`
	MaxCostRatio     float64                `json:"max_cost_ratio"`
	TransactionCost  domain.TransactionCost `json:"transaction_cost"`
}

// HandleCalculateRebalance handles POST /api/rebalancing/calculate. The body is a
// JSON or YAML snapshot, selected by Content-Type.
func (h *Handler) HandleCalculateRebalance(w http.ResponseWriter, r *http.Request) {
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

	run, err := h.planner.Analyze(snapshot)
	if err != nil {
		h.handleError(w, err, "Failed to calculate rebalancing trades")
		return
	}

	h.writeJSON(w, http.StatusOK, CalculateResponse{
		Trades:         nonNilTrades(run.Trades),
		Skipped:        run.Skipped,
		PortfolioValue: run.PortfolioValue,
		MinTradeValue:  h.planner.Config().Rebalancing.MinTradeValue,
	})
}

// HandleSimulateRebalance handles POST /api/rebalancing/simulate
func (h *Handler) HandleSimulateRebalance(w http.ResponseWriter, r *http.Request) {
	var req SimulateRebalanceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Snapshot == nil {
		http.Error(w, "snapshot is required", http.StatusBadRequest)
		return
	}
	if req.Snapshot.Currency == "" {
		req.Snapshot.Currency = domain.CurrencyEUR
	}

	run, err := h.planner.Analyze(req.Snapshot)
	if err != nil {
		h.handleError(w, err, "Failed to calculate rebalancing trades")
		return
	}

	summary, err := h.planner.SequenceRun(run, req.SequenceRequest)
	if err != nil {
		h.handleError(w, err, "Failed to sequence trades")
		return
	}

	projection, err := h.planner.Simulate(run, summary)
	if err != nil {
		h.handleError(w, err, "Failed to simulate rebalance")
		return
	}

	h.writeJSON(w, http.StatusOK, SimulateRebalanceResponse{
		Trades:     nonNilTrades(run.Trades),
		Execution:  summary,
		Projection: projection,
	})
}

// HandleGetMinTradeAmount handles GET /api/rebalancing/min-trade-amount
func (h *Handler) HandleGetMinTradeAmount(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, MinTradeAmountResponse{
		MinTradeValue:    h.planner.Config().Rebalancing.MinTradeValue,
		CostDerivedValue: rebalancing.MinTradeAmountFor(h.costs),
		MaxCostRatio:     rebalancing.DefaultMaxCostRatio,
		TransactionCost:  h.costs,
	})
}

func (h *Handler) handleError(w http.ResponseWriter, err error, msg string) {
	var fatal *domain.FatalInputError
	switch {
	case errors.As(err, &fatal):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":    "Snapshot rejected",
			"problems": fatal.Problems,
		})
	case errors.Is(err, planning.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.log.Error().Err(err).Msg(msg)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func nonNilTrades(trades []domain.Trade) []domain.Trade {
	if trades == nil {
		return []domain.Trade{}
	}
	return trades
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
