// Package handlers provides HTTP handlers for allocation math.
package handlers

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/tierfolio/internal/domain"
	"github.com/aristath/tierfolio/internal/modules/allocation"
	"github.com/aristath/tierfolio/internal/modules/tiers"
)

// Handler handles allocation HTTP requests
type Handler struct {
	calculator *allocation.Calculator
	policies   tiers.PolicySet
	log        zerolog.Logger
}

// NewHandler creates a new allocation handler
func NewHandler(
	calculator *allocation.Calculator,
	policies tiers.PolicySet,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		calculator: calculator,
		policies:   policies,
		log:        log.With().Str("handler", "allocation").Logger(),
	}
}

// NormalizeRequest is a set of raw position targets with their tiers
type NormalizeRequest struct {
	Targets map[string]float64     `json:"targets"`
	Tiers   map[string]domain.Tier `json:"tiers"`
}

// NormalizeResponse wraps the normalized plan
type NormalizeResponse struct {
	Plan  allocation.Plan `json:"plan"`
	Total float64         `json:"total"`
}

// PositionRangeResponse is the position range a composite score earns in a tier
type PositionRangeResponse struct {
	Tier   domain.Tier `json:"tier"`
	Score  float64     `json:"score"`
	MinPct float64     `json:"min_pct"`
	MaxPct float64     `json:"max_pct"`
	CapPct float64     `json:"cap_pct"`
}

// TierTargetsResponse lists each tier's allocation band
type TierTargetsResponse struct {
	Tiers          []tiers.Policy `json:"tiers"`
	CashReservePct float64        `json:"cash_reserve_pct"`
	InvestablePct  float64        `json:"investable_pct"`
}

// HandleNormalize handles POST /api/allocation/normalize
func (h *Handler) HandleNormalize(w http.ResponseWriter, r *http.Request) {
	var req NormalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validateNormalize(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	plan := h.calculator.Normalize(req.Targets, req.Tiers)

	h.log.Debug().
		Int("positions", len(req.Targets)).
		Int("passes", plan.Passes).
		Bool("converged", plan.Converged).
		Msg("Normalized raw targets")

	h.writeJSON(w, http.StatusOK, NormalizeResponse{Plan: plan, Total: plan.Total()})
}

func (h *Handler) validateNormalize(req NormalizeRequest) error {
	if len(req.Targets) == 0 {
		return fmt.Errorf("targets must not be empty")
	}
	for ticker, pct := range req.Targets {
		if math.IsNaN(pct) || math.IsInf(pct, 0) || pct < 0 {
			return fmt.Errorf("target for %s must be a non-negative number", ticker)
		}
		tier, ok := req.Tiers[ticker]
		if !ok {
			return fmt.Errorf("no tier given for %s", ticker)
		}
		if _, ok := h.policies.Policy(tier); !ok {
			return fmt.Errorf("unknown tier %q for %s", tier, ticker)
		}
	}
	return nil
}

// HandleGetPositionRange handles GET /api/allocation/position-range?tier=LARGE&score=72
func (h *Handler) HandleGetPositionRange(w http.ResponseWriter, r *http.Request) {
	tier := domain.Tier(strings.ToUpper(r.URL.Query().Get("tier")))
	policy, ok := h.policies.Policy(tier)
	if !ok {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown tier %q", tier))
		return
	}

	score, err := strconv.ParseFloat(r.URL.Query().Get("score"), 64)
	if err != nil || score < 0 || score > 100 {
		h.writeError(w, http.StatusBadRequest, "score must be a number between 0 and 100")
		return
	}

	lo, hi := allocation.PositionRange(policy, score)
	h.writeJSON(w, http.StatusOK, PositionRangeResponse{
		Tier:   tier,
		Score:  score,
		MinPct: lo,
		MaxPct: hi,
		CapPct: policy.PositionCapPct,
	})
}

// HandleGetTierTargets handles GET /api/allocation/tiers
func (h *Handler) HandleGetTierTargets(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, TierTargetsResponse{
		Tiers:          h.policies.Tiers,
		CashReservePct: h.policies.CashReservePct,
		InvestablePct:  h.policies.InvestablePct(),
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

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
