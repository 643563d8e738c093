// Package allocation derives target portfolio weights from tier policies and scores.
package allocation

import (
	"github.com/rs/zerolog"

	"github.com/aristath/tierfolio/internal/domain"
	"github.com/aristath/tierfolio/internal/modules/tiers"
)

const (
	// DefaultMaxPasses bounds the clip-and-redistribute loop
	DefaultMaxPasses = 10
	// epsilon absorbs floating point noise in percentage comparisons
	epsilon = 1e-9

	qualityWeight  = 0.8
	thematicWeight = 0.4
)

// scoreBands are the lower edges of the four score bands; each band maps to one
// quarter of a tier's position range
var scoreBands = []float64{0, 40, 60, 80}

// Config holds calculator settings
type Config struct {
	MaxPasses int
}

// DefaultConfig returns the default calculator configuration
func DefaultConfig() Config {
	return Config{MaxPasses: DefaultMaxPasses}
}

// Plan is the target allocation for one run. Percentages are of total portfolio value.
type Plan struct {
	Targets        map[string]float64      `json:"targets" msgpack:"targets"`
	TickerTiers    map[string]domain.Tier  `json:"ticker_tiers" msgpack:"ticker_tiers"`
	TierAggregates map[domain.Tier]float64 `json:"tier_aggregates" msgpack:"tier_aggregates"`
	CashReservePct float64                 `json:"cash_reserve_pct" msgpack:"cash_reserve_pct"`
	// UnallocatedPct is tier target that no eligible holding could absorb
	UnallocatedPct float64            `json:"unallocated_pct" msgpack:"unallocated_pct"`
	Violations     []domain.Violation `json:"violations" msgpack:"violations"`
	Passes         int                `json:"passes" msgpack:"passes"`
	Converged      bool               `json:"converged" msgpack:"converged"`
}

// Total returns tier aggregates + cash reserve + unallocated
func (p Plan) Total() float64 {
	total := p.CashReservePct + p.UnallocatedPct
	for _, pct := range p.TierAggregates {
		total += pct
	}
	return total
}

// Calculator converts eligible holdings into an allocation plan.
// It performs no I/O and keeps no state between calls.
type Calculator struct {
	policies tiers.PolicySet
	cfg      Config
	log      zerolog.Logger
}

// NewCalculator creates a new allocation calculator
func NewCalculator(policies tiers.PolicySet, cfg Config, log zerolog.Logger) *Calculator {
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = DefaultMaxPasses
	}
	return &Calculator{
		policies: policies,
		cfg:      cfg,
		log:      log.With().Str("component", "allocation_calculator").Logger(),
	}
}

// Calculate builds the plan for all holdings with an assigned tier.
// Ineligible holdings get no target.
func (c *Calculator) Calculate(holdings []domain.Holding, eligibility map[string]tiers.Eligibility) Plan {
	raw := make(map[string]float64)
	tierOf := make(map[string]domain.Tier)

	for _, h := range holdings {
		e, ok := eligibility[h.Ticker]
		if !ok {
			continue
		}
		tier, assigned := e.AssignedTier()
		if !assigned {
			continue
		}
		policy, ok := c.policies.Policy(tier)
		if !ok {
			continue
		}

		score := CompositeScore(h)
		lo, hi := PositionRange(policy, score)
		raw[h.Ticker] = (lo + hi) / 2
		tierOf[h.Ticker] = tier

		c.log.Debug().
			Str("ticker", h.Ticker).
			Str("tier", string(tier)).
			Float64("score", score).
			Float64("raw_target", raw[h.Ticker]).
			Msg("Raw target assigned")
	}

	return c.Normalize(raw, tierOf)
}

// CompositeScore combines quality and thematic scores into 0-100.
// The classifier only assigns a tier to holdings that carry both scores.
func CompositeScore(h domain.Holding) float64 {
	var quality, thematic float64
	if h.QualityScore != nil {
		quality = *h.QualityScore
	}
	if h.ThematicScore != nil {
		thematic = *h.ThematicScore
	}
	return clamp(qualityWeight*quality+thematicWeight*thematic, 0, 100)
}

// PositionRange maps a composite score to its band of the tier's position range.
// Higher scores get a higher range; the mapping is monotonic.
func PositionRange(policy tiers.Policy, score float64) (float64, float64) {
	band := 0
	for i, edge := range scoreBands {
		if score >= edge {
			band = i
		}
	}
	width := (policy.PositionMaxPct - policy.PositionMinPct) / float64(len(scoreBands))
	lo := policy.PositionMinPct + float64(band)*width
	hi := lo + width
	if lo < 0 {
		lo = 0
	}
	return lo, hi
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
