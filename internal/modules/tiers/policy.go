// Package tiers assigns holdings to market-cap tiers and checks tier eligibility.
package tiers

import (
	"fmt"
	"math"

	"github.com/aristath/tierfolio/internal/domain"
)

// sumTolerance is the allowed drift of tier targets + cash reserve from 100%
const sumTolerance = 1e-6

// StrictFilters are the quality thresholds applied to the lowest tier.
// Free cash flow must always be positive.
type StrictFilters struct {
	MaxDebtToEquity    float64 `json:"max_debt_to_equity" yaml:"max_debt_to_equity"`
	MinOperatingMargin float64 `json:"min_operating_margin" yaml:"min_operating_margin"`
}

// Policy holds allocation rules for one tier. All percentages are of total portfolio value.
type Policy struct {
	Tier         domain.Tier `json:"tier" yaml:"tier"`
	MinMarketCap float64     `json:"min_market_cap" yaml:"min_market_cap"`

	TargetPct float64 `json:"target_pct" yaml:"target_pct"`
	MinPct    float64 `json:"min_pct" yaml:"min_pct"`
	MaxPct    float64 `json:"max_pct" yaml:"max_pct"`

	PositionMinPct float64 `json:"position_min_pct" yaml:"position_min_pct"`
	PositionMaxPct float64 `json:"position_max_pct" yaml:"position_max_pct"`
	PositionCapPct float64 `json:"position_cap_pct" yaml:"position_cap_pct"`

	// PersistenceWindow is the number of consecutive profitable periods required
	PersistenceWindow int `json:"persistence_window" yaml:"persistence_window"`

	StrictFilters *StrictFilters `json:"strict_filters,omitempty" yaml:"strict_filters,omitempty"`
}

// PolicySet is the full tier configuration, ordered largest market cap first
type PolicySet struct {
	Tiers                  []Policy `json:"tiers" yaml:"tiers"`
	ProfitabilityThreshold float64  `json:"profitability_threshold" yaml:"profitability_threshold"`
	CashReservePct         float64  `json:"cash_reserve_pct" yaml:"cash_reserve_pct"`
}

// DefaultPolicySet returns the standard LARGE/MID/SMALL configuration
func DefaultPolicySet() PolicySet {
	return PolicySet{
		Tiers: []Policy{
			{
				Tier:              domain.TierLarge,
				MinMarketCap:      10e9,
				TargetPct:         67.5,
				MinPct:            60,
				MaxPct:            75,
				PositionMinPct:    2,
				PositionMaxPct:    10,
				PositionCapPct:    12,
				PersistenceWindow: 8,
			},
			{
				Tier:              domain.TierMid,
				MinMarketCap:      2e9,
				TargetPct:         20,
				MinPct:            15,
				MaxPct:            25,
				PositionMinPct:    1,
				PositionMaxPct:    5,
				PositionCapPct:    6,
				PersistenceWindow: 5,
			},
			{
				Tier:              domain.TierSmall,
				MinMarketCap:      300e6,
				TargetPct:         7.5,
				MinPct:            5,
				MaxPct:            10,
				PositionMinPct:    0.5,
				PositionMaxPct:    2.5,
				PositionCapPct:    3,
				PersistenceWindow: 3,
				StrictFilters: &StrictFilters{
					MaxDebtToEquity:    1.0,
					MinOperatingMargin: 0.05,
				},
			},
		},
		ProfitabilityThreshold: 0.05,
		CashReservePct:         5,
	}
}

// Policy returns the policy for tier t
func (ps PolicySet) Policy(t domain.Tier) (Policy, bool) {
	for _, p := range ps.Tiers {
		if p.Tier == t {
			return p, true
		}
	}
	return Policy{}, false
}

// Lower returns the policy of the tier below t, if any
func (ps PolicySet) Lower(t domain.Tier) (Policy, bool) {
	for i, p := range ps.Tiers {
		if p.Tier == t && i+1 < len(ps.Tiers) {
			return ps.Tiers[i+1], true
		}
	}
	return Policy{}, false
}

// IsLowest reports whether t is the smallest-cap tier of the set
func (ps PolicySet) IsLowest(t domain.Tier) bool {
	return len(ps.Tiers) > 0 && ps.Tiers[len(ps.Tiers)-1].Tier == t
}

// CandidateTier selects a tier from market cap alone.
// Returns false when the market cap is below the smallest tier's floor.
func (ps PolicySet) CandidateTier(marketCap float64) (Policy, bool) {
	for _, p := range ps.Tiers {
		if marketCap >= p.MinMarketCap {
			return p, true
		}
	}
	return Policy{}, false
}

// MinWindow returns the shortest persistence window across tiers
func (ps PolicySet) MinWindow() int {
	minWindow := 0
	for i, p := range ps.Tiers {
		if i == 0 || p.PersistenceWindow < minWindow {
			minWindow = p.PersistenceWindow
		}
	}
	return minWindow
}

// InvestablePct returns the share of the portfolio available to tiers
func (ps PolicySet) InvestablePct() float64 {
	return 100 - ps.CashReservePct
}

// Validate checks the policy set for internal consistency
func (ps PolicySet) Validate() error {
	if len(ps.Tiers) == 0 {
		return fmt.Errorf("policy set has no tiers")
	}
	if ps.CashReservePct < 0 || ps.CashReservePct >= 100 {
		return fmt.Errorf("cash reserve %.2f%% must be in [0, 100)", ps.CashReservePct)
	}

	seen := make(map[domain.Tier]bool, len(ps.Tiers))
	total := ps.CashReservePct
	for i, p := range ps.Tiers {
		if p.Tier == domain.TierNone {
			return fmt.Errorf("tier %d has no identifier", i)
		}
		if seen[p.Tier] {
			return fmt.Errorf("duplicate tier %s", p.Tier)
		}
		seen[p.Tier] = true

		if i > 0 && p.MinMarketCap >= ps.Tiers[i-1].MinMarketCap {
			return fmt.Errorf("tier %s market cap floor must be below %s", p.Tier, ps.Tiers[i-1].Tier)
		}
		if p.TargetPct < p.MinPct || p.TargetPct > p.MaxPct {
			return fmt.Errorf("tier %s target %.2f%% outside range %.2f-%.2f%%", p.Tier, p.TargetPct, p.MinPct, p.MaxPct)
		}
		if p.PositionMinPct < 0 || p.PositionMinPct > p.PositionMaxPct || p.PositionMaxPct > p.PositionCapPct {
			return fmt.Errorf("tier %s position sizes must satisfy 0 <= min (%.2f) <= max (%.2f) <= cap (%.2f)",
				p.Tier, p.PositionMinPct, p.PositionMaxPct, p.PositionCapPct)
		}
		if p.PersistenceWindow < 1 {
			return fmt.Errorf("tier %s persistence window must be at least 1", p.Tier)
		}
		total += p.TargetPct
	}

	if math.Abs(total-100) > sumTolerance {
		return fmt.Errorf("tier targets plus cash reserve sum to %.6f%%, expected 100%%", total)
	}
	if ps.Tiers[len(ps.Tiers)-1].StrictFilters == nil {
		return fmt.Errorf("lowest tier %s requires strict filters", ps.Tiers[len(ps.Tiers)-1].Tier)
	}
	return nil
}
