package tiers

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/aristath/tierfolio/internal/domain"
)

// Classifier assigns holdings to tiers.
// It is pure: no I/O and no state beyond its policy set.
type Classifier struct {
	policies PolicySet
	log      zerolog.Logger
}

// NewClassifier creates a new tier classifier
func NewClassifier(policies PolicySet, log zerolog.Logger) *Classifier {
	return &Classifier{
		policies: policies,
		log:      log.With().Str("component", "tier_classifier").Logger(),
	}
}

// Classify determines the eligibility of a single holding.
//
// Market cap selects the candidate tier. The trailing profitability streak must
// cover the candidate's persistence window; if it does not, the next tier down is
// tried once. The lowest tier additionally runs the strict quality filters.
func (c *Classifier) Classify(h domain.Holding) Eligibility {
	candidate, ok := c.policies.CandidateTier(h.MarketCap)
	if !ok {
		floor := 0.0
		if n := len(c.policies.Tiers); n > 0 {
			floor = c.policies.Tiers[n-1].MinMarketCap
		}
		return c.ineligible(h, ReasonBelowTierFloor,
			fmt.Sprintf("market cap %s below floor %s", formatCap(h.MarketCap), formatCap(floor)))
	}

	if h.QualityScore == nil {
		return c.ineligible(h, ReasonMissingData, "quality score not supplied")
	}
	if h.ThematicScore == nil {
		return c.ineligible(h, ReasonMissingData, "thematic score not supplied")
	}

	if minWindow := c.policies.MinWindow(); len(h.Profitability) < minWindow {
		return c.ineligible(h, ReasonInsufficientHistory,
			fmt.Sprintf("%d periods of history, at least %d required", len(h.Profitability), minWindow))
	}

	streak := TrailingStreak(h.Profitability, c.policies.ProfitabilityThreshold)

	var result Eligibility
	assigned := candidate
	if streak >= candidate.PersistenceWindow {
		result = Eligible{Tier: candidate.Tier}
	} else {
		lower, hasLower := c.policies.Lower(candidate.Tier)
		if !hasLower || streak < lower.PersistenceWindow {
			return c.ineligible(h, ReasonInsufficientHistory,
				fmt.Sprintf("profitable streak of %d periods below the %d required for %s",
					streak, candidate.PersistenceWindow, candidate.Tier))
		}
		assigned = lower
		result = Downgraded{From: candidate.Tier, To: lower.Tier}
	}

	if c.policies.IsLowest(assigned.Tier) && assigned.StrictFilters != nil {
		if failure := CheckStrictFilters(h.Fundamentals, *assigned.StrictFilters); failure != "" {
			return c.ineligible(h, ReasonFailedStrictFilter, failure)
		}
	}

	c.log.Debug().
		Str("ticker", h.Ticker).
		Str("kind", string(result.Kind())).
		Str("tier", string(assigned.Tier)).
		Int("streak", streak).
		Msg("Holding classified")

	return result
}

// ClassifyAll classifies every holding, keyed by ticker
func (c *Classifier) ClassifyAll(holdings []domain.Holding) map[string]Eligibility {
	results := make(map[string]Eligibility, len(holdings))
	counts := make(map[Kind]int, 3)
	for _, h := range holdings {
		e := c.Classify(h)
		results[h.Ticker] = e
		counts[e.Kind()]++
	}

	c.log.Info().
		Int("eligible", counts[KindEligible]).
		Int("downgraded", counts[KindDowngraded]).
		Int("ineligible", counts[KindIneligible]).
		Msg("Tier classification complete")

	return results
}

func (c *Classifier) ineligible(h domain.Holding, reason, detail string) Eligibility {
	c.log.Debug().
		Str("ticker", h.Ticker).
		Str("reason", reason).
		Str("detail", detail).
		Msg("Holding ineligible")
	return Ineligible{Reason: reason, Detail: detail}
}

// TrailingStreak counts consecutive periods above threshold, newest first
func TrailingStreak(series []float64, threshold float64) int {
	streak := 0
	for i := len(series) - 1; i >= 0; i-- {
		if series[i] <= threshold {
			break
		}
		streak++
	}
	return streak
}

// CheckStrictFilters returns a description of the first failing filter, or "" if all pass.
// A missing value fails its filter.
func CheckStrictFilters(f domain.Fundamentals, filters StrictFilters) string {
	switch {
	case f.FreeCashFlow == nil:
		return "free cash flow not supplied"
	case *f.FreeCashFlow <= 0:
		return fmt.Sprintf("free cash flow %s is not positive", humanize.Commaf(*f.FreeCashFlow))
	case f.DebtToEquity == nil:
		return "debt-to-equity not supplied"
	case *f.DebtToEquity >= filters.MaxDebtToEquity:
		return fmt.Sprintf("debt-to-equity %.2f not below %.2f", *f.DebtToEquity, filters.MaxDebtToEquity)
	case f.OperatingMargin == nil:
		return "operating margin not supplied"
	case *f.OperatingMargin <= filters.MinOperatingMargin:
		return fmt.Sprintf("operating margin %.1f%% not above %.1f%%", *f.OperatingMargin*100, filters.MinOperatingMargin*100)
	}
	return ""
}

// Group returns tier -> sorted tickers for every holding with an assigned tier
func Group(eligibility map[string]Eligibility) map[domain.Tier][]string {
	groups := make(map[domain.Tier][]string)
	for ticker, e := range eligibility {
		if tier, ok := e.AssignedTier(); ok {
			groups[tier] = append(groups[tier], ticker)
		}
	}
	for tier := range groups {
		sort.Strings(groups[tier])
	}
	return groups
}

func formatCap(v float64) string {
	value, prefix := humanize.ComputeSI(v)
	return fmt.Sprintf("%.1f%s", value, prefix)
}
