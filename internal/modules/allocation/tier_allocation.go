package allocation

import (
	"math"

	"github.com/aristath/tierfolio/internal/domain"
	"github.com/aristath/tierfolio/internal/modules/tiers"
)

// TierAllocation compares current and target allocation for a single tier
type TierAllocation struct {
	Tier         domain.Tier `json:"tier" msgpack:"tier"`
	TargetPct    float64     `json:"target_pct" msgpack:"target_pct"`
	CurrentPct   float64     `json:"current_pct" msgpack:"current_pct"`
	CurrentValue float64     `json:"current_value" msgpack:"current_value"`
	Deviation    float64     `json:"deviation" msgpack:"deviation"`
	Positions    int         `json:"positions" msgpack:"positions"`
}

// CalculateTierAllocation aggregates current holdings by assigned tier and compares
// them with the plan's tier aggregates. Holdings without a tier are left out.
// Results follow the policy set's tier order.
func CalculateTierAllocation(
	snapshot *domain.Snapshot,
	eligibility map[string]tiers.Eligibility,
	plan Plan,
	policies tiers.PolicySet,
) []TierAllocation {
	tierValues := aggregateByTier(snapshot, eligibility)
	totalValue := snapshot.TotalValue()

	allocations := make([]TierAllocation, 0, len(policies.Tiers))
	for _, policy := range policies.Tiers {
		agg := tierValues[policy.Tier]

		var currentPct float64
		if totalValue > 0 {
			currentPct = agg.value / totalValue * 100
		}
		targetPct := plan.TierAggregates[policy.Tier]

		allocations = append(allocations, TierAllocation{
			Tier:         policy.Tier,
			TargetPct:    round(targetPct, 4),
			CurrentPct:   round(currentPct, 4),
			CurrentValue: round(agg.value, 2),
			Deviation:    round(currentPct-targetPct, 4),
			Positions:    agg.positions,
		})
	}

	return allocations
}

type tierAggregate struct {
	value     float64
	positions int
}

// aggregateByTier sums current market value per assigned tier
func aggregateByTier(snapshot *domain.Snapshot, eligibility map[string]tiers.Eligibility) map[domain.Tier]tierAggregate {
	result := make(map[domain.Tier]tierAggregate)
	for _, h := range snapshot.Holdings {
		e, ok := eligibility[h.Ticker]
		if !ok {
			continue
		}
		tier, assigned := e.AssignedTier()
		if !assigned {
			continue
		}
		agg := result[tier]
		agg.value += h.MarketValue()
		if h.Shares > 0 {
			agg.positions++
		}
		result[tier] = agg
	}
	return result
}

// round rounds a float64 to n decimal places
func round(val float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(val*multiplier) / multiplier
}
