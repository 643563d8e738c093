package allocation

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/tierfolio/internal/domain"
)

// clipResult describes one tier's clip-and-redistribute run
type clipResult struct {
	passes     int
	converged  bool
	unabsorbed float64
}

// Normalize scales raw targets so each tier's aggregate matches its policy target,
// then enforces per-position caps with a bounded clip-and-redistribute loop.
//
// Feeding a plan's Targets back in as raw reproduces the same plan.
func (c *Calculator) Normalize(raw map[string]float64, tierOf map[string]domain.Tier) Plan {
	plan := Plan{
		Targets:        make(map[string]float64, len(raw)),
		TickerTiers:    make(map[string]domain.Tier, len(raw)),
		TierAggregates: make(map[domain.Tier]float64, len(c.policies.Tiers)),
		CashReservePct: c.policies.CashReservePct,
		Converged:      true,
	}

	groups := make(map[domain.Tier][]string)
	for ticker := range raw {
		if tier, ok := tierOf[ticker]; ok {
			groups[tier] = append(groups[tier], ticker)
		}
	}

	for _, policy := range c.policies.Tiers {
		tickers := groups[policy.Tier]
		sort.Strings(tickers)

		if len(tickers) == 0 {
			plan.TierAggregates[policy.Tier] = 0
			plan.UnallocatedPct += policy.TargetPct
			plan.Violations = append(plan.Violations, domain.Violation{
				Severity: domain.SeverityWarning,
				Code:     domain.ViolationEmptyTier,
				Tier:     policy.Tier,
				Message:  fmt.Sprintf("no eligible holdings; %.2f%% target left unallocated", policy.TargetPct),
				Observed: 0,
				Limit:    policy.TargetPct,
			})
			c.log.Warn().Str("tier", string(policy.Tier)).Msg("Tier has no eligible holdings")
			continue
		}

		values := make([]float64, len(tickers))
		for i, ticker := range tickers {
			values[i] = math.Max(0, raw[ticker])
		}
		scaleToTarget(values, policy.TargetPct)

		res := clipAndRedistribute(values, policy.PositionCapPct, c.cfg.MaxPasses)
		if res.passes > plan.Passes {
			plan.Passes = res.passes
		}

		for i, ticker := range tickers {
			plan.Targets[ticker] = values[i]
			plan.TickerTiers[ticker] = policy.Tier
		}
		plan.TierAggregates[policy.Tier] = floats.Sum(values)

		if res.unabsorbed > epsilon {
			plan.UnallocatedPct += res.unabsorbed
			plan.Violations = append(plan.Violations, domain.Violation{
				Severity: domain.SeverityCritical,
				Code:     domain.ViolationTierCapacityExhausted,
				Tier:     policy.Tier,
				Message: fmt.Sprintf("%.2f%% of the %.2f%% target exceeds what %d holding(s) can absorb at the %.2f%% cap",
					res.unabsorbed, policy.TargetPct, len(tickers), policy.PositionCapPct),
				Observed: res.unabsorbed,
				Limit:    policy.TargetPct,
			})
		}

		if !res.converged {
			plan.Converged = false
			plan.Violations = append(plan.Violations, domain.Violation{
				Severity: domain.SeverityCritical,
				Code:     domain.ViolationNonConvergence,
				Tier:     policy.Tier,
				Message:  fmt.Sprintf("positions still above the %.2f%% cap after %d passes", policy.PositionCapPct, res.passes),
				Observed: floats.Max(values),
				Limit:    policy.PositionCapPct,
			})
			c.log.Error().
				Str("tier", string(policy.Tier)).
				Int("passes", res.passes).
				Msg("Normalization did not converge")
		}

		for i, ticker := range tickers {
			v := values[i]
			switch {
			case v < policy.PositionMinPct-epsilon:
				plan.Violations = append(plan.Violations, rangeViolation(ticker, policy.Tier, v, policy.PositionMinPct, "below"))
			case v > policy.PositionMaxPct+epsilon:
				plan.Violations = append(plan.Violations, rangeViolation(ticker, policy.Tier, v, policy.PositionMaxPct, "above"))
			}
		}
	}

	c.log.Info().
		Int("positions", len(plan.Targets)).
		Float64("unallocated_pct", plan.UnallocatedPct).
		Int("passes", plan.Passes).
		Bool("converged", plan.Converged).
		Int("violations", len(plan.Violations)).
		Msg("Allocation plan normalized")

	return plan
}

func rangeViolation(ticker string, tier domain.Tier, value, bound float64, side string) domain.Violation {
	return domain.Violation{
		Severity: domain.SeverityCritical,
		Code:     domain.ViolationPositionOutOfRange,
		Ticker:   ticker,
		Tier:     tier,
		Message:  fmt.Sprintf("target %.2f%% %s %s position range bound %.2f%%", value, side, tier, bound),
		Observed: value,
		Limit:    bound,
	}
}

// scaleToTarget scales values in place so they sum to target.
// All-zero input is spread evenly.
func scaleToTarget(values []float64, target float64) {
	sum := floats.Sum(values)
	if sum <= epsilon {
		for i := range values {
			values[i] = 1
		}
		sum = float64(len(values))
	}
	floats.Scale(target/sum, values)
}

// clipAndRedistribute clips values above limit and hands the excess to values
// still below it, proportionally to their size. Runs at most maxPasses passes.
func clipAndRedistribute(values []float64, limit float64, maxPasses int) clipResult {
	var res clipResult
	for {
		excess := 0.0
		for _, v := range values {
			if v > limit+epsilon {
				excess += v - limit
			}
		}
		if excess == 0 {
			res.converged = true
			return res
		}
		if res.passes >= maxPasses {
			return res
		}
		res.passes++

		var recipients []int
		for i, v := range values {
			if v > limit+epsilon {
				values[i] = limit
			} else if v < limit-epsilon {
				recipients = append(recipients, i)
			}
		}
		if len(recipients) == 0 {
			res.unabsorbed += excess
			res.converged = true
			return res
		}

		weights := make([]float64, len(recipients))
		for j, i := range recipients {
			weights[j] = values[i]
		}
		weightSum := floats.Sum(weights)
		for j, i := range recipients {
			share := 1 / float64(len(recipients))
			if weightSum > epsilon {
				share = weights[j] / weightSum
			}
			values[i] += excess * share
		}
	}
}
