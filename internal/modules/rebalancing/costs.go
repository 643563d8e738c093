// Package rebalancing converts allocation deltas into whole-share trade recommendations.
package rebalancing

import "github.com/aristath/tierfolio/internal/domain"

// DefaultMaxCostRatio is the largest acceptable commission-to-trade-value ratio (1%)
const DefaultMaxCostRatio = 0.01

// CalculateMinTradeAmount calculates minimum trade amount where transaction costs are acceptable
//
// With a €2 + 0.2% fee structure:
// - €50 trade: €2.10 cost = 4.2% drag → not worthwhile
// - €200 trade: €2.40 cost = 1.2% drag → marginal
// - €400 trade: €2.80 cost = 0.7% drag → acceptable
func CalculateMinTradeAmount(
	transactionCostFixed float64,
	transactionCostPercent float64,
	maxCostRatio float64,
) float64 {
	// Solve for trade amount where: (fixed + trade * percent) / trade = max_ratio
	// trade = fixed / (max_ratio - percent)
	denominator := maxCostRatio - transactionCostPercent
	if denominator <= 0 {
		// If variable cost exceeds max ratio, return a high minimum
		return 1000.0
	}
	return transactionCostFixed / denominator
}

// MinTradeAmountFor derives the minimum trade value from a commission schedule
func MinTradeAmountFor(cost domain.TransactionCost) float64 {
	return CalculateMinTradeAmount(cost.Fixed, cost.Percent, DefaultMaxCostRatio)
}
