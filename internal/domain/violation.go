package domain

import "fmt"

// Severity classifies a violation
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// Violation codes
const (
	ViolationPositionOutOfRange    = "position_out_of_range"
	ViolationNonConvergence        = "normalization_non_convergence"
	ViolationTierCapacityExhausted = "tier_capacity_exhausted"
	ViolationEmptyTier             = "empty_tier"
	ViolationTierDeviation         = "tier_deviation"
	ViolationPositionCap           = "position_cap_exceeded"
	ViolationCashFloor             = "cash_below_floor"
	ViolationIneligibleHolding     = "ineligible_holding"
	ViolationPositionDrift         = "position_drift"
)

// Violation is a structured, non-fatal rule breach
type Violation struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Ticker   string   `json:"ticker,omitempty"`
	Tier     Tier     `json:"tier,omitempty"`
	Message  string   `json:"message"`
	Observed float64  `json:"observed"`
	Limit    float64  `json:"limit"`
}

func (v Violation) String() string {
	subject := v.Ticker
	if subject == "" {
		subject = string(v.Tier)
	}
	if subject == "" {
		return fmt.Sprintf("[%s] %s: %s", v.Severity, v.Code, v.Message)
	}
	return fmt.Sprintf("[%s] %s %s: %s", v.Severity, v.Code, subject, v.Message)
}

// CountBySeverity tallies violations per severity
func CountBySeverity(violations []Violation) map[Severity]int {
	counts := make(map[Severity]int, 3)
	for _, v := range violations {
		counts[v.Severity]++
	}
	return counts
}
