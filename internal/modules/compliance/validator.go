// Package compliance scores how far the current portfolio deviates from its plan.
package compliance

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/tierfolio/internal/domain"
	"github.com/aristath/tierfolio/internal/modules/allocation"
	"github.com/aristath/tierfolio/internal/modules/tiers"
)

// Penalties subtracted from a perfect score of 100
const (
	PenaltyCritical = 20
	PenaltyWarning  = 5
	PenaltyInfo     = 1
)

// Config holds the deviation bands, in percentage points
type Config struct {
	WideBandPct      float64 `json:"wide_band_pct"`      // tier deviation beyond this is CRITICAL
	TolerancePct     float64 `json:"tolerance_pct"`      // beyond this is WARNING
	InfoBandPct      float64 `json:"info_band_pct"`      // beyond this is INFO
	CashFloor        float64 `json:"cash_floor"`         // absolute cash below this is CRITICAL; 0 disables
	CashFloorPct     float64 `json:"cash_floor_pct"`     // cash below this is CRITICAL
	PositionDriftPct float64 `json:"position_drift_pct"` // single position drift beyond this is INFO
}

// DefaultConfig returns the standard compliance bands
func DefaultConfig() Config {
	return Config{
		WideBandPct:      10,
		TolerancePct:     5,
		InfoBandPct:      1,
		CashFloorPct:     2,
		PositionDriftPct: 2,
	}
}

// Report is the compliance outcome for one snapshot
type Report struct {
	Score        float64                     `json:"score" msgpack:"score"`
	Compliant    bool                        `json:"compliant" msgpack:"compliant"`
	Violations   []domain.Violation          `json:"violations" msgpack:"violations"`
	Tiers        []allocation.TierAllocation `json:"tiers" msgpack:"tiers"`
	CashPct      float64                     `json:"cash_pct" msgpack:"cash_pct"`
	MeanAbsDrift float64                     `json:"mean_abs_drift" msgpack:"mean_abs_drift"`
	Critical     int                         `json:"critical" msgpack:"critical"`
	Warnings     int                         `json:"warnings" msgpack:"warnings"`
	Info         int                         `json:"info" msgpack:"info"`
}

// Validator compares a snapshot with an allocation plan
type Validator struct {
	policies tiers.PolicySet
	cfg      Config
	log      zerolog.Logger
}

// NewValidator creates a new compliance validator
func NewValidator(policies tiers.PolicySet, cfg Config, log zerolog.Logger) *Validator {
	return &Validator{
		policies: policies,
		cfg:      cfg,
		log:      log.With().Str("component", "compliance_validator").Logger(),
	}
}

// Validate evaluates the current snapshot against the plan.
// Compliant is true if and only if there are no CRITICAL violations.
func (v *Validator) Validate(
	snapshot *domain.Snapshot,
	eligibility map[string]tiers.Eligibility,
	plan allocation.Plan,
) Report {
	report := Report{
		Tiers:   allocation.CalculateTierAllocation(snapshot, eligibility, plan, v.policies),
		CashPct: snapshot.CashPct(),
	}

	for _, ta := range report.Tiers {
		if violation, ok := v.classifyTierDeviation(ta); ok {
			report.Violations = append(report.Violations, violation)
		}
	}

	report.Violations = append(report.Violations, v.positionViolations(snapshot, eligibility, plan, &report)...)

	if violation, ok := v.cashFloorViolation(snapshot, report.CashPct); ok {
		report.Violations = append(report.Violations, violation)
	}

	counts := domain.CountBySeverity(report.Violations)
	report.Critical = counts[domain.SeverityCritical]
	report.Warnings = counts[domain.SeverityWarning]
	report.Info = counts[domain.SeverityInfo]
	report.Score = Score(report.Violations)
	report.Compliant = report.Critical == 0

	v.log.Info().
		Float64("score", report.Score).
		Bool("compliant", report.Compliant).
		Int("critical", report.Critical).
		Int("warnings", report.Warnings).
		Int("info", report.Info).
		Msg("Compliance evaluated")

	return report
}

// cashFloorViolation reports at most one cash floor breach. The absolute floor is
// checked before the percentage floor.
func (v *Validator) cashFloorViolation(snapshot *domain.Snapshot, cashPct float64) (domain.Violation, bool) {
	if v.cfg.CashFloor > 0 && snapshot.Cash < v.cfg.CashFloor {
		return domain.Violation{
			Severity: domain.SeverityCritical,
			Code:     domain.ViolationCashFloor,
			Message: fmt.Sprintf("cash %s below floor %s",
				domain.FormatMoney(snapshot.Cash, snapshot.Currency), domain.FormatMoney(v.cfg.CashFloor, snapshot.Currency)),
			Observed: snapshot.Cash,
			Limit:    v.cfg.CashFloor,
		}, true
	}
	if cashPct < v.cfg.CashFloorPct {
		return domain.Violation{
			Severity: domain.SeverityCritical,
			Code:     domain.ViolationCashFloor,
			Message:  fmt.Sprintf("cash %.2f%% below floor %.2f%%", cashPct, v.cfg.CashFloorPct),
			Observed: cashPct,
			Limit:    v.cfg.CashFloorPct,
		}, true
	}
	return domain.Violation{}, false
}

func (v *Validator) classifyTierDeviation(ta allocation.TierAllocation) (domain.Violation, bool) {
	dev := math.Abs(ta.Deviation)

	var severity domain.Severity
	switch {
	case dev > v.cfg.WideBandPct:
		severity = domain.SeverityCritical
	case dev > v.cfg.TolerancePct:
		severity = domain.SeverityWarning
	case dev > v.cfg.InfoBandPct:
		severity = domain.SeverityInfo
	default:
		return domain.Violation{}, false
	}

	direction := "over"
	if ta.Deviation < 0 {
		direction = "under"
	}
	return domain.Violation{
		Severity: severity,
		Code:     domain.ViolationTierDeviation,
		Tier:     ta.Tier,
		Message: fmt.Sprintf("%s at %.2f%% is %.2fpp %s its %.2f%% target",
			ta.Tier, ta.CurrentPct, dev, direction, ta.TargetPct),
		Observed: ta.CurrentPct,
		Limit:    ta.TargetPct,
	}, true
}

// positionViolations checks caps, ineligible holdings and single-position drift.
// Also fills report.MeanAbsDrift.
func (v *Validator) positionViolations(
	snapshot *domain.Snapshot,
	eligibility map[string]tiers.Eligibility,
	plan allocation.Plan,
	report *Report,
) []domain.Violation {
	weights := snapshot.Weights()

	tickers := make(map[string]bool, len(weights)+len(plan.Targets))
	for ticker := range weights {
		tickers[ticker] = true
	}
	for ticker := range plan.Targets {
		tickers[ticker] = true
	}
	sorted := make([]string, 0, len(tickers))
	for ticker := range tickers {
		sorted = append(sorted, ticker)
	}
	sort.Strings(sorted)

	var violations []domain.Violation
	var drifts []float64
	for _, ticker := range sorted {
		current := weights[ticker]
		h := snapshot.Holding(ticker)
		held := h != nil && h.Shares > 0

		if e, ok := eligibility[ticker]; ok {
			if inel, isIneligible := e.(tiers.Ineligible); isIneligible {
				if held {
					violations = append(violations, domain.Violation{
						Severity: domain.SeverityWarning,
						Code:     domain.ViolationIneligibleHolding,
						Ticker:   ticker,
						Message:  fmt.Sprintf("held at %.2f%% but ineligible: %s", current, inel.Reason),
						Observed: current,
						Limit:    0,
					})
				}
				continue
			}
		}

		target, planned := plan.Targets[ticker]
		tier := plan.TickerTiers[ticker]
		if !planned {
			continue
		}
		drifts = append(drifts, math.Abs(current-target))

		if policy, ok := v.policies.Policy(tier); ok && current > policy.PositionCapPct {
			violations = append(violations, domain.Violation{
				Severity: domain.SeverityCritical,
				Code:     domain.ViolationPositionCap,
				Ticker:   ticker,
				Tier:     tier,
				Message:  fmt.Sprintf("position %.2f%% exceeds %s cap %.2f%%", current, tier, policy.PositionCapPct),
				Observed: current,
				Limit:    policy.PositionCapPct,
			})
			continue
		}

		if drift := current - target; math.Abs(drift) > v.cfg.PositionDriftPct {
			violations = append(violations, domain.Violation{
				Severity: domain.SeverityInfo,
				Code:     domain.ViolationPositionDrift,
				Ticker:   ticker,
				Tier:     tier,
				Message:  fmt.Sprintf("position %.2f%% drifts %.2fpp from target %.2f%%", current, drift, target),
				Observed: current,
				Limit:    target,
			})
		}
	}

	if len(drifts) > 0 {
		report.MeanAbsDrift = stat.Mean(drifts, nil)
	}
	return violations
}

// Score returns 100 minus the per-severity penalties, floored at 0
func Score(violations []domain.Violation) float64 {
	score := 100.0
	for _, v := range violations {
		switch v.Severity {
		case domain.SeverityCritical:
			score -= PenaltyCritical
		case domain.SeverityWarning:
			score -= PenaltyWarning
		case domain.SeverityInfo:
			score -= PenaltyInfo
		}
	}
	return math.Max(0, score)
}
