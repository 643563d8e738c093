// Package reports persists analysis run artifacts and sequencing results.
package reports

import (
	"time"

	"github.com/aristath/tierfolio/internal/domain"
	"github.com/aristath/tierfolio/internal/modules/allocation"
	"github.com/aristath/tierfolio/internal/modules/compliance"
	"github.com/aristath/tierfolio/internal/modules/rebalancing"
	"github.com/aristath/tierfolio/internal/modules/sequencing"
	"github.com/aristath/tierfolio/internal/modules/tiers"
)

// Run is the full artifact of one analysis run
type Run struct {
	ID             string                     `json:"id"`
	CreatedAt      time.Time                  `json:"created_at"`
	Source         string                     `json:"source"`
	Snapshot       *domain.Snapshot           `json:"snapshot"`
	Eligibility    map[string]tiers.Record    `json:"eligibility"`
	Plan           allocation.Plan            `json:"plan"`
	Compliance     compliance.Report          `json:"compliance"`
	Trades         []domain.Trade             `json:"trades"`
	Skipped        []rebalancing.SkippedTrade `json:"skipped"`
	PortfolioValue float64                    `json:"portfolio_value"`
}

// Summary returns the listing row for r
func (r *Run) Summary() RunSummary {
	s := RunSummary{
		ID:              r.ID,
		CreatedAt:       r.CreatedAt,
		Source:          r.Source,
		PortfolioValue:  r.PortfolioValue,
		ComplianceScore: r.Compliance.Score,
		Compliant:       r.Compliance.Compliant,
		TradeCount:      len(r.Trades),
	}
	if r.Snapshot != nil {
		s.Currency = r.Snapshot.Currency
	}
	return s
}

// RunSummary is the listing view of a stored run
type RunSummary struct {
	ID              string          `json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	Source          string          `json:"source"`
	Currency        domain.Currency `json:"currency"`
	PortfolioValue  float64         `json:"portfolio_value"`
	ComplianceScore float64         `json:"compliance_score"`
	Compliant       bool            `json:"compliant"`
	TradeCount      int             `json:"trade_count"`
}

// Execution is one sequencing pass over a stored run's trades
type Execution struct {
	ID        string             `json:"id"`
	RunID     string             `json:"run_id"`
	CreatedAt time.Time          `json:"created_at"`
	Summary   sequencing.Summary `json:"summary"`
}
