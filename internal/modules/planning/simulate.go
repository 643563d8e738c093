package planning

import (
	"fmt"

	"github.com/aristath/tierfolio/internal/domain"
	"github.com/aristath/tierfolio/internal/modules/allocation"
	"github.com/aristath/tierfolio/internal/modules/compliance"
	"github.com/aristath/tierfolio/internal/modules/reports"
	"github.com/aristath/tierfolio/internal/modules/sequencing"
	"github.com/aristath/tierfolio/internal/modules/tiers"
)

// Projection is the portfolio expected after a sequenced batch fills
type Projection struct {
	Snapshot   *domain.Snapshot            `json:"snapshot"`
	Weights    map[string]float64          `json:"weights"`
	Tiers      []allocation.TierAllocation `json:"tiers"`
	Compliance compliance.Report           `json:"compliance"`
}

// Simulate applies every filled outcome of summary to a copy of the run's
// snapshot and evaluates the result against the run's plan. Eligibility is
// taken from the run; no reclassification happens.
func (s *Service) Simulate(run *reports.Run, summary sequencing.Summary) (*Projection, error) {
	if run == nil || run.Snapshot == nil {
		return nil, fmt.Errorf("run has no snapshot")
	}

	projected := run.Snapshot.Clone()
	projected.Cash = summary.StartingCash

	for _, o := range summary.Outcomes {
		if o.FilledShares <= 0 {
			continue
		}
		if o.Status != domain.StatusExecuted && o.Status != domain.StatusPartiallyFilled {
			continue
		}
		if err := projected.ApplyFill(o.Trade.Ticker, o.Trade.Action, o.FilledShares, o.Trade.Price, o.Fees); err != nil {
			return nil, fmt.Errorf("failed to apply %s %s: %w", o.Trade.Action, o.Trade.Ticker, err)
		}
	}

	eligibility := make(map[string]tiers.Eligibility, len(run.Eligibility))
	for ticker, rec := range run.Eligibility {
		eligibility[ticker] = rec.Eligibility()
	}
	for i := range projected.Holdings {
		h := &projected.Holdings[i]
		if e, ok := eligibility[h.Ticker]; ok {
			if tier, assigned := e.AssignedTier(); assigned {
				h.Tier = tier
			}
		}
	}

	report := s.validator.Validate(projected, eligibility, run.Plan)

	s.log.Debug().
		Str("run_id", run.ID).
		Float64("projected_cash", projected.Cash).
		Float64("projected_score", report.Score).
		Msg("Simulated post-execution portfolio")

	return &Projection{
		Snapshot:   projected,
		Weights:    projected.Weights(),
		Tiers:      report.Tiers,
		Compliance: report,
	}, nil
}
