package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tierfolio/internal/domain"
	"github.com/aristath/tierfolio/internal/modules/allocation"
	"github.com/aristath/tierfolio/internal/modules/compliance"
	"github.com/aristath/tierfolio/internal/modules/rebalancing"
	"github.com/aristath/tierfolio/internal/modules/sequencing"
	"github.com/aristath/tierfolio/internal/modules/tiers"
	testingpkg "github.com/aristath/tierfolio/internal/testing"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "reports")
	t.Cleanup(cleanup)
	return NewRepository(db.Conn(), zerolog.Nop())
}

func sampleRun() *Run {
	snapshot := testingpkg.NewBalancedSnapshot()
	return &Run{
		Source:   "api",
		Snapshot: snapshot,
		Eligibility: map[string]tiers.Record{
			"LRG0": {Kind: tiers.KindEligible, Tier: domain.TierLarge},
			"BURN": {Kind: tiers.KindIneligible, Reason: tiers.ReasonFailedStrictFilter, Detail: "free cash flow -1 is not positive"},
		},
		Plan: allocation.Plan{
			Targets:        map[string]float64{"LRG0": 6.75},
			TickerTiers:    map[string]domain.Tier{"LRG0": domain.TierLarge},
			TierAggregates: map[domain.Tier]float64{domain.TierLarge: 67.5, domain.TierMid: 20, domain.TierSmall: 7.5},
			CashReservePct: 5,
			Violations: []domain.Violation{
				{Severity: domain.SeverityWarning, Code: domain.ViolationEmptyTier, Tier: domain.TierSmall, Message: "no eligible holdings"},
			},
			Passes:    1,
			Converged: true,
		},
		Compliance: compliance.Report{Score: 80, Compliant: false, Critical: 1},
		Trades: []domain.Trade{
			{ID: "t1", Ticker: "BURN", Action: domain.ActionSell, Shares: 5, Price: 10, Priority: domain.PriorityHigh, Status: domain.StatusPending},
		},
		Skipped: []rebalancing.SkippedTrade{
			{Trade: domain.Trade{Ticker: "LRG1", Action: domain.ActionBuy, Shares: 1}, Reason: "below minimum"},
		},
		PortfolioValue: snapshot.TotalValue(),
	}
}

func TestRepository_SaveAndGetRun(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	run := sampleRun()
	require.NoError(t, repo.SaveRun(ctx, run))
	require.NotEmpty(t, run.ID)
	require.False(t, run.CreatedAt.IsZero())

	loaded, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)

	assert.Equal(t, run.ID, loaded.ID)
	assert.True(t, run.CreatedAt.Equal(loaded.CreatedAt))
	assert.Equal(t, "api", loaded.Source)
	require.NotNil(t, loaded.Snapshot)
	assert.Len(t, loaded.Snapshot.Holdings, len(run.Snapshot.Holdings))
	assert.InDelta(t, run.Snapshot.TotalValue(), loaded.Snapshot.TotalValue(), 1e-9)
	assert.Equal(t, 60.0, *loaded.Snapshot.Holdings[0].QualityScore)

	assert.Equal(t, run.Eligibility, loaded.Eligibility)
	assert.Equal(t, run.Plan, loaded.Plan)
	assert.Equal(t, run.Compliance.Score, loaded.Compliance.Score)
	assert.Equal(t, run.Trades, loaded.Trades)
	assert.Equal(t, run.Skipped, loaded.Skipped)
}

func TestRepository_GetRunNotFound(t *testing.T) {
	repo := newRepo(t)

	_, err := repo.GetRun(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRepository_ListRuns(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := sampleRun()
		run.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		run.Source = []string{"api", "scheduler", "cli"}[i]
		require.NoError(t, repo.SaveRun(ctx, run))
	}

	summaries, err := repo.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "cli", summaries[0].Source)
	assert.Equal(t, "scheduler", summaries[1].Source)
	assert.Equal(t, domain.CurrencyEUR, summaries[0].Currency)
	assert.Equal(t, 1, summaries[0].TradeCount)
	assert.False(t, summaries[0].Compliant)
	assert.Equal(t, 80.0, summaries[0].ComplianceScore)

	count, err := repo.CountRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRepository_Executions(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	run := sampleRun()
	require.NoError(t, repo.SaveRun(ctx, run))

	exec := &Execution{
		RunID: run.ID,
		Summary: sequencing.Summary{
			Outcomes: []sequencing.Outcome{
				{Trade: run.Trades[0], Status: domain.StatusExecuted, RequestedShares: 5, FilledShares: 5, CashAfter: 550},
			},
			StartingCash: 500,
			FinalCash:    550,
			Policy:       sequencing.PolicyAutomatic,
			Executed:     1,
		},
	}
	require.NoError(t, repo.SaveExecution(ctx, exec))
	assert.NotEmpty(t, exec.ID)

	executions, err := repo.ListExecutions(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, exec.Summary, executions[0].Summary)

	err = repo.SaveExecution(ctx, &Execution{RunID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_DeleteOlderThan(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	old := sampleRun()
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, repo.SaveRun(ctx, old))
	require.NoError(t, repo.SaveExecution(ctx, &Execution{RunID: old.ID}))

	fresh := sampleRun()
	require.NoError(t, repo.SaveRun(ctx, fresh))

	deleted, err := repo.DeleteOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = repo.GetRun(ctx, old.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	executions, err := repo.ListExecutions(ctx, old.ID)
	require.NoError(t, err)
	assert.Empty(t, executions)

	_, err = repo.GetRun(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestCodec(t *testing.T) {
	in := tiers.Record{Kind: tiers.KindDowngraded, Tier: domain.TierMid, From: domain.TierLarge}
	data, err := Encode(in)
	require.NoError(t, err)

	var out tiers.Record
	require.NoError(t, Decode(data, &out))
	assert.Equal(t, in, out)

	assert.Error(t, Decode([]byte{0xc1}, &out))
}
