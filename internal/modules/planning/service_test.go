package planning

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tierfolio/internal/domain"
	"github.com/aristath/tierfolio/internal/events"
	"github.com/aristath/tierfolio/internal/modules/reports"
	"github.com/aristath/tierfolio/internal/modules/sequencing"
	"github.com/aristath/tierfolio/internal/modules/tiers"
	testingpkg "github.com/aristath/tierfolio/internal/testing"
)

type harness struct {
	service  *Service
	repo     *reports.Repository
	archiver *testingpkg.MockArchiver
	received []events.EventType
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, cleanup := testingpkg.NewTestDB(t, "reports")
	t.Cleanup(cleanup)

	h := &harness{
		repo:     reports.NewRepository(db.Conn(), zerolog.Nop()),
		archiver: testingpkg.NewMockArchiver(),
	}

	bus := events.NewBus(zerolog.Nop())
	for _, eventType := range events.AllEventTypes {
		bus.Subscribe(eventType, func(e *events.Event) {
			h.received = append(h.received, e.Type)
		})
	}

	h.service = NewService(
		tiers.DefaultPolicySet(),
		DefaultConfig(),
		h.repo,
		events.NewManager(bus, zerolog.Nop()),
		h.archiver,
		zerolog.Nop(),
	)
	return h
}

// overweightSnapshot holds 4 extra LRG0 shares paid for out of cash
func overweightSnapshot() *domain.Snapshot {
	s := testingpkg.NewBalancedSnapshot()
	s.Holding("LRG0").Shares = 14
	s.Cash = 230
	return s
}

func TestAnalyze_BalancedPortfolio(t *testing.T) {
	service := NewService(tiers.DefaultPolicySet(), DefaultConfig(), nil, nil, nil, zerolog.Nop())
	input := testingpkg.NewBalancedSnapshot()

	run, err := service.Analyze(input)
	require.NoError(t, err)

	assert.NotEmpty(t, run.ID)
	assert.InDelta(t, 100.0, run.Plan.Total(), 1e-6)
	assert.Equal(t, 100.0, run.Compliance.Score)
	assert.True(t, run.Compliance.Compliant)
	assert.Empty(t, run.Trades)
	assert.Len(t, run.Eligibility, 19)

	assert.Equal(t, domain.TierLarge, run.Snapshot.Holding("LRG3").Tier)
	assert.Equal(t, domain.TierSmall, run.Snapshot.Holding("SML0").Tier)
	// the caller's snapshot is untouched
	assert.Equal(t, domain.TierNone, input.Holding("LRG3").Tier)
}

func TestAnalyze_FatalInput(t *testing.T) {
	service := NewService(tiers.DefaultPolicySet(), DefaultConfig(), nil, nil, nil, zerolog.Nop())
	s := testingpkg.NewBalancedSnapshot()
	s.Holdings[0].Shares = -3

	run, err := service.Analyze(s)
	assert.Nil(t, run)
	assert.True(t, errors.Is(err, domain.ErrFatalInput))
}

func TestRun_PersistsEmitsAndArchives(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	run, err := h.service.Run(ctx, overweightSnapshot(), "test")
	require.NoError(t, err)
	assert.Equal(t, "test", run.Source)

	require.Len(t, run.Trades, 1)
	assert.Equal(t, "LRG0", run.Trades[0].Ticker)
	assert.Equal(t, domain.ActionSell, run.Trades[0].Action)
	assert.Equal(t, 4.0, run.Trades[0].Shares)

	stored, err := h.repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Trades, stored.Trades)

	assert.Equal(t, []events.EventType{
		events.RunStarted,
		events.PlanGenerated,
		events.ComplianceEvaluated,
		events.RecommendationsReady,
		events.RunArchived,
	}, h.received)

	data, ok := h.archiver.Object("runs/" + run.ID + ".msgpack")
	require.True(t, ok)
	var archived reports.Run
	require.NoError(t, reports.Decode(data, &archived))
	assert.Equal(t, run.ID, archived.ID)
}

func TestRun_FatalInputStoresNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s := testingpkg.NewBalancedSnapshot()
	s.Cash = -1

	_, err := h.service.Run(ctx, s, "test")
	require.Error(t, err)

	var fatal *domain.FatalInputError
	assert.True(t, errors.As(err, &fatal))

	count, err := h.repo.CountRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, []events.EventType{events.ErrorOccurred}, h.received)
	assert.Empty(t, h.archiver.Keys())
}

func TestRun_ArchiveFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.archiver.SetError(errors.New("bucket unavailable"))

	run, err := h.service.Run(context.Background(), testingpkg.NewBalancedSnapshot(), "test")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Contains(t, h.received, events.ErrorOccurred)
	assert.NotContains(t, h.received, events.RunArchived)
}

func TestSequence_StoredRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	run, err := h.service.Run(ctx, overweightSnapshot(), "test")
	require.NoError(t, err)
	h.received = nil

	exec, err := h.service.Sequence(ctx, run.ID, SequenceRequest{})
	require.NoError(t, err)

	summary := exec.Summary
	assert.Equal(t, 230.0, summary.StartingCash)
	assert.InDelta(t, 500.0, summary.FinalCash, 1e-9)
	assert.Equal(t, 1, summary.Executed)

	assert.Equal(t, []events.EventType{
		events.TradeTransitioned,
		events.TradeTransitioned,
		events.BatchSequenced,
		events.RunArchived,
	}, h.received)

	stored, err := h.repo.ListExecutions(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, exec.ID, stored[0].ID)
}

func TestSequence_Overrides(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	run, err := h.service.Run(ctx, overweightSnapshot(), "test")
	require.NoError(t, err)

	cash := 1000.0
	floor := 50.0
	exec, err := h.service.Sequence(ctx, run.ID, SequenceRequest{Cash: &cash, Policy: "reject", ReserveFloor: &floor})
	require.NoError(t, err)
	assert.Equal(t, sequencing.PolicyReject, exec.Summary.Policy)
	assert.Equal(t, 1000.0, exec.Summary.StartingCash)
	assert.Equal(t, 50.0, exec.Summary.ReserveFloor)

	_, err = h.service.Sequence(ctx, run.ID, SequenceRequest{Policy: "sometimes"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	negative := -1.0
	_, err = h.service.Sequence(ctx, run.ID, SequenceRequest{Cash: &negative})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = h.service.Sequence(ctx, "missing", SequenceRequest{})
	assert.ErrorIs(t, err, reports.ErrNotFound)
}

func TestSequenceRun_WithoutStore(t *testing.T) {
	service := NewService(tiers.DefaultPolicySet(), DefaultConfig(), nil, nil, nil, zerolog.Nop())

	run, err := service.Analyze(overweightSnapshot())
	require.NoError(t, err)

	summary, err := service.SequenceRun(run, SequenceRequest{})
	require.NoError(t, err)
	assert.Equal(t, 230.0, summary.StartingCash)
	assert.InDelta(t, 500.0, summary.FinalCash, 1e-9)
	assert.Equal(t, 1, summary.Executed)

	negative := -5.0
	_, err = service.SequenceRun(run, SequenceRequest{ReserveFloor: &negative})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSimulate_AppliesFills(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	run, err := h.service.Run(ctx, overweightSnapshot(), "test")
	require.NoError(t, err)

	exec, err := h.service.Sequence(ctx, run.ID, SequenceRequest{})
	require.NoError(t, err)

	projection, err := h.service.Simulate(run, exec.Summary)
	require.NoError(t, err)

	assert.Equal(t, 10.0, projection.Snapshot.Holding("LRG0").Shares)
	assert.InDelta(t, exec.Summary.FinalCash, projection.Snapshot.Cash, 1e-9)
	assert.InDelta(t, 6.75, projection.Weights["LRG0"], 1e-9)
	assert.Equal(t, 100.0, projection.Compliance.Score)

	// the stored run is untouched
	assert.Equal(t, 14.0, run.Snapshot.Holding("LRG0").Shares)
}

func TestSimulate_RequiresSnapshot(t *testing.T) {
	service := NewService(tiers.DefaultPolicySet(), DefaultConfig(), nil, nil, nil, zerolog.Nop())
	_, err := service.Simulate(&reports.Run{}, sequencing.Summary{})
	assert.Error(t, err)
}
