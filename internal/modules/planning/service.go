// Package planning orchestrates analysis runs: classification, allocation,
// compliance, trade generation and sequencing, plus their persistence.
package planning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/tierfolio/internal/domain"
	"github.com/aristath/tierfolio/internal/events"
	"github.com/aristath/tierfolio/internal/modules/allocation"
	"github.com/aristath/tierfolio/internal/modules/compliance"
	"github.com/aristath/tierfolio/internal/modules/rebalancing"
	"github.com/aristath/tierfolio/internal/modules/reports"
	"github.com/aristath/tierfolio/internal/modules/sequencing"
	"github.com/aristath/tierfolio/internal/modules/tiers"
)

const moduleName = "planning"

// ErrInvalidRequest wraps sequencing overrides that cannot be applied
var ErrInvalidRequest = errors.New("invalid sequence request")

// Config bundles the settings of every engine component
type Config struct {
	Allocation  allocation.Config  `json:"allocation"`
	Compliance  compliance.Config  `json:"compliance"`
	Rebalancing rebalancing.Config `json:"rebalancing"`
	Sequencing  sequencing.Config  `json:"sequencing"`
}

// DefaultConfig returns the default settings of every component
func DefaultConfig() Config {
	return Config{
		Allocation:  allocation.DefaultConfig(),
		Compliance:  compliance.DefaultConfig(),
		Rebalancing: rebalancing.DefaultConfig(),
		Sequencing:  sequencing.DefaultConfig(),
	}
}

// RunStore persists run artifacts
type RunStore interface {
	SaveRun(ctx context.Context, run *reports.Run) error
	GetRun(ctx context.Context, id string) (*reports.Run, error)
	SaveExecution(ctx context.Context, exec *reports.Execution) error
}

// EventEmitter publishes run lifecycle events
type EventEmitter interface {
	EmitTyped(eventType events.EventType, module string, data events.EventData)
	EmitError(module string, err error, context map[string]interface{})
}

// Service runs the analysis pipeline. It is safe for concurrent use: every
// call works on its own clone of the snapshot.
type Service struct {
	policies   tiers.PolicySet
	cfg        Config
	classifier *tiers.Classifier
	calculator *allocation.Calculator
	validator  *compliance.Validator
	generator  *rebalancing.Generator
	store      RunStore
	emitter    EventEmitter
	archiver   domain.ArtifactArchiver
	log        zerolog.Logger
}

// NewService creates a planning service. store, emitter and archiver may be nil.
func NewService(
	policies tiers.PolicySet,
	cfg Config,
	store RunStore,
	emitter EventEmitter,
	archiver domain.ArtifactArchiver,
	log zerolog.Logger,
) *Service {
	return &Service{
		policies:   policies,
		cfg:        cfg,
		classifier: tiers.NewClassifier(policies, log),
		calculator: allocation.NewCalculator(policies, cfg.Allocation, log),
		validator:  compliance.NewValidator(policies, cfg.Compliance, log),
		generator:  rebalancing.NewGenerator(policies, cfg.Rebalancing, log),
		store:      store,
		emitter:    emitter,
		archiver:   archiver,
		log:        log.With().Str("service", "planning").Logger(),
	}
}

// Policies returns the active policy set
func (s *Service) Policies() tiers.PolicySet {
	return s.policies
}

// Config returns the active engine configuration
func (s *Service) Config() Config {
	return s.cfg
}

// Analyze runs the pure pipeline on a snapshot without persisting anything.
// A contradictory snapshot returns a *domain.FatalInputError and no run.
func (s *Service) Analyze(snapshot *domain.Snapshot) (*reports.Run, error) {
	if err := domain.ValidateSnapshot(snapshot); err != nil {
		return nil, err
	}

	work := snapshot.Clone()
	eligibility := s.classifier.ClassifyAll(work.Holdings)

	records := make(map[string]tiers.Record, len(eligibility))
	for i := range work.Holdings {
		h := &work.Holdings[i]
		e := eligibility[h.Ticker]
		if tier, ok := e.AssignedTier(); ok {
			h.Tier = tier
		} else {
			h.Tier = domain.TierNone
		}
		records[h.Ticker] = tiers.ToRecord(e)
	}

	plan := s.calculator.Calculate(work.Holdings, eligibility)
	report := s.validator.Validate(work, eligibility, plan)
	result := s.generator.Generate(work, eligibility, plan)

	return &reports.Run{
		ID:             uuid.New().String(),
		CreatedAt:      time.Now().UTC(),
		Snapshot:       work,
		Eligibility:    records,
		Plan:           plan,
		Compliance:     report,
		Trades:         result.Trades,
		Skipped:        result.Skipped,
		PortfolioValue: result.PortfolioValue,
	}, nil
}

// Run analyzes a snapshot, stores the artifact, emits events and archives it.
// A store failure is returned alongside the run; archive failures are only logged.
func (s *Service) Run(ctx context.Context, snapshot *domain.Snapshot, source string) (*reports.Run, error) {
	start := time.Now()

	run, err := s.Analyze(snapshot)
	if err != nil {
		if errors.Is(err, domain.ErrFatalInput) {
			s.log.Error().Err(err).Str("source", source).Msg("Snapshot rejected")
		}
		s.emitError(err, map[string]interface{}{"source": source})
		return nil, err
	}
	run.Source = source

	s.emit(events.RunStarted, &events.RunStartedData{
		RunID:    run.ID,
		Source:   source,
		Holdings: len(run.Snapshot.Holdings),
		Cash:     run.Snapshot.Cash,
	})

	if s.store != nil {
		if err := s.store.SaveRun(ctx, run); err != nil {
			s.emitError(err, map[string]interface{}{"run_id": run.ID})
			return run, fmt.Errorf("failed to store run: %w", err)
		}
	}

	s.emitRunEvents(run)

	s.archive(ctx, "runs/"+run.ID+".msgpack", run.ID, run)

	s.log.Info().
		Str("run_id", run.ID).
		Str("source", source).
		Float64("compliance_score", run.Compliance.Score).
		Int("trades", len(run.Trades)).
		Dur("duration", time.Since(start)).
		Msg("Analysis run completed")

	return run, nil
}

// GetRun loads a stored run
func (s *Service) GetRun(ctx context.Context, id string) (*reports.Run, error) {
	if s.store == nil {
		return nil, fmt.Errorf("%w: %s", reports.ErrNotFound, id)
	}
	return s.store.GetRun(ctx, id)
}

// SequenceRequest overrides sequencing inputs for one batch
type SequenceRequest struct {
	// Cash is the starting balance; nil uses the run snapshot's cash
	Cash *float64 `json:"cash,omitempty"`
	// Policy overrides the configured partial-fill policy when set
	Policy string `json:"policy,omitempty"`
	// ReserveFloor overrides the configured reserve floor when set
	ReserveFloor *float64 `json:"reserve_floor,omitempty"`
}

// Sequence executes a stored run's trades against a running cash balance and
// stores the result
func (s *Service) Sequence(ctx context.Context, runID string, req SequenceRequest, opts ...sequencing.Option) (*reports.Execution, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	summary, err := s.SequenceRun(run, req, opts...)
	if err != nil {
		return nil, err
	}

	exec := &reports.Execution{
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Summary:   summary,
	}
	if err := s.store.SaveExecution(ctx, exec); err != nil {
		s.emitError(err, map[string]interface{}{"run_id": runID})
		return nil, fmt.Errorf("failed to store execution: %w", err)
	}

	s.emit(events.BatchSequenced, &events.BatchSequencedData{
		RunID:        runID,
		Policy:       string(summary.Policy),
		Executed:     summary.Executed,
		Partial:      summary.Partial,
		Rejected:     summary.Rejected,
		StartingCash: summary.StartingCash,
		FinalCash:    summary.FinalCash,
		TotalFees:    summary.TotalFees,
	})
	s.archive(ctx, "runs/"+runID+"/executions/"+exec.ID+".msgpack", runID, exec)

	return exec, nil
}

// SequenceRun executes run's trades against a running cash balance without
// storing anything. Overrides in req that cannot apply wrap ErrInvalidRequest.
func (s *Service) SequenceRun(run *reports.Run, req SequenceRequest, opts ...sequencing.Option) (sequencing.Summary, error) {
	cfg := s.cfg.Sequencing
	if req.Policy != "" {
		policy, err := sequencing.ParsePartialFillPolicy(req.Policy)
		if err != nil {
			return sequencing.Summary{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		cfg.Policy = policy
	}
	if req.ReserveFloor != nil {
		if *req.ReserveFloor < 0 {
			return sequencing.Summary{}, fmt.Errorf("%w: reserve floor must not be negative", ErrInvalidRequest)
		}
		cfg.ReserveFloor = *req.ReserveFloor
	}
	if run.Snapshot != nil && run.Snapshot.Currency != "" {
		cfg.Currency = run.Snapshot.Currency
	}

	cash := 0.0
	if run.Snapshot != nil {
		cash = run.Snapshot.Cash
	}
	if req.Cash != nil {
		if *req.Cash < 0 {
			return sequencing.Summary{}, fmt.Errorf("%w: starting cash must not be negative", ErrInvalidRequest)
		}
		cash = *req.Cash
	}

	hook := sequencing.WithTransitionHook(func(t sequencing.Transition) {
		s.emit(events.TradeTransitioned, &events.TradeTransitionedData{
			RunID:   run.ID,
			TradeID: t.TradeID,
			Ticker:  t.Ticker,
			Action:  string(t.Action),
			From:    string(t.From),
			To:      string(t.To),
			Cash:    t.Cash,
		})
	})
	sequencer := sequencing.NewSequencer(cfg, s.log, append([]sequencing.Option{hook}, opts...)...)
	return sequencer.Sequence(run.Trades, cash), nil
}

func (s *Service) emitRunEvents(run *reports.Run) {
	ineligible := 0
	for _, rec := range run.Eligibility {
		if rec.Kind == tiers.KindIneligible {
			ineligible++
		}
	}

	s.emit(events.PlanGenerated, &events.PlanGeneratedData{
		RunID:          run.ID,
		Targets:        len(run.Plan.Targets),
		Ineligible:     ineligible,
		UnallocatedPct: run.Plan.UnallocatedPct,
		Passes:         run.Plan.Passes,
		Converged:      run.Plan.Converged,
		Violations:     len(run.Plan.Violations),
	})
	s.emit(events.ComplianceEvaluated, &events.ComplianceEvaluatedData{
		RunID:     run.ID,
		Score:     run.Compliance.Score,
		Compliant: run.Compliance.Compliant,
		Critical:  run.Compliance.Critical,
		Warnings:  run.Compliance.Warnings,
		Info:      run.Compliance.Info,
	})
	s.emit(events.RecommendationsReady, &events.RecommendationsReadyData{
		RunID:   run.ID,
		Count:   len(run.Trades),
		Skipped: len(run.Skipped),
	})
}

func (s *Service) archive(ctx context.Context, key, runID string, v interface{}) {
	if s.archiver == nil {
		return
	}

	data, err := reports.Encode(v)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to encode artifact for archive")
		return
	}
	if err := s.archiver.Archive(ctx, key, data); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to archive artifact")
		s.emitError(err, map[string]interface{}{"run_id": runID, "key": key})
		return
	}

	s.emit(events.RunArchived, &events.RunArchivedData{RunID: runID, Key: key, Bytes: len(data)})
}

func (s *Service) emit(eventType events.EventType, data events.EventData) {
	if s.emitter == nil {
		return
	}
	s.emitter.EmitTyped(eventType, moduleName, data)
}

func (s *Service) emitError(err error, context map[string]interface{}) {
	if s.emitter == nil {
		return
	}
	s.emitter.EmitError(moduleName, err, context)
}
