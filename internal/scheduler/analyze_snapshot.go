package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tierfolio/internal/domain"
)

// AnalysisSource tags runs started by the scheduler
const AnalysisSource = "scheduler"

// AnalyzeSnapshotJob loads the current snapshot and runs a full analysis on it
type AnalyzeSnapshotJob struct {
	provider domain.SnapshotProvider
	analyzer RunAnalyzer
	timeout  time.Duration
	log      zerolog.Logger
}

// NewAnalyzeSnapshotJob creates a new AnalyzeSnapshotJob
func NewAnalyzeSnapshotJob(provider domain.SnapshotProvider, analyzer RunAnalyzer) *AnalyzeSnapshotJob {
	return &AnalyzeSnapshotJob{
		provider: provider,
		analyzer: analyzer,
		timeout:  2 * time.Minute,
		log:      zerolog.Nop(),
	}
}

// SetLogger sets the logger for the job
func (j *AnalyzeSnapshotJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", j.Name()).Logger()
}

// Name returns the job name
func (j *AnalyzeSnapshotJob) Name() string {
	return "analyze_snapshot"
}

// Run executes the analysis job
func (j *AnalyzeSnapshotJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	snapshot, err := j.provider.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	run, err := j.analyzer.Run(ctx, snapshot, AnalysisSource)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	j.log.Info().
		Str("run_id", run.ID).
		Float64("compliance_score", run.Compliance.Score).
		Int("trades", len(run.Trades)).
		Msg("Scheduled analysis completed")

	return nil
}
