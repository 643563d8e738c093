package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// archivePrefix is where run artifacts live in the archive bucket
const archivePrefix = "runs/"

// CleanupRunsJob deletes stored and archived runs past the retention window
type CleanupRunsJob struct {
	pruner  RunPruner
	rotator ArtifactRotator
	maxAge  time.Duration
	log     zerolog.Logger
}

// NewCleanupRunsJob creates a new CleanupRunsJob. rotator may be nil when archiving is disabled.
func NewCleanupRunsJob(pruner RunPruner, rotator ArtifactRotator, maxAge time.Duration) *CleanupRunsJob {
	return &CleanupRunsJob{
		pruner:  pruner,
		rotator: rotator,
		maxAge:  maxAge,
		log:     zerolog.Nop(),
	}
}

// SetLogger sets the logger for the job
func (j *CleanupRunsJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", j.Name()).Logger()
}

// Name returns the job name
func (j *CleanupRunsJob) Name() string {
	return "cleanup_runs"
}

// Run executes the cleanup job. A zero retention keeps everything.
func (j *CleanupRunsJob) Run() error {
	if j.maxAge <= 0 {
		j.log.Debug().Msg("Retention disabled, nothing to clean up")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deletedRuns, err := j.pruner.DeleteOlderThan(ctx, j.maxAge)
	if err != nil {
		return fmt.Errorf("failed to delete old runs: %w", err)
	}

	deletedObjects := 0
	if j.rotator != nil {
		deletedObjects, err = j.rotator.RotateOlderThan(ctx, archivePrefix, j.maxAge)
		if err != nil {
			return fmt.Errorf("failed to rotate archived runs: %w", err)
		}
	}

	j.log.Info().
		Int("deleted_runs", deletedRuns).
		Int("deleted_objects", deletedObjects).
		Dur("max_age", j.maxAge).
		Msg("Run cleanup completed")

	return nil
}
