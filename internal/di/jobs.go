package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/tierfolio/internal/config"
	"github.com/aristath/tierfolio/internal/scheduler"
)

// Maintenance schedules, six fields with seconds first
const (
	walCheckpointSchedule = "0 0 * * * *"  // hourly
	integritySchedule     = "0 30 3 * * *" // daily 03:30
	cleanupSchedule       = "0 0 4 * * *"  // daily 04:00
)

// JobInstances holds references to all registered jobs
type JobInstances struct {
	AnalyzeSnapshot     *scheduler.AnalyzeSnapshotJob // nil without SNAPSHOT_FILE and ANALYSIS_SCHEDULE
	CheckWALCheckpoints *scheduler.CheckWALCheckpointsJob
	CheckDatabases      *scheduler.CheckDatabasesJob
	CleanupRuns         *scheduler.CleanupRunsJob
}

// RegisterJobs creates the scheduler and registers every background job on it.
// The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container.PlanningService == nil || container.ReportsRepo == nil {
		return nil, fmt.Errorf("services are not initialized")
	}

	sched := scheduler.New(log)
	instances := &JobInstances{}

	if container.SnapshotProvider != nil && cfg.AnalysisSchedule != "" {
		job := scheduler.NewAnalyzeSnapshotJob(container.SnapshotProvider, container.PlanningService)
		job.SetLogger(log)
		if err := sched.AddJob(cfg.AnalysisSchedule, job); err != nil {
			return nil, err
		}
		instances.AnalyzeSnapshot = job
	}

	walJob := scheduler.NewCheckWALCheckpointsJob(container.ReportsDB)
	walJob.SetLogger(log)
	if err := sched.AddJob(walCheckpointSchedule, walJob); err != nil {
		return nil, err
	}
	instances.CheckWALCheckpoints = walJob

	dbJob := scheduler.NewCheckDatabasesJob(container.ReportsDB)
	dbJob.SetLogger(log)
	if err := sched.AddJob(integritySchedule, dbJob); err != nil {
		return nil, err
	}
	instances.CheckDatabases = dbJob

	var rotator scheduler.ArtifactRotator
	if container.ArchiveClient != nil {
		rotator = container.ArchiveClient
	}
	cleanupJob := scheduler.NewCleanupRunsJob(container.ReportsRepo, rotator, cfg.Retention())
	cleanupJob.SetLogger(log)
	if err := sched.AddJob(cleanupSchedule, cleanupJob); err != nil {
		return nil, err
	}
	instances.CleanupRuns = cleanupJob

	container.Scheduler = sched

	log.Info().Int("jobs", len(sched.Jobs())).Msg("Background jobs registered")

	return instances, nil
}
