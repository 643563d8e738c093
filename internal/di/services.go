package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tierfolio/internal/archive"
	"github.com/aristath/tierfolio/internal/config"
	"github.com/aristath/tierfolio/internal/domain"
	"github.com/aristath/tierfolio/internal/events"
	"github.com/aristath/tierfolio/internal/modules/allocation"
	"github.com/aristath/tierfolio/internal/modules/planning"
	"github.com/aristath/tierfolio/internal/modules/reports"
	"github.com/aristath/tierfolio/internal/modules/snapshots"
	"github.com/aristath/tierfolio/internal/modules/tiers"
)

// archiveConnectTimeout bounds loading AWS configuration at startup
const archiveConnectTimeout = 30 * time.Second

// InitializeServices creates repositories, clients and services on an
// initialized container
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.ReportsDB == nil {
		return fmt.Errorf("container databases are not initialized")
	}

	container.ReportsRepo = reports.NewRepository(container.ReportsDB.Conn(), log)

	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	if cfg.Archive != nil {
		archiveCfg := cfg.Archive.ToArchiveConfig()
		if archiveCfg.Enabled() {
			ctx, cancel := context.WithTimeout(context.Background(), archiveConnectTimeout)
			client, err := archive.NewClient(ctx, archiveCfg, log)
			cancel()
			if err != nil {
				return fmt.Errorf("failed to create archive client: %w", err)
			}
			container.ArchiveClient = client
		}
	}

	policies, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}
	container.Policies = policies
	container.Classifier = tiers.NewClassifier(policies, log)

	planningCfg := cfg.ToPlanningConfig()
	container.AllocationCalculator = allocation.NewCalculator(policies, planningCfg.Allocation, log)

	// A nil *archive.Client must not reach the service as a non-nil interface
	var archiver domain.ArtifactArchiver
	if container.ArchiveClient != nil {
		archiver = container.ArchiveClient
	}

	container.PlanningService = planning.NewService(
		policies,
		planningCfg,
		container.ReportsRepo,
		container.EventManager,
		archiver,
		log,
	)

	if cfg.SnapshotFile != "" {
		container.SnapshotProvider = snapshots.NewFileProvider(cfg.SnapshotFile, log)
	}

	log.Info().
		Int("tiers", len(policies.Tiers)).
		Bool("archive", container.ArchiveClient != nil).
		Bool("snapshot_file", container.SnapshotProvider != nil).
		Msg("Services initialized")

	return nil
}
