// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/tierfolio/internal/archive"
	"github.com/aristath/tierfolio/internal/database"
	"github.com/aristath/tierfolio/internal/events"
	"github.com/aristath/tierfolio/internal/modules/allocation"
	"github.com/aristath/tierfolio/internal/modules/planning"
	"github.com/aristath/tierfolio/internal/modules/reports"
	"github.com/aristath/tierfolio/internal/modules/snapshots"
	"github.com/aristath/tierfolio/internal/modules/tiers"
	"github.com/aristath/tierfolio/internal/scheduler"
)

// Container holds all dependencies for the application.
// It is created by Wire() and passed to the server for access to services.
type Container struct {
	// Databases
	ReportsDB *database.DB

	// Repositories
	ReportsRepo *reports.Repository

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Clients (nil when archiving is disabled)
	ArchiveClient *archive.Client

	// Services
	Policies             tiers.PolicySet
	Classifier           *tiers.Classifier
	AllocationCalculator *allocation.Calculator
	PlanningService      *planning.Service
	SnapshotProvider     *snapshots.FileProvider // nil when SNAPSHOT_FILE is unset

	// Background jobs
	Scheduler *scheduler.Scheduler
}

// Close releases the container's resources. The scheduler must be stopped first.
func (c *Container) Close() error {
	if c.ReportsDB != nil {
		return c.ReportsDB.Close()
	}
	return nil
}
