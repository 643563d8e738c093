package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/tierfolio/internal/config"
	"github.com/aristath/tierfolio/internal/database"
)

// InitializeDatabases opens the reports database and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// reports.db - run artifacts and executions
	reportsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "reports.db"),
		Profile: database.ProfileStandard,
		Name:    "reports",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize reports database: %w", err)
	}

	if err := reportsDB.Migrate(); err != nil {
		reportsDB.Close()
		return nil, fmt.Errorf("failed to apply schema to %s: %w", reportsDB.Name(), err)
	}
	container.ReportsDB = reportsDB

	log.Info().Str("path", reportsDB.Path()).Msg("Reports database initialized")

	return container, nil
}
