package scheduler

import (
	"context"
	"time"

	"github.com/aristath/tierfolio/internal/domain"
	"github.com/aristath/tierfolio/internal/modules/reports"
)

// RunAnalyzer runs and stores one analysis (planning.Service)
type RunAnalyzer interface {
	Run(ctx context.Context, snapshot *domain.Snapshot, source string) (*reports.Run, error)
}

// RunPruner deletes stored runs past their retention (reports.Repository)
type RunPruner interface {
	DeleteOlderThan(ctx context.Context, maxAge time.Duration) (int, error)
}

// ArtifactRotator deletes archived objects past their retention (archive.Client)
type ArtifactRotator interface {
	RotateOlderThan(ctx context.Context, prefix string, maxAge time.Duration) (int, error)
}
