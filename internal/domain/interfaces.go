package domain

import "context"

// SnapshotProvider supplies the materialized portfolio snapshot for an analysis run.
// Data acquisition (prices, fundamentals, scores) happens behind this interface.
type SnapshotProvider interface {
	// LoadSnapshot returns the current portfolio snapshot
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
}

// ArtifactArchiver exports encoded run artifacts to external storage.
// This interface breaks the dependency between planning and the archive package.
type ArtifactArchiver interface {
	// Archive stores data under key
	Archive(ctx context.Context, key string, data []byte) error
}
