// Package storage defines the run-history storage interface for Stitch.
package storage

import (
	"context"
)

// Storage records completed review runs and installation bookkeeping.
// Implementations must be safe for concurrent use by multiple goroutines.
// All writes are best-effort from the caller's perspective: a storage
// failure never fails a review run.
type Storage interface {
	// Run operations
	StoreRun(ctx context.Context, run *RunRecord) error
	ListRunsForPR(ctx context.Context, owner, repo string, prNumber int) ([]*RunRecord, error)

	// Installation operations
	SaveInstallation(ctx context.Context, install *Installation) error
	GetInstallation(ctx context.Context, installationID int64) (*Installation, error)
}
