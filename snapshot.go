package ges

import (
	"context"
	"time"
)

// Snapshot is a cached materialized State at a specific Version, an
// alternative to full replay for expensive folds.
type Snapshot[State any, V comparable] struct {
	State   State
	Version Version[V]
	Found   bool
	At      time.Time
}

// SnapshotRepository stores one cached State per stream, itself versioned
// for OCC. Unlike EventRepository it never needs catch-up: a losing writer
// simply re-reifies and re-decides against the fresh state.
type SnapshotRepository[V comparable, State any] interface {
	// Reify returns the latest snapshot for streamID, or the zero State
	// with Version == NoStreamVersion[V]() if none has been saved yet.
	Reify(ctx context.Context, streamID string) (Snapshot[State, V], error)

	// Save upserts state for streamID under the expected-version guard,
	// returning the new version on success or a *VersionConflictError[V]
	// on a guard mismatch.
	Save(ctx context.Context, expected Version[V], streamID string, state State) (Version[V], error)
}
