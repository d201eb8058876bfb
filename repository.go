package ges

import (
	"context"
	"errors"
)

// ErrCategoryAppend is returned by adapters when Append is called with an
// empty streamID (a category read target) — category reads are always
// read-only; append requires one concrete stream.
var ErrCategoryAppend = errors.New("ges: cannot append to a category read")

// EventRepository is an append-only, per-stream-versioned, multi-stream
// event log. A streamID of "" addresses the category: the concatenation
// of every per-entity stream under the repository's configured category
// name, exposed read-only for rebuilding cross-aggregate state.
//
// V is the backend-native comparable cursor type carried by Version.
type EventRepository[V comparable] interface {
	// Load returns every event for streamID in append order, along with
	// the stream's last version. If streamID == "", it reads the
	// category instead, in a backend-defined but stable order. If the
	// stream does not exist, Load returns (nil, NoStreamVersion[V](), nil).
	Load(ctx context.Context, streamID string) ([]Event, Version[V], error)

	// LoadFrom returns every event strictly after the exclusive lower
	// bound `from`, along with the new last version. Used by Execute to
	// catch up after a version conflict without a full reload.
	LoadFrom(ctx context.Context, from Version[V], streamID string) ([]Event, Version[V], error)

	// Append writes events to streamID under the expected-version guard.
	// Passing Any[V]() skips the guard. On success, all events land
	// contiguously at the tail and the returned Version is the new last
	// version. On a guard mismatch, Append writes nothing and returns a
	// *VersionConflictError[V] carrying the actual current version.
	// streamID must not be "" (see ErrCategoryAppend).
	Append(ctx context.Context, expected Version[V], streamID string, events []Event) ([]Event, Version[V], error)
}
