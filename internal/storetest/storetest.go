// Package storetest is a parameterized compliance suite run against every
// EventRepository backend (mem, pgx, redis): properties P1-P3, P5 and P6
// plus rejection of a category append, run once per backend via Run. P4
// (domain-error purity) is not part of this suite. It deliberately avoids any backend-specific cursor arithmetic — it
// only ever compares versions for equality or checks their named variant —
// so the same suite compiles against int64 (mem, pgx) and the Redis
// (timestamp, seq) cursor alike.
package storetest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/epochal/ges"
)

// Opened and Added are minimal test events. Both implement
// ges.EntityIdentified so Execute-style id derivation can be exercised too.
type Opened struct{ ID string }

func (e Opened) EventType() string { return "Opened" }
func (e Opened) EntityID() string  { return e.ID }

type Added struct {
	ID string
	N  int
}

func (e Added) EventType() string { return "Added" }
func (e Added) EntityID() string  { return e.ID }

// Factory builds a fresh, isolated repository instance for one subtest.
type Factory[V comparable] func(t *testing.T) ges.EventRepository[V]

// Run executes the compliance suite (P1-P3, P5, P6, and the empty-streamID
// append check) against newRepo. Each
// property is an independent parallel subtest; a backend fails the suite
// if any one of them fails.
func Run[V comparable](t *testing.T, newRepo Factory[V]) {
	t.Run("P1_replay_determinism", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		repo := newRepo(t)
		streamID := "p1-stream"

		_, _, err := repo.Append(ctx, ges.NoStreamVersion[V](), streamID, []ges.Event{
			Opened{ID: streamID}, Added{ID: streamID, N: 1}, Added{ID: streamID, N: 2},
		})
		require.NoError(t, err)

		first, v1, err := repo.Load(ctx, streamID)
		require.NoError(t, err)
		second, v2, err := repo.Load(ctx, streamID)
		require.NoError(t, err)

		require.Equal(t, first, second, "replaying the same stream twice must yield identical events")
		require.True(t, v1.Equal(v2), "replaying the same stream twice must yield identical versions")
		require.Len(t, first, 3)
	})

	t.Run("P2_version_monotonicity", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		repo := newRepo(t)
		streamID := "p2-stream"

		_, v1, err := repo.Append(ctx, ges.NoStreamVersion[V](), streamID, []ges.Event{Opened{ID: streamID}})
		require.NoError(t, err)
		_, v2, err := repo.Append(ctx, v1, streamID, []ges.Event{Added{ID: streamID, N: 1}})
		require.NoError(t, err)

		require.False(t, v1.Equal(v2), "each successful append must advance the stream's version")
	})

	t.Run("P3_occ_linearity", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		repo := newRepo(t)
		streamID := "p3-stream"

		_, _, err := repo.Append(ctx, ges.NoStreamVersion[V](), streamID, []ges.Event{Opened{ID: streamID}})
		require.NoError(t, err)

		// A second writer racing from the same (now stale) expectation must
		// be rejected, never silently interleaved.
		_, _, err = repo.Append(ctx, ges.NoStreamVersion[V](), streamID, []ges.Event{Added{ID: streamID, N: 1}})
		require.Error(t, err)

		var conflict *ges.VersionConflictError[V]
		require.ErrorAs(t, err, &conflict)
		require.Equal(t, streamID, conflict.StreamID)
	})

	t.Run("P5_idempotent_reload", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		repo := newRepo(t)
		streamID := "p5-stream"

		_, _, err := repo.Append(ctx, ges.NoStreamVersion[V](), streamID, []ges.Event{Opened{ID: streamID}})
		require.NoError(t, err)

		events, version, err := repo.Load(ctx, streamID)
		require.NoError(t, err)

		tail, sameVersion, err := repo.LoadFrom(ctx, version, streamID)
		require.NoError(t, err)
		require.Empty(t, tail, "reloading from the already-observed version must return no new events")
		require.True(t, version.Equal(sameVersion))
		require.Len(t, events, 1)
	})

	t.Run("P6_category_coverage", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		repo := newRepo(t)

		_, _, err := repo.Append(ctx, ges.NoStreamVersion[V](), "cat-1", []ges.Event{Opened{ID: "cat-1"}})
		require.NoError(t, err)
		_, _, err = repo.Append(ctx, ges.NoStreamVersion[V](), "cat-2", []ges.Event{Opened{ID: "cat-2"}})
		require.NoError(t, err)

		all, _, err := repo.Load(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 2, "a category read must concatenate every per-entity stream in the category")
	})

	t.Run("append_empty_streamID_rejected", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		repo := newRepo(t)

		_, _, err := repo.Append(ctx, ges.Any[V](), "", []ges.Event{Opened{ID: "x"}})
		require.ErrorIs(t, err, ges.ErrCategoryAppend)
	})
}
