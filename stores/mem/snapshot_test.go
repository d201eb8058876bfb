package mem_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/epochal/ges"
	"github.com/epochal/ges/stores/mem"
)

func TestStore_SnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	store := mem.New()

	snap, err := store.Reify(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, snap.Found)
	require.True(t, snap.Version.IsNoStream())

	v1, err := store.Save(ctx, ges.Any[int64](), "user-1", map[string]any{"name": "Ada"})
	require.NoError(t, err)

	snap, err = store.Reify(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, snap.Found)
	require.Equal(t, map[string]any{"name": "Ada"}, snap.State)
	require.True(t, snap.Version.Equal(v1))

	_, err = store.Save(ctx, ges.NoStreamVersion[int64](), "user-1", map[string]any{"name": "stale writer"})
	var conflict *ges.VersionConflictError[int64]
	require.ErrorAs(t, err, &conflict)
}

func TestStore_ConcurrentAppendsToDifferentStreams(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	store := mem.New()

	done := make(chan error, 2)
	for _, id := range []string{"a", "b"} {
		id := id
		go func() {
			_, _, err := store.Append(ctx, ges.NoStreamVersion[int64](), id, []ges.Event{testEvent{id: id}})
			done <- err
		}()
	}
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	events, _, err := store.Load(ctx, "")
	require.NoError(t, err)
	require.Len(t, events, 2)
}

type testEvent struct{ id string }

func (e testEvent) EventType() string { return "testEvent" }
func (e testEvent) EntityID() string  { return e.id }
