package ges_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/epochal/ges"
	"github.com/epochal/ges/internal/testdomain"
)

// Fold must be deterministic and total over any event sequence a paired
// Decider can produce: replaying the same events twice from the same
// starting state always yields the same state.
func TestFold_DeterministicReplay(t *testing.T) {
	decider := testdomain.UserDecider{}
	ctx := testdomain.WithIDGenerator(context.Background(), testdomain.NewSequence())

	events, err := decider.Decide(ctx, decider.Init(), testdomain.AddUser("Mike"))
	require.NoError(t, err)
	events2, err := decider.Decide(ctx, ges.Fold(decider, decider.Init(), events), testdomain.AddGuitar(1, "Gibson"))
	require.NoError(t, err)

	all := append(events, events2...)

	first := ges.Fold(decider, decider.Init(), all)
	second := ges.Fold(decider, decider.Init(), all)
	require.Equal(t, first, second)
	require.Contains(t, first.Users[1].Guitars, testdomain.Guitar{Brand: "Gibson"})
}

// Preview decides and folds without touching any repository.
func TestPreview_NoSideEffects(t *testing.T) {
	decider := testdomain.UserDecider{}
	ctx := testdomain.WithIDGenerator(context.Background(), testdomain.NewSequence())

	result, err := ges.Preview(ctx, decider, decider.Init(), testdomain.AddUser("Mike"))
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	require.Len(t, result.State.Users, 1)
}

// AddGuitar against an already-owned brand is rejected, proving Decide can
// read State to reject a command without emitting any event.
func TestUserDecider_RejectsDuplicateGuitar(t *testing.T) {
	decider := testdomain.UserDecider{}
	ctx := testdomain.WithIDGenerator(context.Background(), testdomain.NewSequence())

	added, err := decider.Decide(ctx, decider.Init(), testdomain.AddUser("Mike"))
	require.NoError(t, err)
	state := ges.Fold(decider, decider.Init(), added)

	guitarAdded, err := decider.Decide(ctx, state, testdomain.AddGuitar(1, "Gibson"))
	require.NoError(t, err)
	state = ges.Fold(decider, state, guitarAdded)

	_, err = decider.Decide(ctx, state, testdomain.AddGuitar(1, "Gibson"))
	require.ErrorIs(t, err, testdomain.ErrAlreadyHasGuitar)
}
