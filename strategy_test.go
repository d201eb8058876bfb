package ges_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/epochal/ges"
	"github.com/epochal/ges/internal/testdomain"
)

// fakeRepo is a minimal, deliberately simple EventRepository[int64] double
// for exercising Execute/ExecuteReifyDecide's retry and catch-up logic in
// isolation from any real backend (stores/mem's own compliance suite
// already covers the backend contract itself).
type fakeRepo struct {
	mu      sync.Mutex
	streams map[string][]ges.Event

	// beforeAppend, when set, runs once per call (consumed after firing)
	// to simulate another writer racing in between this caller's load and
	// its append — the mechanism scenario S6 depends on.
	beforeAppend func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{streams: map[string][]ges.Event{}}
}

func (r *fakeRepo) Load(_ context.Context, streamID string) ([]ges.Event, ges.Version[int64], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if streamID == "" {
		var all []ges.Event
		for _, events := range r.streams {
			all = append(all, events...)
		}
		return all, ges.Any[int64](), nil
	}
	events := r.streams[streamID]
	return events, versionOf(events), nil
}

func (r *fakeRepo) LoadFrom(_ context.Context, from ges.Version[int64], streamID string) ([]ges.Event, ges.Version[int64], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.streams[streamID]
	start := int64(0)
	if v, ok := from.Exact(); ok {
		start = v
	}
	var tail []ges.Event
	if start < int64(len(events)) {
		tail = events[start:]
	}
	return tail, versionOf(events), nil
}

func (r *fakeRepo) Append(_ context.Context, expected ges.Version[int64], streamID string, events []ges.Event) ([]ges.Event, ges.Version[int64], error) {
	if hook := r.beforeAppend; hook != nil {
		r.beforeAppend = nil
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.streams[streamID]
	actual := versionOf(current)
	if !expected.IsAny() && !matches(expected, current) {
		return nil, actual, &ges.VersionConflictError[int64]{
			StreamID: streamID,
			Diff:     ges.VersionDiff[int64]{Expected: expected, Actual: actual},
		}
	}
	if len(events) == 0 {
		return nil, actual, nil
	}
	r.streams[streamID] = append(current, events...)
	return events, versionOf(r.streams[streamID]), nil
}

func versionOf(events []ges.Event) ges.Version[int64] {
	if len(events) == 0 {
		return ges.NoStreamVersion[int64]()
	}
	return ges.ExactVersion(int64(len(events)))
}

func matches(expected ges.Version[int64], events []ges.Event) bool {
	switch {
	case expected.IsNoStream():
		return len(events) == 0
	case expected.IsStreamExists():
		return len(events) > 0
	default:
		v, _ := expected.Exact()
		return v == int64(len(events))
	}
}

func streamIDFor(entityID string) string { return "test-" + entityID }

// S1: first-write assigns id 1 from the sequence and lands a single event.
func TestExecute_FirstWrite(t *testing.T) {
	repo := newFakeRepo()
	ctx := testdomain.WithIDGenerator(context.Background(), testdomain.NewSequence())

	events, err := ges.Execute[testdomain.UserDeciderState](
		ctx, repo, testdomain.UserDecider{}, streamIDFor, ges.NewStream(), testdomain.AddUser("Mike"),
	)
	require.NoError(t, err)
	require.Equal(t, []ges.Event{testdomain.UserAdded{ID: 1, Name: mustName(t, "Mike")}}, events)

	stored, _, err := repo.Load(ctx, "test-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

// S2: a too-long name is rejected as a pure domain error; nothing is written.
func TestExecute_NameTooLong(t *testing.T) {
	repo := newFakeRepo()
	ctx := testdomain.WithIDGenerator(context.Background(), testdomain.NewSequence())

	_, err := ges.Execute[testdomain.UserDeciderState](
		ctx, repo, testdomain.UserDecider{}, streamIDFor, ges.NewStream(), testdomain.AddUser("Mike"),
	)
	require.NoError(t, err)

	_, err = ges.Execute[testdomain.UserDeciderState](
		ctx, repo, testdomain.UserDecider{}, streamIDFor, ges.ExistingStream("test-1"),
		testdomain.UpdateUserName(1, "DmitiryWayToLongToSucceed"),
	)
	var domainErr *ges.DomainError
	require.ErrorAs(t, err, &domainErr)
	require.ErrorIs(t, err, testdomain.ErrNameTooLong, "rejection reason must be NameTooLong, not just any domain error")

	events, _, _ := repo.Load(ctx, "test-1")
	require.Len(t, events, 1, "stream must be unchanged after a rejected command")
}

// S3: an empty name on a brand-new stream is rejected without creating one.
func TestExecute_EmptyNameCreatesNoStream(t *testing.T) {
	repo := newFakeRepo()
	ctx := testdomain.WithIDGenerator(context.Background(), testdomain.NewSequence())

	_, err := ges.Execute[testdomain.UserDeciderState](
		ctx, repo, testdomain.UserDecider{}, streamIDFor, ges.NewStream(), testdomain.AddUser(""),
	)
	require.ErrorIs(t, err, testdomain.ErrEmptyName)
	require.Empty(t, repo.streams)
}

// S5: a category read concatenates every per-entity stream; per-stream
// reads each see exactly their own event.
func TestLoadState_CategoryRead(t *testing.T) {
	repo := newFakeRepo()
	ctx := testdomain.WithIDGenerator(context.Background(), testdomain.NewSequence())

	_, err := ges.Execute[testdomain.UserDeciderState](
		ctx, repo, testdomain.UserDecider{}, streamIDFor, ges.NewStream(), testdomain.AddUser("Mike"),
	)
	require.NoError(t, err)
	_, err = ges.Execute[testdomain.UserDeciderState](
		ctx, repo, testdomain.UserDecider{}, streamIDFor, ges.NewStream(), testdomain.AddUser("Stella"),
	)
	require.NoError(t, err)

	state, err := ges.LoadState[testdomain.UserDeciderState](ctx, repo, testdomain.UserDecider{})
	require.NoError(t, err)
	require.Len(t, state.Users, 2)

	one, _, err := repo.Load(ctx, "test-1")
	require.NoError(t, err)
	require.Len(t, one, 1)

	two, _, err := repo.Load(ctx, "test-2")
	require.NoError(t, err)
	require.Len(t, two, 1)
}

// S6: a conflicting writer catches up on the tail and re-decides rather
// than failing outright.
func TestExecute_CatchUpOnConflict(t *testing.T) {
	repo := newFakeRepo()
	ctx := testdomain.WithIDGenerator(context.Background(), testdomain.NewSequence())

	_, err := ges.Execute[testdomain.UserDeciderState](
		ctx, repo, testdomain.UserDecider{}, streamIDFor, ges.NewStream(), testdomain.AddUser("Mike"),
	)
	require.NoError(t, err)

	// Simulate a second writer landing a guitar between this caller's
	// first decide and its first append attempt.
	repo.beforeAppend = func() {
		_, _, err := repo.Append(ctx, ges.ExactVersion(int64(1)), "test-1", []ges.Event{
			testdomain.UserGuitarAdded{UserID: 1, Guitar: testdomain.Guitar{Brand: "Gibson"}},
		})
		require.NoError(t, err)
	}

	_, err = ges.Execute[testdomain.UserDeciderState](
		ctx, repo, testdomain.UserDecider{}, streamIDFor, ges.ExistingStream("test-1"),
		testdomain.AddGuitar(1, "Fender"),
	)
	require.NoError(t, err)

	state, err := ges.LoadStateByID[testdomain.UserDeciderState](ctx, repo, testdomain.UserDecider{}, "test-1")
	require.NoError(t, err)
	require.Contains(t, state.Users[1].Guitars, testdomain.Guitar{Brand: "Gibson"})
	require.Contains(t, state.Users[1].Guitars, testdomain.Guitar{Brand: "Fender"})
}

// S4: nine concurrent AddGuitar commands against the same existing stream
// must all land, none lost or duplicated, via Execute's OCC retry loop.
func TestExecute_ConcurrentGuitarsAllLand(t *testing.T) {
	repo := newFakeRepo()
	ctx := testdomain.WithIDGenerator(context.Background(), testdomain.NewSequence())

	_, err := ges.Execute[testdomain.UserDeciderState](
		ctx, repo, testdomain.UserDecider{}, streamIDFor, ges.NewStream(), testdomain.AddUser("Mike"),
	)
	require.NoError(t, err)

	brands := []string{
		"Gibson", "Fender", "Ibanez", "PRS", "Gretsch",
		"Rickenbacker", "Yamaha", "ESP", "Jackson",
	}

	var wg sync.WaitGroup
	errs := make([]error, len(brands))
	for i, brand := range brands {
		wg.Add(1)
		go func(i int, brand string) {
			defer wg.Done()
			_, err := ges.Execute[testdomain.UserDeciderState](
				ctx, repo, testdomain.UserDecider{}, streamIDFor, ges.ExistingStream("test-1"),
				testdomain.AddGuitar(1, brand),
			)
			errs[i] = err
		}(i, brand)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "brand %s", brands[i])
	}

	state, err := ges.LoadStateByID[testdomain.UserDeciderState](ctx, repo, testdomain.UserDecider{}, "test-1")
	require.NoError(t, err)
	require.Len(t, state.Users[1].Guitars, len(brands))
	for _, brand := range brands {
		require.Contains(t, state.Users[1].Guitars, testdomain.Guitar{Brand: brand})
	}

	events, _, err := repo.Load(ctx, "test-1")
	require.NoError(t, err)
	require.Len(t, events, 1+len(brands), "one UserAdded plus one UserGuitarAdded per brand, none lost or duplicated")
}

// Empty events on an Existing target is a legal no-op: nothing is
// appended, no error is returned.
func TestExecute_EmptyEventsOnExisting(t *testing.T) {
	repo := newFakeRepo()
	ctx := context.Background()
	_, _, err := repo.Append(ctx, ges.NoStreamVersion[int64](), "test-1", []ges.Event{
		testdomain.UserAdded{ID: 1, Name: mustName(t, "Mike")},
	})
	require.NoError(t, err)

	noop := noopDecider{}
	events, err := ges.Execute[struct{}](ctx, repo, noop, streamIDFor, ges.ExistingStream("test-1"), struct{}{})
	require.NoError(t, err)
	require.Nil(t, events)

	stored, _, _ := repo.Load(ctx, "test-1")
	require.Len(t, stored, 1, "a no-op decide must not touch the stream")
}

// A stale ExistingStream target whose conflict resolves to NoStream — the
// repository's history vanished or was never there — cannot be fixed by
// retrying, so Execute reports ErrVersionStuck immediately.
func TestExecute_StaleExistingStreamReturnsVersionStuck(t *testing.T) {
	repo := newFakeRepo()
	ctx := context.Background()

	_, _, err := repo.Append(ctx, ges.NoStreamVersion[int64](), "test-1", []ges.Event{
		testdomain.UserAdded{ID: 1, Name: mustName(t, "Mike")},
	})
	require.NoError(t, err)

	repo.beforeAppend = func() {
		// Drop the stream entirely between Load and Append: the conflict
		// this produces has Actual == NoStream, which no catch-up can fix.
		repo.mu.Lock()
		delete(repo.streams, "test-1")
		repo.mu.Unlock()
	}

	_, err = ges.Execute[testdomain.UserDeciderState](
		ctx, repo, testdomain.UserDecider{}, streamIDFor, ges.ExistingStream("test-1"),
		testdomain.AddGuitar(1, "Fender"),
	)
	require.ErrorIs(t, err, ges.ErrVersionStuck)
}

func mustName(t *testing.T, candidate string) testdomain.UserName {
	t.Helper()
	name, err := testdomain.NewUserName(candidate)
	require.NoError(t, err)
	return name
}

type noopDecider struct{}

func (noopDecider) Init() struct{}                                       { return struct{}{} }
func (noopDecider) Evolve(s struct{}, _ ges.Event) struct{}              { return s }
func (noopDecider) Decide(context.Context, struct{}, struct{}) ([]ges.Event, error) {
	return nil, nil
}
