package ges

import (
	"context"
	"errors"
	"time"
)

// StreamState names the target of a Load-Decide-Append call: either a
// brand-new aggregate with no id yet, or an existing one addressed by id.
// For New, the stream id is derived from the first event Decide produces
// — it is never known before Decide runs.
type StreamState struct {
	existing bool
	id       string
}

// NewStream targets a brand-new aggregate whose stream id will be derived
// from the first event its decider produces.
func NewStream() StreamState { return StreamState{} }

// ExistingStream targets an aggregate already known by id.
func ExistingStream(id string) StreamState { return StreamState{existing: true, id: id} }

// executeConfig holds the options ExecuteOption mutates.
type executeConfig struct {
	maxRetries int
	backoff    func(attempt int) time.Duration
}

// ExecuteOption configures Execute/ExecuteReifyDecide.
type ExecuteOption func(*executeConfig)

// WithMaxRetries overrides the default 20 OCC retry attempts.
func WithMaxRetries(n int) ExecuteOption {
	return func(c *executeConfig) { c.maxRetries = n }
}

// WithBackoff overrides the default linear 100ms*attempt backoff (capped
// at 2s). Substituting capped exponential backoff here does not change
// observable correctness (spec §9's design note).
func WithBackoff(f func(attempt int) time.Duration) ExecuteOption {
	return func(c *executeConfig) { c.backoff = f }
}

func defaultBackoff(attempt int) time.Duration {
	d := time.Duration(attempt) * 100 * time.Millisecond
	const cap = 2 * time.Second
	if d > cap {
		return cap
	}
	return d
}

func newExecuteConfig(opts []ExecuteOption) executeConfig {
	cfg := executeConfig{maxRetries: 20, backoff: defaultBackoff}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Execute is the Load-Decide-Append strategy (C7): the OCC
// command-execution loop binding a Decider to a versioned, stream-scoped
// EventRepository. It loads the target stream's history, folds it through
// the decider's Evolver, invokes Decide, and attempts to append the
// resulting events at the observed version. On a version conflict it
// reloads only the tail (catch-up), folds the new events in, and retries
// the whole decide-append cycle — because Decide is pure, a conflict
// means the premise changed and the command must be re-evaluated against
// the new state, possibly yielding different events or a different error.
func Execute[State any, Cmd any, V comparable](
	ctx context.Context,
	repo EventRepository[V],
	decider Decider[State, Cmd],
	streamIDFor StreamIDFunc,
	stream StreamState,
	cmd Cmd,
	opts ...ExecuteOption,
) ([]Event, error) {
	cfg := newExecuteConfig(opts)

	var history []Event
	var version Version[V]
	var err error

	if stream.existing {
		history, version, err = repo.Load(ctx, stream.id)
		if err != nil {
			return nil, &RepositoryError{Cause: err}
		}
	} else {
		version = NoStreamVersion[V]()
	}

	state := decider.Init()

	for attempt := 1; attempt <= cfg.maxRetries; attempt++ {
		state = Fold(decider, state, history)
		history = nil

		newEvents, decideErr := decider.Decide(ctx, state, cmd)
		if decideErr != nil {
			return nil, &DomainError{Cause: decideErr}
		}

		if len(newEvents) == 0 {
			// Legal no-op: on New this never creates a stream; on
			// Existing it leaves the stream untouched.
			return nil, nil
		}

		// For a New stream, the candidate id is re-derived from Decide's
		// fresh output on every attempt — never fixed after the first —
		// so that a loser of a concurrent first-write race observes the
		// winner's events on catch-up and re-decides against them (the
		// tie-break rationale in spec §4.6).
		streamID := stream.id
		if !stream.existing {
			entityID, ok := EntityID(newEvents[0])
			if !ok {
				return nil, &RepositoryError{Cause: errors.New("ges: first event from a new stream must implement EntityIdentified")}
			}
			streamID = streamIDFor(entityID)
		}

		appended, _, appendErr := repo.Append(ctx, version, streamID, newEvents)
		if appendErr == nil {
			return appended, nil
		}

		var conflict *VersionConflictError[V]
		if !errors.As(appendErr, &conflict) {
			return nil, &RepositoryError{Cause: appendErr}
		}

		if stream.existing && conflict.Diff.Actual.IsNoStream() {
			return nil, ErrVersionStuck
		}

		select {
		case <-ctx.Done():
			return nil, &RepositoryError{Cause: ctx.Err()}
		case <-time.After(cfg.backoff(attempt)):
		}

		tail, newVersion, loadErr := repo.LoadFrom(ctx, version, streamID)
		if loadErr != nil {
			return nil, &RepositoryError{Cause: loadErr}
		}
		history = tail
		version = newVersion
	}

	return nil, ErrMaxRetries
}

// ExecuteReifyDecide is the Reify-Decide-Save strategy (C8): the same
// decide-then-write loop as Execute, but against a SnapshotRepository
// instead of an event log. A version conflict never needs catch-up — the
// snapshot is authoritative, so a losing writer simply re-reifies.
func ExecuteReifyDecide[State any, Cmd any, V comparable](
	ctx context.Context,
	repo SnapshotRepository[V, State],
	decider Decider[State, Cmd],
	streamID string,
	cmd Cmd,
	opts ...ExecuteOption,
) (State, error) {
	cfg := newExecuteConfig(opts)

	snap, err := repo.Reify(ctx, streamID)
	if err != nil {
		var zero State
		return zero, &RepositoryError{Cause: err}
	}
	state := snap.State
	version := snap.Version
	if !snap.Found {
		state = decider.Init()
	}

	for attempt := 1; attempt <= cfg.maxRetries; attempt++ {
		newEvents, decideErr := decider.Decide(ctx, state, cmd)
		if decideErr != nil {
			var zero State
			return zero, &DomainError{Cause: decideErr}
		}

		newState := Fold(decider, state, newEvents)

		savedVersion, saveErr := repo.Save(ctx, version, streamID, newState)
		if saveErr == nil {
			_ = savedVersion
			return newState, nil
		}

		var conflict *VersionConflictError[V]
		if !errors.As(saveErr, &conflict) {
			var zero State
			return zero, &RepositoryError{Cause: saveErr}
		}

		select {
		case <-ctx.Done():
			var zero State
			return zero, &RepositoryError{Cause: ctx.Err()}
		case <-time.After(cfg.backoff(attempt)):
		}

		snap, err = repo.Reify(ctx, streamID)
		if err != nil {
			var zero State
			return zero, &RepositoryError{Cause: err}
		}
		state = snap.State
		version = snap.Version
	}

	var zero State
	return zero, ErrMaxRetries
}

// LoadState is the State-from-events strategy (C6): it folds the category
// — every per-entity stream under the repository's configured category
// name — through the Evolver and returns the resulting State.
func LoadState[State any, V comparable](ctx context.Context, repo EventRepository[V], ev Evolver[State]) (State, error) {
	events, _, err := repo.Load(ctx, "")
	if err != nil {
		var zero State
		return zero, &RepositoryError{Cause: err}
	}
	return Fold(ev, ev.Init(), events), nil
}

// LoadStateByID folds a single stream through the Evolver and returns the
// resulting State.
func LoadStateByID[State any, V comparable](ctx context.Context, repo EventRepository[V], ev Evolver[State], streamID string) (State, error) {
	events, _, err := repo.Load(ctx, streamID)
	if err != nil {
		var zero State
		return zero, &RepositoryError{Cause: err}
	}
	return Fold(ev, ev.Init(), events), nil
}

// PreviewResult is the side-effect-free result of Preview: the command
// that was evaluated, the events Decide produced, and the resulting
// State, without touching any repository.
type PreviewResult[State any, Cmd any] struct {
	Cmd    Cmd
	Events []Event
	State  State
}

// Preview decides and folds a command against a given state without
// persisting anything. It supplements spec.md with the Rust original's
// DecideEvolveWithCommandResponse (see SPEC_FULL.md §10): useful for
// command-validation endpoints that want to show the resulting state
// before committing to it.
func Preview[State any, Cmd any](ctx context.Context, decider Decider[State, Cmd], state State, cmd Cmd) (PreviewResult[State, Cmd], error) {
	events, err := decider.Decide(ctx, state, cmd)
	if err != nil {
		return PreviewResult[State, Cmd]{}, &DomainError{Cause: err}
	}
	newState := Fold(decider, state, events)
	return PreviewResult[State, Cmd]{Cmd: cmd, Events: events, State: newState}, nil
}
