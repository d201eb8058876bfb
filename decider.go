package ges

import "context"

// Evolver folds a single event into a State. Evolve must be total and
// deterministic: it must not fail, and must handle every event the paired
// Decider can produce. Init supplies the zero state a fresh fold starts
// from.
type Evolver[State any] interface {
	Init() State
	Evolve(state State, event Event) State
}

// Decider turns a command into the events that should be appended, judged
// against a read-only State. Decide must be pure: no I/O, no clock, no
// RNG unless threaded through ctx by the caller. Returning a nil/empty
// event slice with a nil error is a legal no-op result.
//
// Dependencies a real decider needs (id generators, clocks, external
// validators) travel as context values on ctx; this is the Go rendition
// of the Rust source's separate Ctx associated type (see SPEC_FULL.md
// §4.3): a plain context.Context plus generics covers the same ground
// without an associated-type-heavy interface.
type Decider[State any, Cmd any] interface {
	Evolver[State]
	Decide(ctx context.Context, state State, cmd Cmd) ([]Event, error)
}

// Fold replays events through an Evolver starting from the given state
// (pass ev.Init() for a fresh fold).
// It is the shared implementation behind LoadState, LoadStateByID, and
// the incremental re-fold inside Execute's retry loop.
func Fold[State any](ev Evolver[State], state State, events []Event) State {
	for _, e := range events {
		state = ev.Evolve(state, e)
	}
	return state
}
