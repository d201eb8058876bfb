// Package testdomain is a small users-and-guitars sample domain used only
// from this repository's own tests. It is ported from the Rust original's
// test_helpers::user module: a UserDecider that adds users, renames them,
// and attaches guitars, with the id-generation and validation rules that
// exercise the retry loop's catch-up and tie-break behavior.
package testdomain

import (
	"context"
	"errors"
	"fmt"
)

// User is the materialized read model for a single user.
type User struct {
	ID      int
	Name    UserName
	Guitars map[Guitar]struct{}
}

func newUser(id int, name UserName) User {
	return User{ID: id, Name: name, Guitars: map[Guitar]struct{}{}}
}

// Guitar is a user's guitar, identified by brand. Comparable: it is used as
// a set element, mirroring the Rust original's HashSet<Guitar>.
type Guitar struct {
	Brand string
}

// UserName is a validated, non-empty, at-most-ten-byte user name.
type UserName struct {
	value string
}

// ErrEmptyName is returned by NewUserName for an empty candidate name.
var ErrEmptyName = fmt.Errorf("testdomain: user name cannot be empty")

// ErrNameTooLong is the sentinel matched by errors.Is against any
// *NameTooLongError, mirroring the Rust original's distinguishable
// UserFieldError::NameToLong variant.
var ErrNameTooLong = errors.New("testdomain: user name is too long")

// NameTooLongError carries the rejected candidate, the Go rendition of the
// Rust original's NameToLong(String) variant.
type NameTooLongError struct {
	Candidate string
}

func (e *NameTooLongError) Error() string {
	return fmt.Sprintf("testdomain: user name %q is too long", e.Candidate)
}

func (e *NameTooLongError) Is(target error) bool {
	return target == ErrNameTooLong
}

// NewUserName validates a candidate name against the same two rules the
// Rust original's UserName::try_from enforces.
func NewUserName(candidate string) (UserName, error) {
	switch {
	case len(candidate) < 1:
		return UserName{}, ErrEmptyName
	case len(candidate) > 10:
		return UserName{}, &NameTooLongError{Candidate: candidate}
	default:
		return UserName{value: candidate}, nil
	}
}

func (n UserName) String() string { return n.value }

// idSequenceKey is the context key an id generator is threaded through,
// the Go rendition of the Rust original's UserDeciderCtx.id_sequence.
type idSequenceKey struct{}

// IDGenerator hands out unique user ids. The in-process sequence below
// starts at 1, matching scenario S1's expectation that the first added
// user is assigned id 1.
type IDGenerator interface {
	Next() int
}

// NewSequence returns an IDGenerator that counts up from 1.
func NewSequence() IDGenerator {
	return &sequence{next: 1}
}

type sequence struct{ next int }

func (s *sequence) Next() int {
	id := s.next
	s.next++
	return id
}

// WithIDGenerator threads an IDGenerator through ctx for UserDecider.Decide
// to consume — the Go equivalent of the Rust original's DeciderWithContext.
func WithIDGenerator(ctx context.Context, gen IDGenerator) context.Context {
	return context.WithValue(ctx, idSequenceKey{}, gen)
}

func idGeneratorFrom(ctx context.Context) IDGenerator {
	gen, ok := ctx.Value(idSequenceKey{}).(IDGenerator)
	if !ok {
		return NewSequence()
	}
	return gen
}
