package testdomain

import (
	"context"
	"errors"
	"fmt"

	"github.com/epochal/ges"
)

// UserCommand is the sum of commands UserDecider accepts.
type UserCommand struct {
	kind   userCmdKind
	name   string
	userID int
	guitar Guitar
}

type userCmdKind int

const (
	cmdAddUser userCmdKind = iota
	cmdUpdateUserName
	cmdAddGuitar
)

func AddUser(name string) UserCommand { return UserCommand{kind: cmdAddUser, name: name} }

func UpdateUserName(userID int, name string) UserCommand {
	return UserCommand{kind: cmdUpdateUserName, userID: userID, name: name}
}

func AddGuitar(userID int, brand string) UserCommand {
	return UserCommand{kind: cmdAddGuitar, userID: userID, guitar: Guitar{Brand: brand}}
}

// UserAdded is emitted when a new user is created. It implements
// ges.EntityIdentified so Execute can derive a brand-new stream's id from
// it without the caller knowing the id up front.
type UserAdded struct {
	ID   int
	Name UserName
}

func (e UserAdded) EventType() string { return "UserAdded" }
func (e UserAdded) EntityID() string  { return fmt.Sprintf("%d", e.ID) }

// UserNameUpdated is emitted when an existing user's name changes.
type UserNameUpdated struct {
	UserID int
	Name   UserName
}

func (e UserNameUpdated) EventType() string { return "UserNameUpdated" }
func (e UserNameUpdated) EntityID() string  { return fmt.Sprintf("%d", e.UserID) }

// UserGuitarAdded is emitted when a guitar is attached to a user.
type UserGuitarAdded struct {
	UserID int
	Guitar Guitar
}

func (e UserGuitarAdded) EventType() string { return "UserGuitarAdded" }
func (e UserGuitarAdded) EntityID() string  { return fmt.Sprintf("%d", e.UserID) }

// UserDeciderState is the read model UserDecider folds events into.
type UserDeciderState struct {
	Users map[int]User
}

// ErrUserNotFound is returned when a command targets an unknown user id.
var ErrUserNotFound = errors.New("testdomain: user not found")

// ErrAlreadyHasGuitar is returned when AddGuitar targets a guitar the user
// already owns.
var ErrAlreadyHasGuitar = errors.New("testdomain: user already has this guitar")

// UserDecider is the pure command-handler/fold pair for the users-and-
// guitars sample domain, grounded in the Rust original's UserDecider.
type UserDecider struct{}

func (UserDecider) Init() UserDeciderState {
	return UserDeciderState{Users: map[int]User{}}
}

func (UserDecider) Evolve(state UserDeciderState, event ges.Event) UserDeciderState {
	switch e := event.(type) {
	case UserAdded:
		state.Users[e.ID] = newUser(e.ID, e.Name)
	case UserNameUpdated:
		u := state.Users[e.UserID]
		u.Name = e.Name
		state.Users[e.UserID] = u
	case UserGuitarAdded:
		u := state.Users[e.UserID]
		u.Guitars[e.Guitar] = struct{}{}
		state.Users[e.UserID] = u
	}
	return state
}

func (UserDecider) Decide(ctx context.Context, state UserDeciderState, cmd UserCommand) ([]ges.Event, error) {
	switch cmd.kind {
	case cmdAddUser:
		name, err := NewUserName(cmd.name)
		if err != nil {
			return nil, err
		}
		id := idGeneratorFrom(ctx).Next()
		return []ges.Event{UserAdded{ID: id, Name: name}}, nil

	case cmdUpdateUserName:
		name, err := NewUserName(cmd.name)
		if err != nil {
			return nil, err
		}
		return []ges.Event{UserNameUpdated{UserID: cmd.userID, Name: name}}, nil

	case cmdAddGuitar:
		user, ok := state.Users[cmd.userID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUserNotFound, cmd.userID)
		}
		if _, has := user.Guitars[cmd.guitar]; has {
			return nil, fmt.Errorf("%w: %v", ErrAlreadyHasGuitar, cmd.guitar)
		}
		return []ges.Event{UserGuitarAdded{UserID: cmd.userID, Guitar: cmd.guitar}}, nil

	default:
		return nil, fmt.Errorf("testdomain: unknown command")
	}
}
