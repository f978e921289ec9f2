// Package session binds one verified access token to one client session and
// gates protected operations on it.
//
// The binding moves through three resting states. A fresh client is
// Anonymous. Registration binds a token and the session becomes Pending.
// Every protected request re-checks the token against the token store: a
// valid token moves the session to Authorized for that request, an invalid
// one resets it to Anonymous on the spot.
package session

import (
	"context"
	"errors"

	"github.com/iliyamo/chat-gateway/internal/apperr"
)

type State uint8

const (
	Anonymous State = iota
	Pending
	Authorized
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Authorized:
		return "authorized"
	}
	return "anonymous"
}

type Event uint8

const (
	// EventBound follows a successful registration or reuse.
	EventBound Event = iota + 1
	// EventValidated follows an IsValid check that returned true.
	EventValidated
	// EventRejected follows an IsValid check that returned false.
	EventRejected
	// EventReset is an explicit logout or reset.
	EventReset
)

var (
	ErrNoToken           = errors.New("session: bind requires a token")
	ErrInvalidTransition = errors.New("session: invalid transition")
)

// Access is the per-client binding. Completed and Token are persisted
// together; a value with only one of them set is treated as Anonymous.
type Access struct {
	Completed bool
	Token     string

	validated bool
}

func (a Access) State() State {
	if !a.Completed || a.Token == "" {
		return Anonymous
	}
	if a.validated {
		return Authorized
	}
	return Pending
}

// Bound reports whether a has both halves of the binding set.
func (a Access) Bound() bool { return a.State() != Anonymous }

// Transition is the only way an Access changes. token is used by EventBound
// and ignored otherwise.
func Transition(a Access, ev Event, token string) (Access, error) {
	switch ev {
	case EventBound:
		if token == "" {
			return a, ErrNoToken
		}
		// Binding from any state replaces the previous token.
		return Access{Completed: true, Token: token}, nil
	case EventValidated:
		if a.State() == Anonymous {
			return Access{}, ErrInvalidTransition
		}
		a.validated = true
		return a, nil
	case EventRejected, EventReset:
		return Access{}, nil
	}
	return a, ErrInvalidTransition
}

// Validator is the part of the token store a session check needs.
type Validator interface {
	IsValid(ctx context.Context, token string) (bool, error)
}

// Check runs the per-request gate. It returns the session to persist and an
// error when the request must not proceed:
//
//	not bound        -> Anonymous, KindUnauthorized
//	token not valid  -> Anonymous, KindUnauthorized
//	store failure    -> a unchanged, KindStorageUnavailable
//	otherwise        -> Authorized, nil
func Check(ctx context.Context, a Access, v Validator) (Access, error) {
	const op = "session.check"
	if !a.Bound() {
		return Access{}, apperr.E(apperr.KindUnauthorized, op, "access required", nil)
	}
	ok, err := v.IsValid(ctx, a.Token)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.Storage(op, err)
		}
		return a, err
	}
	if !ok {
		reset, _ := Transition(a, EventRejected, "")
		return reset, apperr.E(apperr.KindUnauthorized, op, "access expired or revoked", nil)
	}
	return Transition(a, EventValidated, "")
}
