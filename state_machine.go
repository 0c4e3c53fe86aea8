package fintrack

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidTransition = "INVALID_SESSION_STATE_TRANSITION"
)

// ErrInvalidStateTransition is returned when a requested session state
// change is not allowed.
var ErrInvalidStateTransition = goerrors.New("invalid session state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// SessionState is the lifecycle state of a Session.
type SessionState string

const (
	// StateUninitialized is the zero state before Bootstrap is called.
	StateUninitialized SessionState = "uninitialized"
	// StateBootstrapping covers the initial subscription window and any
	// in-flight login or registration; loading=true maps here.
	StateBootstrapping SessionState = "bootstrapping"
	// StateAuthenticated means a credential and profile are installed.
	StateAuthenticated SessionState = "authenticated"
	// StateUnauthenticated means the session settled with no credential.
	StateUnauthenticated SessionState = "unauthenticated"
)

var sessionTransitions = map[SessionState]map[SessionState]struct{}{
	StateUninitialized: {
		StateBootstrapping: {},
	},
	StateBootstrapping: {
		StateAuthenticated:   {},
		StateUnauthenticated: {},
	},
	StateAuthenticated: {
		// Self-transition: profile refresh or credential relink.
		StateAuthenticated:   {},
		StateBootstrapping:   {},
		StateUnauthenticated: {},
	},
	StateUnauthenticated: {
		StateBootstrapping:   {},
		StateAuthenticated:   {},
		StateUnauthenticated: {},
	},
}

func canTransition(from, to SessionState) bool {
	if allowed, ok := sessionTransitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// Loading reports whether the state counts as loading for route guarding;
// while true, the current user must not be treated as authoritative.
func (s SessionState) Loading() bool {
	return s == StateUninitialized || s == StateBootstrapping
}

// Settled reports whether the session reached a terminal-per-cycle state.
func (s SessionState) Settled() bool {
	return s == StateAuthenticated || s == StateUnauthenticated
}
