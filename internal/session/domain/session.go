// Package domain defines the session record and its lifecycle state machine.
package domain

import (
	"errors"
	"time"
)

// State is the lifecycle state of an attribute-exchange session.
type State string

const (
	// StateCreated is the initial state after session creation.
	StateCreated State = "created"
	// StateAwaitingAuthentication means the provider redirect has been issued.
	StateAwaitingAuthentication State = "awaiting_authentication"
	// StateAttributesReceived means a valid assertion populated the attributes.
	StateAttributesReceived State = "attributes_received"
	// StateCommunicationStarted means the communication channel reported start.
	StateCommunicationStarted State = "communication_started"
	// StateCompleted is the terminal success state.
	StateCompleted State = "completed"
	// StateFailed is the terminal failure state; FailureReason carries the cause.
	StateFailed State = "failed"
	// StateExpired is the terminal state for sessions past their deadline.
	StateExpired State = "expired"
)

// ErrUnknownState is returned when parsing an unrecognized state value.
var ErrUnknownState = errors.New("unknown session state")

// ParseState converts a stored state column value into a State.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StateCreated, StateAwaitingAuthentication, StateAttributesReceived,
		StateCommunicationStarted, StateCompleted, StateFailed, StateExpired:
		return State(s), nil
	}
	return "", ErrUnknownState
}

// Terminal reports whether s is a terminal state. Terminal states are
// irreversible; no transition leaves them.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateExpired
}

// transitions is the authoritative transition table. Failed and Expired are
// reachable from every non-terminal state and are therefore handled in
// CanTransition rather than listed here.
var transitions = map[State][]State{
	StateCreated:                {StateAwaitingAuthentication},
	StateAwaitingAuthentication: {StateAttributesReceived},
	StateAttributesReceived:     {StateCommunicationStarted},
	StateCommunicationStarted:   {StateCompleted},
}

// CanTransition reports whether from → to is a legal transition.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed || to == StateExpired {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Session is one attribute-exchange flow. The store owns the record; all
// mutation goes through its compare-and-transition contract.
type Session struct {
	ID               string
	State            State
	Purpose          string
	AttestationScope []string
	// Attributes is nil until the session reaches StateAttributesReceived and
	// immutable afterwards.
	Attributes    map[string]string
	FailureReason string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Expired reports whether the session deadline has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// EffectiveState is the logical state at now: a non-terminal session past its
// deadline reads as StateExpired without requiring a write.
func (s *Session) EffectiveState(now time.Time) State {
	if !s.State.Terminal() && s.Expired(now) {
		return StateExpired
	}
	return s.State
}

// ScopeAllows reports whether every asserted attribute name is within the
// attestation scope fixed at creation. A superset assertion is a violation;
// attributes are never silently truncated to fit.
func (s *Session) ScopeAllows(asserted map[string]string) bool {
	allowed := make(map[string]struct{}, len(s.AttestationScope))
	for _, name := range s.AttestationScope {
		allowed[name] = struct{}{}
	}
	for name := range asserted {
		if _, ok := allowed[name]; !ok {
			return false
		}
	}
	return true
}
