// Package filing defines the complaint filing state machine.
// This is part of the Functional Core - no I/O, only pure functions.
package filing

import "fmt"

// State is a step of a filing attempt.
type State string

const (
	StateInit                   State = "INIT"
	StateAuthenticating         State = "AUTHENTICATING"
	StateFormFilling            State = "FORM_FILLING"
	StateAwaitingHumanChallenge State = "AWAITING_HUMAN_CHALLENGE"
	StateSubmitting             State = "SUBMITTING"
	StateConfirmed              State = "CONFIRMED"
	StateFailed                 State = "FAILED"
	StateDryRunHalted           State = "DRY_RUN_HALTED"
)

// transitions lists the legal successors of each non-terminal state.
// FAILED is reachable from every non-terminal state and is not listed.
var transitions = map[State][]State{
	StateInit:                   {StateAuthenticating},
	StateAuthenticating:         {StateFormFilling, StateAwaitingHumanChallenge},
	StateFormFilling:            {StateAwaitingHumanChallenge, StateSubmitting},
	StateAwaitingHumanChallenge: {StateSubmitting, StateAuthenticating, StateFormFilling},
	StateSubmitting:             {StateConfirmed, StateDryRunHalted},
}

// IsTerminal reports whether no further transition is possible from s.
func IsTerminal(s State) bool {
	return s == StateConfirmed || s == StateFailed || s == StateDryRunHalted
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to State) bool {
	if IsTerminal(from) {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Machine tracks the current state and the path taken.
type Machine struct {
	current State
	history []State
}

// NewMachine returns a machine in INIT.
func NewMachine() *Machine {
	return &Machine{current: StateInit, history: []State{StateInit}}
}

// Current returns the current state.
func (m *Machine) Current() State {
	return m.current
}

// History returns every state visited, in order.
func (m *Machine) History() []State {
	return append([]State(nil), m.history...)
}

// Advance moves to next, refusing illegal steps.
func (m *Machine) Advance(next State) error {
	if !CanTransition(m.current, next) {
		return fmt.Errorf("illegal filing transition %s -> %s", m.current, next)
	}
	m.current = next
	m.history = append(m.history, next)
	return nil
}

// Fail moves to FAILED unless already terminal. It reports whether it moved.
func (m *Machine) Fail() bool {
	if IsTerminal(m.current) {
		return false
	}
	m.current = StateFailed
	m.history = append(m.history, StateFailed)
	return true
}
