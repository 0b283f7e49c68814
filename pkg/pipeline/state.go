package pipeline

import "fmt"

// State is a position in the publish state machine.
type State string

const (
	StateInit             State = "init"
	StateIntegrityChecked State = "integrity-checked"
	StateBuildVerified    State = "build-verified"
	StateArtifactGuarded  State = "artifact-guarded"
	StatePublished        State = "published"
	StateVerified         State = "verified"
	StateDryRunComplete   State = "dry-run-complete"
	StateFailed           State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateVerified, StateDryRunComplete, StateFailed:
		return true
	default:
		return false
	}
}

// Successful reports whether the run ended without a failure.
func (s State) Successful() bool {
	return s == StateVerified || s == StateDryRunComplete
}

func isAllowedTransition(from, to State) bool {
	if to == StateFailed {
		return !from.Terminal()
	}
	switch from {
	case StateInit:
		return to == StateIntegrityChecked
	case StateIntegrityChecked:
		return to == StateBuildVerified
	case StateBuildVerified:
		return to == StateArtifactGuarded || to == StateDryRunComplete
	case StateArtifactGuarded:
		return to == StatePublished
	case StatePublished:
		return to == StateVerified
	default:
		return false
	}
}

// machine enforces the transition table and keeps the visited states.
type machine struct {
	state   State
	history []State
}

func newMachine() *machine {
	return &machine{state: StateInit, history: []State{StateInit}}
}

func (m *machine) transition(to State) error {
	if !isAllowedTransition(m.state, to) {
		return fmt.Errorf("disallowed transition: %s -> %s", m.state, to)
	}
	m.state = to
	m.history = append(m.history, to)
	return nil
}
