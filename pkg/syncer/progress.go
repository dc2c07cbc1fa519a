package syncer

import (
	"fmt"
	"strconv"
)

// State is the phase of a sync run.
type State int

const (
	// StateIdle means no run is active. Every run ends with it.
	StateIdle State = iota

	// StateLoading carries the run's completion percentage.
	StateLoading

	// StateSuccess means every phase completed.
	StateSuccess

	// StateFailure means the run stopped on an error.
	StateFailure
)

var stateNames = map[State]string{
	StateIdle:    "idle",
	StateLoading: "loading",
	StateSuccess: "success",
	StateFailure: "failure",
}

// String returns the lowercase state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, fmt.Errorf("unknown state %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Progress is one observation of a sync run. Values are emitted, never
// mutated.
type Progress struct {
	State State `json:"state"`

	// Percent is set for StateLoading only, in [0, 100].
	Percent int `json:"percent,omitempty"`

	// Message is the failure description for StateFailure. It may be empty.
	Message string `json:"message,omitempty"`
}

// Idle returns the idle progress value.
func Idle() Progress { return Progress{State: StateIdle} }

// Loading returns a loading progress value at percent.
func Loading(percent int) Progress { return Progress{State: StateLoading, Percent: percent} }

// Success returns the success progress value.
func Success() Progress { return Progress{State: StateSuccess} }

// Failure returns a failure progress value with an optional message.
func Failure(message string) Progress { return Progress{State: StateFailure, Message: message} }

// Terminal reports whether p ends a run's work (success or failure).
func (p Progress) Terminal() bool {
	return p.State == StateSuccess || p.State == StateFailure
}

// String implements fmt.Stringer.
func (p Progress) String() string {
	switch p.State {
	case StateLoading:
		return fmt.Sprintf("loading(%d%%)", p.Percent)
	case StateFailure:
		if p.Message == "" {
			return "failure"
		}
		return "failure: " + p.Message
	default:
		return p.State.String()
	}
}
