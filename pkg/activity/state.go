// Package activity derives the companion's discrete activity state from
// session events.
//
// Transition is a pure function over (State, Event). Machine wraps it with
// the current value, dwell timers for transient states and idle
// personality ticks, all driven by an injectable clock.
package activity

import (
	"fmt"
	"strings"
	"time"
)

// State is the activity shown by the face renderer.
type State int

const (
	Off State = iota
	Idle
	Listening
	Thinking
	Speaking
	Singing
	Happy
	Sneezing
	Distorted
)

var stateNames = [...]string{
	Off:       "OFF",
	Idle:      "IDLE",
	Listening: "LISTENING",
	Thinking:  "THINKING",
	Speaking:  "SPEAKING",
	Singing:   "SINGING",
	Happy:     "HAPPY",
	Sneezing:  "SNEEZING",
	Distorted: "DISTORTED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseState parses a state name, case-insensitively.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if strings.EqualFold(n, name) {
			return State(i), nil
		}
	}
	return Off, fmt.Errorf("activity: unknown state %q", name)
}

// Transient reports whether s reverts to Idle on its own.
func (s State) Transient() bool {
	return Dwell(s) > 0
}

// Dwell returns how long a transient state lasts before reverting to Idle.
// Non-transient states return 0.
func Dwell(s State) time.Duration {
	switch s {
	case Sneezing:
		return 800 * time.Millisecond
	case Singing:
		return 3000 * time.Millisecond
	case Happy:
		return 2000 * time.Millisecond
	case Distorted:
		return 600 * time.Millisecond
	default:
		return 0
	}
}

// PersonalityStates are the excursions an idle tick can pick from.
var PersonalityStates = []State{Sneezing, Singing, Happy}
