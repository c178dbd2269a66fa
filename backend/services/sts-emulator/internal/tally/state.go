package tally

import (
	"fmt"
	"strings"
)

// State is the tally state of a video source.
type State uint8

const (
	Unselected State = iota
	Selected
	OnAir
)

// cycleOrder is the fixed order used by cycling and by client state assignment.
var cycleOrder = [...]State{Unselected, Selected, OnAir}

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case Unselected:
		return "unselected"
	case Selected:
		return "selected"
	case OnAir:
		return "onair"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the three known states.
func (s State) Valid() bool {
	return s <= OnAir
}

// Next returns the following state in the Unselected -> Selected -> OnAir cycle.
func (s State) Next() State {
	if !s.Valid() {
		return Unselected
	}
	return cycleOrder[(int(s)+1)%len(cycleOrder)]
}

// ParseState accepts the wire names, case-insensitively.
func ParseState(raw string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "unselected":
		return Unselected, nil
	case "selected":
		return Selected, nil
	case "onair":
		return OnAir, nil
	default:
		return 0, fmt.Errorf("tally: unknown state %q", raw)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("tally: invalid state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
