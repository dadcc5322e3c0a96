package link

import (
	"errors"
	"fmt"
	"time"
)

// State is the connection lifecycle state of the link
type State int

const (
	Disconnected State = iota
	Scanning
	Connecting
	Discovering
	Ready
	Degraded
	Reconnecting
)

var stateNames = map[State]string{
	Disconnected: "disconnected",
	Scanning:     "scanning",
	Connecting:   "connecting",
	Discovering:  "discovering",
	Ready:        "ready",
	Degraded:     "degraded",
	Reconnecting: "reconnecting",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Usable reports whether GATT operations may be attempted in this state
func (s State) Usable() bool {
	return s == Ready || s == Degraded
}

var (
	// ErrInvalidTransition is returned for a state change the lifecycle does not allow
	ErrInvalidTransition = errors.New("invalid link state transition")

	// ErrNotReady is returned when characteristics are requested while the link is not usable
	ErrNotReady = errors.New("link not ready")
)

// Transition describes one state change
type Transition struct {
	From State
	To   State
	At   time.Time
	Err  error
}

var allowed = map[State][]State{
	Disconnected: {Scanning},
	Scanning:     {Connecting, Reconnecting},
	Connecting:   {Discovering, Reconnecting},
	Discovering:  {Ready, Reconnecting},
	Ready:        {Degraded, Reconnecting},
	Degraded:     {Ready, Reconnecting},
	Reconnecting: {Scanning},
}

// CanTransition reports whether from -> to is part of the lifecycle.
// Every state may move to Disconnected.
func CanTransition(from, to State) bool {
	if to == Disconnected {
		return true
	}
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}
