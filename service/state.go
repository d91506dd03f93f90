// Package service provides the composition-based building block every
// CantinaOS service embeds: lifecycle, subscription tracking, background
// task tracking, status heartbeats, and safe cross-thread posting.
package service

import (
	"errors"
	"fmt"

	"github.com/cantina-os/core/schema"
)

// State is the lifecycle state of a Service.
type State int

const (
	StateUninitialized State = iota
	StateStarting
	StateRunning
	StateDegraded
	StateError
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return string(schema.StateUninitialized)
	case StateStarting:
		return string(schema.StateStarting)
	case StateRunning:
		return string(schema.StateRunning)
	case StateDegraded:
		return string(schema.StateDegraded)
	case StateError:
		return string(schema.StateError)
	case StateStopping:
		return string(schema.StateStopping)
	case StateStopped:
		return string(schema.StateStopped)
	default:
		return "UNKNOWN"
	}
}

// Schema converts s to its schema.ServiceState wire form.
func (s State) Schema() schema.ServiceState {
	return schema.ServiceState(s.String())
}

// ErrInvalidTransition is returned by transitionAllowed when a state
// change is not permitted by the table below.
var ErrInvalidTransition = errors.New("invalid service lifecycle transition")

// allowed enumerates every permitted (from, to) transition. Unlisted pairs
// are rejected by transitionAllowed.
var allowed = map[State]map[State]bool{
	StateUninitialized: {StateStarting: true},
	StateStarting:      {StateRunning: true, StateError: true, StateStopping: true},
	StateRunning:       {StateDegraded: true, StateError: true, StateStopping: true},
	StateDegraded:      {StateRunning: true, StateError: true, StateStopping: true},
	StateError:         {StateStopping: true, StateStarting: true},
	StateStopping:      {StateStopped: true},
	StateStopped:       {},
}

func transitionAllowed(from, to State) error {
	if to == from {
		return nil
	}
	if next, ok := allowed[from]; ok && next[to] {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
