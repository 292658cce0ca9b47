// Package fsm defines the pipeline lifecycle states and their legal transitions.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

const (
	EventStart  Event = "start"
	EventStop   Event = "stop"
	EventHalted Event = "halted"
	EventReset  Event = "reset"
)

// Transition returns the state reached by applying event to current.
// On an illegal move it returns current unchanged together with an error.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle, StateStopped:
		switch event {
		case EventStart:
			return StateRunning, nil
		case EventReset:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRunning:
		switch event {
		case EventStop:
			return StateStopping, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStopping:
		switch event {
		case EventHalted:
			return StateStopped, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// Active reports whether worker goroutines may still be alive in state s.
func (s State) Active() bool {
	return s == StateRunning || s == StateStopping
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
