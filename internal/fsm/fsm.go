// Package fsm holds the client-session state machine.
package fsm

import (
	"errors"
	"fmt"
)

type State string

type Event string

const (
	StateNoClient  State = "no_client"
	StateConnected State = "connected"
)

const (
	EventAccept Event = "accept"
	EventClose  Event = "close"
)

// ErrBusy is returned when a connection is accepted while a client is attached.
var ErrBusy = errors.New("a client is already connected")

func Transition(current State, event Event) (State, error) {
	switch current {
	case StateNoClient:
		switch event {
		case EventAccept:
			return StateConnected, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateConnected:
		switch event {
		case EventClose:
			return StateNoClient, nil
		case EventAccept:
			return current, ErrBusy
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
