package controller

import "tcpassist/internal/transport"

// Style is a display hint attached to every status notification.
type Style int

const (
	StyleIdle    Style = iota // disconnected; plain text
	StylePending              // connecting; blue
	StyleActive               // connected; red
)

func (s Style) String() string {
	switch s {
	case StyleIdle:
		return "idle"
	case StylePending:
		return "pending"
	case StyleActive:
		return "active"
	default:
		return "unknown"
	}
}

// Status is the connection state as shown to the user.
type Status struct {
	State transport.State
	Style Style
}

// StatusOf returns the Status for a connection state.
func StatusOf(st transport.State) Status {
	switch st {
	case transport.StateConnecting:
		return Status{State: st, Style: StylePending}
	case transport.StateConnected:
		return Status{State: st, Style: StyleActive}
	default:
		return Status{State: transport.StateDisconnected, Style: StyleIdle}
	}
}

func (s Status) String() string { return s.State.String() }
