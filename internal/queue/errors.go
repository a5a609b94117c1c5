package queue

import "errors"

var (
	// ErrTerminalState is returned when a transition is requested on an
	// entry already in a terminal state
	ErrTerminalState = errors.New("entry is in a terminal state")

	// ErrUnknownEntry is returned when the entry does not exist
	ErrUnknownEntry = errors.New("unknown queue entry")
)
