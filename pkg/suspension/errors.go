package suspension

import "errors"

var (
	// ErrNotFound is returned when the target principal does not exist.
	ErrNotFound = errors.New("principal not found")

	// ErrAlreadyInTargetState is returned by Suspend on an already-
	// suspended principal and by Resume on an already-active one. The
	// transition is rejected, not silently accepted: callers need to
	// distinguish "nothing changed" from "I just disabled someone".
	ErrAlreadyInTargetState = errors.New("principal already in target state")
)
