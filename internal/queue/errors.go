package queue

import "errors"

var (
	// ErrDuplicateKey is returned by Put when the (scope, stage, sequence) key already exists.
	ErrDuplicateKey = errors.New("work item already exists")
	// ErrTransitionConflict is returned when a guarded status update matched no row,
	// either because the item is gone or because it is no longer in the expected status.
	ErrTransitionConflict = errors.New("work item status changed concurrently")
	// ErrIllegalTransition is returned for a status change outside the state machine.
	ErrIllegalTransition = errors.New("illegal status transition")
)
