/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"errors"
	"fmt"
)

// ErrInvalidInterval is returned when the scheduler is configured with a non-positive dispatch interval.
var ErrInvalidInterval = errors.New("dispatch interval must be positive")

// ErrNilOperation is returned when a nil operation is submitted.
var ErrNilOperation = errors.New("operation is nil")

// ErrStopped is returned by Submit after the scheduler has been stopped.
// Requests that were still waiting when the scheduler was stopped non-gracefully are rejected with it too.
var ErrStopped = errors.New("scheduler is stopped")

// PanicError wraps a value recovered from a panicking operation.
type PanicError struct {
	Value interface{}
	Stack []byte
}

// Error returns a string representation of the recovered panic.
func (e *PanicError) Error() string {
	return fmt.Sprintf("operation panicked: %v", e.Value)
}

// Unwrap returns the recovered value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
