/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

// Future is a handle for the eventual outcome of a submitted operation.
// It is completed exactly once, either with the operation's value or with its last error.
type Future struct {
	id       string
	done     chan struct{}
	once     sync.Once
	value    interface{}
	err      error
	state    atomic.Int32
	attempts atomic.Int32
}

func newFuture(id string) *Future {
	f := &Future{id: id, done: make(chan struct{})}
	f.state.Store(int32(StateWaiting))
	return f
}

// ID returns the unique identifier of the request. The same value is logged as "request_id".
func (f *Future) ID() string {
	return f.id
}

// Done returns a channel that is closed when the request is resolved or rejected.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the request is completed or ctx is done.
// In the latter case ctx.Err() is returned and the request stays in the scheduler.
func (f *Future) Wait(ctx context.Context) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result blocks until the request is completed and returns its outcome.
func (f *Future) Result() (interface{}, error) {
	<-f.done
	return f.value, f.err
}

// Attempts returns how many times the operation has been executed so far.
func (f *Future) Attempts() int {
	return int(f.attempts.Load())
}

// State returns the current state of the request.
func (f *Future) State() State {
	return State(f.state.Load())
}

func (f *Future) setState(state State) {
	f.state.Store(int32(state))
}

// complete stores the outcome and closes the done channel.
// It returns false if the future has already been completed.
func (f *Future) complete(state State, value interface{}, err error) bool {
	completed := false
	f.once.Do(func() {
		f.value, f.err = value, err
		f.state.Store(int32(state))
		close(f.done)
		completed = true
	})
	return completed
}
