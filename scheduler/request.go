/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"context"
	"time"
)

// Operation is a unit of work executed by Scheduler.
// ctx is the context passed to Submit.
type Operation func(ctx context.Context) (interface{}, error)

// State is a lifecycle state of a submitted request.
type State int

// Request states.
// A request moves from StateWaiting to StateProcessing on dispatch,
// and then either to one of the terminal states or back to StateWaiting if another attempt is allowed.
const (
	StateWaiting State = iota
	StateProcessing
	StateResolved
	StateRejected
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateProcessing:
		return "processing"
	case StateResolved:
		return "resolved"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

// IsTerminal reports whether no further transitions are possible from the state.
func (s State) IsTerminal() bool {
	return s == StateResolved || s == StateRejected
}

type request struct {
	id       string
	ctx      context.Context
	op       Operation
	priority int
	seq      uint64
	future   *Future

	// Fields below are guarded by Scheduler.mu.
	state             State
	remainingAttempts int
	attempts          int
	submittedAt       time.Time
	enqueuedAt        time.Time
}

// compareRequests orders requests by priority (higher first), then by submission order (earlier first).
// Sequence numbers are unique within a Scheduler, so distinct requests never compare as equal.
func compareRequests(a, b *request) int {
	switch {
	case a.priority > b.priority:
		return 1
	case a.priority < b.priority:
		return -1
	case a.seq < b.seq:
		return 1
	case a.seq > b.seq:
		return -1
	}
	return 0
}
