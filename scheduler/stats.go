/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import "go.uber.org/atomic"

// Stats is a snapshot of the scheduler counters.
type Stats struct {
	// Submitted is the number of accepted requests.
	Submitted uint64
	// Resolved is the number of requests completed successfully.
	Resolved uint64
	// Rejected is the number of requests completed with an error.
	Rejected uint64
	// Retried is the number of failed attempts after which the request was put back into the queue.
	Retried uint64
	// Waiting is the number of requests in the queue.
	Waiting int
	// InFlight is the number of operations being executed right now (0 or 1).
	InFlight int
}

type statsCounters struct {
	submitted atomic.Uint64
	resolved  atomic.Uint64
	rejected  atomic.Uint64
	retried   atomic.Uint64
	inFlight  atomic.Int32
}

// Stats returns current values of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Submitted: s.stats.submitted.Load(),
		Resolved:  s.stats.resolved.Load(),
		Rejected:  s.stats.rejected.Load(),
		Retried:   s.stats.retried.Load(),
		Waiting:   s.QueueSize(),
		InFlight:  int(s.stats.inFlight.Load()),
	}
}
