/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient provides an HTTP client that sends requests through scheduler.Scheduler,
// so an external API is called at a fixed pace with prioritization and retries.
package httpclient

import (
	"net/http"
	"time"

	"github.com/acronis/go-slowrate/log"
	"github.com/acronis/go-slowrate/scheduler"
)

// Opts provides options for NewWithOpts function.
type Opts struct {
	// Delegate is the next RoundTripper in the chain.
	// By default, a clone of http.DefaultTransport is used.
	Delegate http.RoundTripper

	// Logger is used for logging.
	Logger log.FieldLogger

	// CheckRetry determines if another attempt is needed.
	// By default, DefaultCheckRetry function is used.
	CheckRetry CheckRetryFunc

	// Timeout limits the whole request including the time it waits in the scheduler queue.
	// Zero means no timeout.
	Timeout time.Duration
}

// New returns an HTTP client that sends all requests through the given scheduler.
func New(s *scheduler.Scheduler) *http.Client {
	return NewWithOpts(s, Opts{})
}

// NewWithOpts returns an HTTP client that sends all requests through the given scheduler with options.
func NewWithOpts(s *scheduler.Scheduler, opts Opts) *http.Client {
	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}
	transport := NewSchedulingRoundTripperWithOpts(delegate, s, SchedulingRoundTripperOpts{
		CheckRetry: opts.CheckRetry,
		Logger:     opts.Logger,
	})
	return &http.Client{Transport: transport, Timeout: opts.Timeout}
}
