/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/acronis/go-slowrate/log"
	"github.com/acronis/go-slowrate/retry"
	"github.com/acronis/go-slowrate/scheduler"
)

var errNoResponse = errors.New("both response and round trip error are nil")

// RetryAttemptNumberHeader is an HTTP header name that will contain the serial number of the retry attempt.
const RetryAttemptNumberHeader = "X-Retry-Attempt"

// CheckRetryFunc is called right after every attempt and determines if another attempt is needed.
// A non-nil error means the decision cannot be made, the outcome of the attempt is returned as is.
type CheckRetryFunc func(ctx context.Context, resp *http.Response, roundTripErr error) (bool, error)

// SchedulingRoundTripper wraps an object that implements http.RoundTripper interface
// and sends every HTTP request through scheduler.Scheduler.
// The scheduler defines the pace of sending. Priority and the maximum number of attempts
// may be set per request with NewContextWithPriority and NewContextWithMaxAttempts.
// Failed attempts are put back into the scheduler queue, there is no additional delay between them.
type SchedulingRoundTripper struct {
	// Delegate is an object that implements http.RoundTripper interface
	// and is used for sending HTTP requests under the hood.
	Delegate http.RoundTripper

	// Scheduler dispatches HTTP requests.
	Scheduler *scheduler.Scheduler

	// CheckRetry determines if another attempt is needed.
	// By default, DefaultCheckRetry function is used.
	CheckRetry CheckRetryFunc

	// Logger is used for logging.
	Logger log.FieldLogger
}

// SchedulingRoundTripperOpts represents an options for SchedulingRoundTripper.
type SchedulingRoundTripperOpts struct {
	// CheckRetry determines if another attempt is needed.
	// By default, DefaultCheckRetry function is used.
	CheckRetry CheckRetryFunc

	// Logger is used for logging.
	Logger log.FieldLogger
}

// NewSchedulingRoundTripper returns a new instance of SchedulingRoundTripper.
func NewSchedulingRoundTripper(delegate http.RoundTripper, s *scheduler.Scheduler) *SchedulingRoundTripper {
	return NewSchedulingRoundTripperWithOpts(delegate, s, SchedulingRoundTripperOpts{})
}

// NewSchedulingRoundTripperWithOpts creates a new instance of SchedulingRoundTripper with specified options.
func NewSchedulingRoundTripperWithOpts(
	delegate http.RoundTripper, s *scheduler.Scheduler, opts SchedulingRoundTripperOpts,
) *SchedulingRoundTripper {
	if opts.CheckRetry == nil {
		opts.CheckRetry = DefaultCheckRetry
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	return &SchedulingRoundTripper{
		Delegate:   delegate,
		Scheduler:  s,
		CheckRetry: opts.CheckRetry,
		Logger:     opts.Logger,
	}
}

// RoundTrip submits the request into the scheduler and waits until it is sent.
// If all attempts end with a retryable status code, the response of the last attempt is returned.
func (rt *SchedulingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		originalReqBody := req.Body
		defer func() {
			_ = originalReqBody.Close() // Per RoundTripper contract.
		}()
	}

	ctx := req.Context()
	req = req.Clone(ctx) // Per RoundTripper contract.
	rewindReqBody, err := makeRequestBodyRewindable(req)
	if err != nil {
		return nil, &SchedulingRoundTripperError{Inner: err}
	}

	sender := &attemptSender{rt: rt, req: req, rewindReqBody: rewindReqBody}
	future, err := rt.Scheduler.SubmitWithOpts(ctx, sender.send, scheduler.SubmitOpts{
		Priority:    GetPriorityFromContext(ctx),
		MaxAttempts: GetMaxAttemptsFromContext(ctx),
	})
	if err != nil {
		return nil, &SchedulingRoundTripperError{Inner: err}
	}

	select {
	case <-future.Done():
	case <-ctx.Done():
		go sender.discardWhenDone(future)
		return nil, ctx.Err()
	}

	value, err := future.Result()
	if err == nil {
		return value.(*http.Response), nil
	}
	var statusErr *retryableStatusError
	if errors.As(err, &statusErr) {
		return statusErr.resp, nil
	}
	if sender.lastResp != nil {
		drainResponseBody(sender.lastResp, rt.Logger)
	}
	return nil, err
}

// attemptSender sends the request once per scheduler dispatch.
// Dispatches of a single request never overlap, so no synchronization is needed.
type attemptSender struct {
	rt            *SchedulingRoundTripper
	req           *http.Request
	rewindReqBody rewindFunc
	attempts      int
	lastResp      *http.Response
}

func (s *attemptSender) send(ctx context.Context) (interface{}, error) {
	s.attempts++
	if s.attempts > 1 {
		if s.lastResp != nil {
			drainResponseBody(s.lastResp, s.rt.Logger)
			s.lastResp = nil
		}
		if err := s.rewindReqBody(s.req); err != nil {
			s.rt.Logger.Error(fmt.Sprintf(
				"failed to rewind request body between attempts, %d request(s) done", s.attempts-1), log.Error(err))
			return nil, retry.Permanent(&SchedulingRoundTripperError{Inner: err})
		}
		s.req.Header.Set(RetryAttemptNumberHeader, strconv.Itoa(s.attempts-1))
	}

	resp, roundTripErr := s.rt.Delegate.RoundTrip(s.req)

	needRetry, checkErr := s.rt.CheckRetry(ctx, resp, roundTripErr)
	if checkErr != nil {
		s.rt.Logger.Error(fmt.Sprintf(
			"failed to check if retry is needed, %d request(s) done", s.attempts), log.Error(checkErr))
		needRetry = false
	}

	if roundTripErr != nil {
		if needRetry {
			return nil, roundTripErr
		}
		return nil, retry.Permanent(roundTripErr)
	}
	if resp == nil {
		return nil, retry.Permanent(&SchedulingRoundTripperError{Inner: errNoResponse})
	}
	if needRetry {
		s.lastResp = resp
		return nil, &retryableStatusError{resp: resp}
	}
	return resp, nil
}

// discardWhenDone releases responses of a request nobody waits for anymore.
func (s *attemptSender) discardWhenDone(future *scheduler.Future) {
	value, _ := future.Result()
	if resp, ok := value.(*http.Response); ok && resp != nil {
		drainResponseBody(resp, s.rt.Logger)
	}
	if s.lastResp != nil {
		drainResponseBody(s.lastResp, s.rt.Logger)
	}
}

// retryableStatusError is an attempt failure caused by a response with a retryable status code.
// It carries the response so it can be returned when no attempts are left.
type retryableStatusError struct {
	resp *http.Response
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status code %d", e.resp.StatusCode)
}

// SchedulingRoundTripperError is returned in RoundTrip method of SchedulingRoundTripper
// when the request cannot be submitted or sent once more.
type SchedulingRoundTripperError struct {
	Inner error
}

func (e *SchedulingRoundTripperError) Error() string {
	return fmt.Sprintf("scheduling round trip: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *SchedulingRoundTripperError) Unwrap() error {
	return e.Inner
}

// DefaultCheckRetry represents default function to determine either retry is needed or not.
// Temporary transport errors, 429 and 5xx status codes are retried.
func DefaultCheckRetry(ctx context.Context, resp *http.Response, roundTripErr error) (needRetry bool, err error) {
	if roundTripErr != nil {
		return CheckErrorIsTemporary(roundTripErr), nil
	}
	if resp == nil {
		return false, errNoResponse
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError, nil
}

// CheckErrorIsTemporary checks either error is temporary or not.
func CheckErrorIsTemporary(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var terr interface{ Temporary() bool }
	ok := errors.As(err, &terr)
	return ok && terr.Temporary()
}
