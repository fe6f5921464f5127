/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/acronis/go-slowrate/log"
)

type rewindFunc func(*http.Request) error

func noopRewind(*http.Request) error { return nil }

// makeRequestBodyRewindable prepares a request body for sending it more than once.
// It returns a function that resets the body of the given request to its initial state.
//
// Strategy (in order of preference):
// 1) http.Request.GetBody, a fresh reader is obtained for every attempt.
// 2) io.ReadSeeker body, the current offset is remembered and restored.
// 3) The whole body is buffered in memory.
func makeRequestBodyRewindable(req *http.Request) (rewindFunc, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return noopRewind, nil
	}

	if req.GetBody != nil {
		initialBody, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("get body before doing first request: %w", err)
		}
		req.Body = initialBody
		return func(r *http.Request) error {
			newBody, newBodyErr := r.GetBody()
			if newBodyErr != nil {
				return fmt.Errorf("get body for next attempt: %w", newBodyErr)
			}
			r.Body = newBody
			return nil
		}, nil
	}

	if reqBodySeeker, ok := req.Body.(io.ReadSeeker); ok {
		reqBodySeekOffset, err := reqBodySeeker.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("seek request body before doing first request: %w", err)
		}
		req.Body = io.NopCloser(reqBodySeeker)
		return func(r *http.Request) error {
			if _, seekErr := reqBodySeeker.Seek(reqBodySeekOffset, io.SeekStart); seekErr != nil {
				return fmt.Errorf(
					"seek request body (offset=%d, whence=%d) for next attempt: %w", reqBodySeekOffset, io.SeekStart, seekErr)
			}
			r.Body = io.NopCloser(reqBodySeeker)
			return nil
		}, nil
	}

	bufferedReqBody, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("read all request body before doing first request: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(bufferedReqBody))
	return func(r *http.Request) error {
		r.Body = io.NopCloser(bytes.NewReader(bufferedReqBody))
		return nil
	}, nil
}

// drainResponseBody reads and discards the entire response body to allow connection reuse.
func drainResponseBody(resp *http.Response, logger log.FieldLogger) {
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Error("failed to close previous response body between attempts", log.Error(closeErr))
		}
	}()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		logger.Error("failed to discard previous response body between attempts", log.Error(err))
	}
}
