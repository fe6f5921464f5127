/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"time"

	"github.com/stretchr/testify/require"
)

// ErrWaitTimeout is returned by WaitTrue when the condition is not met in time.
var ErrWaitTimeout = errors.New("wait timeout exceeded")

// WaitTrue polls the condition until it returns true or the timeout is exceeded.
func WaitTrue(cond func() bool, timeout time.Duration) error {
	const pollInterval = time.Millisecond * 5
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrWaitTimeout
		}
		time.Sleep(pollInterval)
	}
}

// RequireClosedWithin asserts that the channel is closed (or receives a value) within the timeout.
func RequireClosedWithin(t require.TestingT, c <-chan struct{}, timeout time.Duration, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c:
	case <-timer.C:
		require.FailNow(t, "channel is not closed in "+timeout.String(), msgAndArgs...)
	}
}
