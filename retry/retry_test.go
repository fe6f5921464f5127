/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

func TestPermanent(t *testing.T) {
	require.NoError(t, Permanent(nil))

	innerErr := errors.New("bad request")
	err := Permanent(innerErr)
	require.True(t, IsPermanent(err))
	require.ErrorIs(t, err, innerErr)
	require.Equal(t, innerErr, Unwrap(err))

	wrapped := fmt.Errorf("call api: %w", err)
	require.True(t, IsPermanent(wrapped))
	require.Equal(t, innerErr, Unwrap(wrapped))

	plainErr := errors.New("timeout")
	require.False(t, IsPermanent(plainErr))
	require.Equal(t, plainErr, Unwrap(plainErr))
}

func TestPermanent_CompatibleWithBackoff(t *testing.T) {
	innerErr := errors.New("forbidden")
	require.True(t, IsPermanent(backoff.Permanent(innerErr)))
}

func TestDefaultIsRetryable(t *testing.T) {
	tests := []struct {
		Name string
		Err  error
		Want bool
	}{
		{Name: "nil error", Err: nil, Want: false},
		{Name: "plain error", Err: errors.New("boom"), Want: true},
		{Name: "permanent error", Err: Permanent(errors.New("boom")), Want: false},
		{Name: "wrapped permanent error", Err: fmt.Errorf("op: %w", Permanent(errors.New("boom"))), Want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.Name, func(t *testing.T) {
			require.Equal(t, tt.Want, DefaultIsRetryable(tt.Err))
		})
	}
}

func TestAll(t *testing.T) {
	errNotFound := errors.New("not found")
	notNotFound := func(err error) bool { return !errors.Is(err, errNotFound) }

	isRetryable := All(DefaultIsRetryable, nil, notNotFound)
	require.True(t, isRetryable(errors.New("temporary")))
	require.False(t, isRetryable(errNotFound))
	require.False(t, isRetryable(Permanent(errors.New("fatal"))))

	require.True(t, All()(errors.New("any")))
}
