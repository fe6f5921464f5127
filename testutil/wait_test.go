/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitTrue(t *testing.T) {
	var flag int32
	time.AfterFunc(time.Millisecond*20, func() { atomic.StoreInt32(&flag, 1) })
	require.NoError(t, WaitTrue(func() bool { return atomic.LoadInt32(&flag) == 1 }, time.Second))

	require.ErrorIs(t, WaitTrue(func() bool { return false }, time.Millisecond*20), ErrWaitTimeout)
}

func TestRequireClosedWithin(t *testing.T) {
	closed := make(chan struct{})
	close(closed)
	mockT := &MockT{}
	RequireClosedWithin(mockT, closed, time.Millisecond*10)
	require.False(t, mockT.Failed)

	mockT = &MockT{}
	RequireClosedWithin(mockT, make(chan struct{}), time.Millisecond*10)
	require.True(t, mockT.Failed)
}
