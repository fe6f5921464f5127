/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-slowrate/log/logtest"
)

type mockUnit struct {
	mu                      sync.Mutex
	startErr                error
	shutdownBlocks          bool
	started                 chan struct{}
	startCalled             int
	stopCalls               []bool
	shutdownCalled          int
	mustRegisterMetricsCall int
	unregisterMetricsCall   int
}

func newMockUnit() *mockUnit {
	return &mockUnit{started: make(chan struct{})}
}

func (u *mockUnit) Start(fatalErr chan<- error) {
	u.mu.Lock()
	u.startCalled++
	startErr := u.startErr
	u.mu.Unlock()
	if startErr != nil {
		fatalErr <- startErr
		return
	}
	close(u.started)
}

func (u *mockUnit) Stop(gracefully bool) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stopCalls = append(u.stopCalls, gracefully)
	return nil
}

func (u *mockUnit) MustRegisterMetrics() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.mustRegisterMetricsCall++
}

func (u *mockUnit) UnregisterMetrics() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.unregisterMetricsCall++
}

type mockShutdownerUnit struct {
	*mockUnit
}

func (u *mockShutdownerUnit) Shutdown(ctx context.Context) error {
	u.mu.Lock()
	u.shutdownCalled++
	blocks := u.shutdownBlocks
	u.mu.Unlock()
	if blocks {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func TestService_Start(t *testing.T) {
	unit := newMockUnit()
	service := New(logtest.NewRecorder(), unit)

	done := make(chan error, 1)
	go func() {
		done <- service.Start()
	}()
	<-unit.started

	service.Signals <- os.Interrupt // Sending SIGINT signal to the service.

	require.NoError(t, <-done)
	unit.mu.Lock()
	defer unit.mu.Unlock()
	require.Equal(t, 1, unit.startCalled)
	require.Equal(t, []bool{true}, unit.stopCalls)
	require.Equal(t, 1, unit.mustRegisterMetricsCall)
	require.Equal(t, 1, unit.unregisterMetricsCall)
}

func TestService_StartContext(t *testing.T) {
	ctx, ctxCancel := context.WithCancel(context.Background())

	logRecorder := logtest.NewRecorder()
	unit := newMockUnit()
	service := New(logRecorder, unit)

	done := make(chan error, 1)
	go func() {
		done <- service.StartContext(ctx)
	}()
	<-unit.started

	ctxCancel()

	require.NoError(t, <-done)
	_, found := logRecorder.FindEntry("context is canceled, service will be stopped")
	require.True(t, found)
	require.Equal(t, []bool{true}, unit.stopCalls)
}

func TestService_FatalError(t *testing.T) {
	unit := newMockUnit()
	unit.startErr = errors.New("queue is broken")
	service := New(logtest.NewRecorder(), unit)

	err := service.StartContext(context.Background())
	require.ErrorIs(t, err, unit.startErr)
	require.Empty(t, unit.stopCalls)
}

func TestService_StopTimeout(t *testing.T) {
	t.Run("shutdowner is used when timeout is set", func(t *testing.T) {
		unit := &mockShutdownerUnit{newMockUnit()}
		service := NewWithOpts(logtest.NewRecorder(), unit, Opts{
			ShutdownSignals: []os.Signal{os.Interrupt},
			StopTimeout:     time.Second,
		})

		ctx, ctxCancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- service.StartContext(ctx)
		}()
		<-unit.started
		ctxCancel()

		require.NoError(t, <-done)
		require.Equal(t, 1, unit.shutdownCalled)
		require.Empty(t, unit.stopCalls)
	})

	t.Run("shutdown deadline exceeded", func(t *testing.T) {
		unit := &mockShutdownerUnit{newMockUnit()}
		unit.shutdownBlocks = true
		service := NewWithOpts(logtest.NewRecorder(), unit, Opts{
			ShutdownSignals: []os.Signal{os.Interrupt},
			StopTimeout:     time.Millisecond * 50,
		})

		ctx, ctxCancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- service.StartContext(ctx)
		}()
		<-unit.started
		ctxCancel()

		require.ErrorIs(t, <-done, context.DeadlineExceeded)
	})

	t.Run("stop is used without timeout", func(t *testing.T) {
		unit := &mockShutdownerUnit{newMockUnit()}
		service := New(logtest.NewRecorder(), unit)

		ctx, ctxCancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- service.StartContext(ctx)
		}()
		<-unit.started
		ctxCancel()

		require.NoError(t, <-done)
		require.Equal(t, 0, unit.shutdownCalled)
		require.Equal(t, []bool{true}, unit.stopCalls)
	})
}
