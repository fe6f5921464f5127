/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-slowrate/log"
	"github.com/acronis/go-slowrate/log/logtest"
)

func TestPeriodicWorker_Run(t *testing.T) {
	t.Run("run and stop by context timeout", func(t *testing.T) {
		const iterations = 5

		var c int32
		periodicWorker := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			atomic.AddInt32(&c, 1)
			return nil
		}), time.Millisecond*100, log.NewDisabledLogger())

		ctx, ctxCancel := context.WithTimeout(context.Background(), time.Millisecond*100*iterations+time.Millisecond*50)
		defer ctxCancel()

		require.NoError(t, periodicWorker.Run(ctx))
		require.GreaterOrEqual(t, int(atomic.LoadInt32(&c)), iterations)
		require.LessOrEqual(t, int(atomic.LoadInt32(&c)), iterations+1)
		require.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	})

	t.Run("run and stop by error", func(t *testing.T) {
		c := 0
		periodicWorker := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			c++
			if c == 2 {
				return ErrPeriodicWorkerStop
			}
			return nil
		}), time.Millisecond*10, log.NewDisabledLogger())
		ctx, ctxCancel := context.WithTimeout(context.Background(), time.Minute)
		defer ctxCancel()

		require.NoError(t, periodicWorker.Run(ctx))
		require.Equal(t, 2, c)
		require.NoError(t, ctx.Err())
	})

	t.Run("initial delay is respected", func(t *testing.T) {
		var firstRunAt time.Time
		startedAt := time.Now()
		periodicWorker := NewPeriodicWorkerWithOpts(WorkerFunc(func(ctx context.Context) error {
			firstRunAt = time.Now()
			return ErrPeriodicWorkerStop
		}), time.Millisecond*10, log.NewDisabledLogger(), PeriodicWorkerOpts{InitialDelay: time.Millisecond * 100})

		require.NoError(t, periodicWorker.Run(context.Background()))
		require.GreaterOrEqual(t, firstRunAt.Sub(startedAt), time.Millisecond*100)
	})

	t.Run("interval delay func is called with the last error", func(t *testing.T) {
		var gotErrs []error
		intervalDelayFunc := func(worker Worker, err error) time.Duration {
			gotErrs = append(gotErrs, err)
			return -time.Second // negative delay means "run immediately"
		}
		c := 0
		workerErr := fmt.Errorf("non-stop error")
		periodicWorker := NewPeriodicWorkerWithOpts(WorkerFunc(func(ctx context.Context) error {
			c++
			switch c {
			case 1:
				return workerErr
			case 3:
				return ErrPeriodicWorkerStop
			}
			return nil
		}), time.Hour, log.NewDisabledLogger(), PeriodicWorkerOpts{IntervalDelayFunc: intervalDelayFunc})

		ctx, ctxCancel := context.WithTimeout(context.Background(), time.Second*5)
		defer ctxCancel()

		require.NoError(t, periodicWorker.Run(ctx))
		require.Equal(t, 3, c)
		require.Equal(t, []error{workerErr, nil}, gotErrs)
	})

	t.Run("lifecycle messages use configured level and name", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		periodicWorker := NewPeriodicWorkerWithOpts(WorkerFunc(func(ctx context.Context) error {
			return ErrPeriodicWorkerStop
		}), time.Millisecond, logRecorder, PeriodicWorkerOpts{Name: "dispatcher", LifecycleLogLevel: log.LevelDebug})

		require.NoError(t, periodicWorker.Run(context.Background()))

		entry, found := logRecorder.FindEntry("periodic worker stopped")
		require.True(t, found)
		require.Equal(t, log.LevelDebug, entry.Level)
		require.Equal(t, "dispatcher", entry.FieldString("worker"))
	})
}
