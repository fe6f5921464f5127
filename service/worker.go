/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/acronis/go-slowrate/log"
)

// ErrPeriodicWorkerStop is an error that may be used for interrupting PeriodicWorker's loop.
var ErrPeriodicWorkerStop = errors.New("stop periodic worker error")

// Worker performs some (usually long-running) work.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc is an adapter to allow the use of ordinary functions as Worker.
type WorkerFunc func(ctx context.Context) error

// Run is a part of Worker interface.
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// IntervalDelayFunc calculates the delay before the next run of the worker.
// It is called right after the previous run is finished, err is the result of this run.
type IntervalDelayFunc func(worker Worker, err error) time.Duration

// PeriodicWorker represents a worker that runs underlying worker periodically.
// Runs never overlap: the delay before the next run starts counting only after the previous one returns.
type PeriodicWorker struct {
	worker            Worker
	logger            log.FieldLogger
	initialDelay      time.Duration
	intervalDelay     time.Duration
	intervalDelayFunc IntervalDelayFunc
	lifecycleLogLevel log.Level
}

// PeriodicWorkerOpts contains optional parameters for constructing PeriodicWorker.
type PeriodicWorkerOpts struct {
	// Name is added to all log messages as the "worker" field.
	Name string

	// InitialDelay is a delay before the first run. Zero means the first run happens immediately.
	InitialDelay time.Duration

	// IntervalDelayFunc overrides the constant interval delay if set.
	// Negative results are treated as zero.
	IntervalDelayFunc IntervalDelayFunc

	// LifecycleLogLevel is a level for "started"/"stopped" messages. Info is used if empty.
	// Workers that are started and stopped often (e.g. on demand) may want to use debug here.
	LifecycleLogLevel log.Level
}

// NewPeriodicWorker creates a new instance of PeriodicWorker with constant delays.
func NewPeriodicWorker(worker Worker, intervalDelay time.Duration, logger log.FieldLogger) *PeriodicWorker {
	return NewPeriodicWorkerWithOpts(worker, intervalDelay, logger, PeriodicWorkerOpts{})
}

// NewPeriodicWorkerWithOpts creates a new instance of PeriodicWorker
// with an ability to specify different optional parameters.
func NewPeriodicWorkerWithOpts(
	worker Worker, intervalDelay time.Duration, logger log.FieldLogger, opts PeriodicWorkerOpts,
) *PeriodicWorker {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	if opts.Name != "" {
		logger = logger.With(log.String("worker", opts.Name))
	}
	lifecycleLogLevel := opts.LifecycleLogLevel
	if lifecycleLogLevel == "" {
		lifecycleLogLevel = log.LevelInfo
	}
	return &PeriodicWorker{
		worker:            worker,
		logger:            logger,
		initialDelay:      opts.InitialDelay,
		intervalDelay:     intervalDelay,
		intervalDelayFunc: opts.IntervalDelayFunc,
		lifecycleLogLevel: lifecycleLogLevel,
	}
}

// Run runs PeriodicWorker loop.
// It returns nil when ctx is done or the underlying worker returns ErrPeriodicWorkerStop.
func (pw *PeriodicWorker) Run(ctx context.Context) error {
	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			pw.logger.Error(fmt.Sprintf("panic: %+v", p), log.Bytes("stack", stack))
			panic(p)
		}
		pw.logger.AtLevel(pw.lifecycleLogLevel, func(logFunc log.LogFunc) {
			logFunc("periodic worker stopped")
		})
	}()

	pw.logger.AtLevel(pw.lifecycleLogLevel, func(logFunc log.LogFunc) {
		logFunc(fmt.Sprintf("running periodic worker (initialDelay=%s, intervalDelay=%s)...",
			pw.initialDelay, pw.intervalDelay))
	})

	timer := time.NewTimer(pw.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		err := pw.worker.Run(ctx)
		if err != nil {
			if errors.Is(err, ErrPeriodicWorkerStop) {
				return nil
			}
			pw.logger.Error("periodically running worker finished with error", log.Error(err))
		}

		nextDelay := pw.intervalDelay
		if pw.intervalDelayFunc != nil {
			nextDelay = pw.intervalDelayFunc(pw.worker, err)
		}
		if nextDelay < 0 {
			nextDelay = 0
		}

		// The timer has fired and its channel is drained, so Reset is safe here.
		timer.Reset(nextDelay)
	}
}
