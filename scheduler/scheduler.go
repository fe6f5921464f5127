/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/rs/xid"
	"golang.org/x/time/rate"

	"github.com/acronis/go-slowrate/log"
	"github.com/acronis/go-slowrate/priorityqueue"
	"github.com/acronis/go-slowrate/retry"
	"github.com/acronis/go-slowrate/service"
)

const dispatcherWorkerName = "slowrate-dispatcher"

// Opts represents options for Scheduler.
type Opts struct {
	// Logger is used for logging request lifecycle. Nothing is logged if nil.
	Logger log.FieldLogger

	// MetricsCollector receives dispatch metrics. Metrics are disabled if nil.
	MetricsCollector MetricsCollector

	// IsRetryable decides whether a failed operation may be executed again.
	// Errors marked with retry.Permanent are never retried, regardless of this option.
	IsRetryable retry.IsRetryable
}

// SubmitOpts represents per-request options.
type SubmitOpts struct {
	// Priority of the request. Requests with a higher priority are dispatched first,
	// requests with equal priorities are dispatched in submission order.
	Priority int

	// MaxAttempts is the maximum number of executions of the operation (including the first one).
	// Zero means the value from Config, negative values are treated as 1.
	MaxAttempts int
}

// Scheduler executes submitted operations one at a time, starting no more than one operation per interval.
// Waiting operations are ordered by priority and then by submission order.
// Failed operations are put back into the queue until their attempts are exhausted.
//
// The dispatch loop is started lazily by Submit and suspends itself as soon as the queue becomes empty.
type Scheduler struct {
	interval           time.Duration
	defaultMaxAttempts int
	logger             log.FieldLogger
	metrics            MetricsCollector
	isRetryable        retry.IsRetryable
	stats              statsCounters

	// limiter holds one token, it is taken at the start of every dispatch.
	limiter *rate.Limiter

	mu         sync.Mutex
	queue      *priorityqueue.Queue[*request]
	nextSeq    uint64
	running    bool
	loopCancel context.CancelFunc
	loopDone   chan struct{}
	stopped    bool
	abandoned  bool
}

var _ service.Unit = (*Scheduler)(nil)
var _ service.Shutdowner = (*Scheduler)(nil)
var _ service.MetricsRegisterer = (*Scheduler)(nil)

// New creates a new Scheduler with the given configuration.
// Default configuration is used if cfg is nil.
func New(cfg *Config) (*Scheduler, error) {
	return NewWithOpts(cfg, Opts{})
}

// NewWithOpts is a more configurable version of New.
func NewWithOpts(cfg *Config, opts Opts) (*Scheduler, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	interval := time.Duration(cfg.Interval)
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < MinMaxAttempts {
		maxAttempts = MinMaxAttempts
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	metrics := opts.MetricsCollector
	if metrics == nil {
		metrics = disabledMetricsCollector
	}

	return &Scheduler{
		interval:           interval,
		defaultMaxAttempts: maxAttempts,
		logger:             logger,
		metrics:            metrics,
		isRetryable:        retry.All(retry.DefaultIsRetryable, opts.IsRetryable),
		limiter:            rate.NewLimiter(rate.Every(interval), 1),
		queue:              priorityqueue.New(compareRequests),
	}, nil
}

// Interval returns the minimal time between the starts of two consecutive dispatches.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Submit enqueues the operation with default options.
func (s *Scheduler) Submit(ctx context.Context, op Operation) (*Future, error) {
	return s.SubmitWithOpts(ctx, op, SubmitOpts{})
}

// SubmitWithOpts enqueues the operation and returns a Future for its outcome.
// The operation is called with ctx. If ctx is done while the request is waiting,
// the request is rejected with ctx.Err() and the operation is not called anymore.
func (s *Scheduler) SubmitWithOpts(ctx context.Context, op Operation, opts SubmitOpts) (*Future, error) {
	if op == nil {
		return nil, ErrNilOperation
	}
	if ctx == nil {
		ctx = context.Background()
	}
	maxAttempts := opts.MaxAttempts
	switch {
	case maxAttempts == 0:
		maxAttempts = s.defaultMaxAttempts
	case maxAttempts < MinMaxAttempts:
		maxAttempts = MinMaxAttempts
	}

	id := xid.New().String()
	now := time.Now()
	req := &request{
		id:                id,
		ctx:               ctx,
		op:                op,
		priority:          opts.Priority,
		future:            newFuture(id),
		state:             StateWaiting,
		remainingAttempts: maxAttempts,
		submittedAt:       now,
		enqueuedAt:        now,
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	req.seq = s.nextSeq
	s.nextSeq++
	s.stats.submitted.Inc()
	s.queue.Push(req)
	queueSize := s.queue.Len()
	s.metrics.SetQueueSize(queueSize)
	if !s.running {
		s.startLoopLocked()
	}
	s.mu.Unlock()

	s.metrics.IncSubmitted()
	s.logger.Debug("request submitted", s.requestLogFields(req,
		log.Int("max_attempts", maxAttempts), log.Int("queue_size", queueSize))...)

	return req.future, nil
}

// QueueSize returns the number of requests waiting for dispatch.
func (s *Scheduler) QueueSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Do submits the operation and waits for its outcome.
// If ctx is done before the operation is completed, ctx.Err() is returned.
func Do[T any](ctx context.Context, s *Scheduler, op func(ctx context.Context) (T, error), opts SubmitOpts) (T, error) {
	var zero T
	if op == nil {
		return zero, ErrNilOperation
	}
	future, err := s.SubmitWithOpts(ctx, func(ctx context.Context) (interface{}, error) {
		return op(ctx)
	}, opts)
	if err != nil {
		return zero, err
	}
	value, err := future.Wait(ctx)
	if err != nil {
		return zero, err
	}
	res, _ := value.(T)
	return res, nil
}

// Start does nothing, the dispatch loop is started on demand by Submit.
// Implements service.Unit interface.
func (s *Scheduler) Start(fatalErr chan<- error) {
}

// Stop stops accepting new requests.
// If gracefully is true, it waits until all waiting requests are dispatched.
// Otherwise, waiting requests are rejected with ErrStopped immediately,
// an operation that is already running is allowed to finish.
// Implements service.Unit interface.
func (s *Scheduler) Stop(gracefully bool) error {
	if gracefully {
		return s.Shutdown(context.Background())
	}
	s.abandon()
	return nil
}

// Shutdown stops accepting new requests and waits until all waiting requests are dispatched.
// If ctx is done earlier, the rest of the requests are rejected with ErrStopped and ctx.Err() is returned.
// Implements service.Shutdowner interface.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	loopDone := s.loopDone
	queueSize := s.queue.Len()
	s.mu.Unlock()

	s.logger.Info("scheduler is stopping", log.Int("queue_size", queueSize))

	if loopDone == nil {
		return nil
	}
	select {
	case <-loopDone:
		return nil
	case <-ctx.Done():
		s.abandon()
		return ctx.Err()
	}
}

// MustRegisterMetrics registers metrics in Prometheus client and panics if any error occurs.
// Implements service.MetricsRegisterer interface.
func (s *Scheduler) MustRegisterMetrics() {
	if pm, ok := s.metrics.(*PrometheusMetrics); ok {
		pm.MustRegister()
	}
}

// UnregisterMetrics unregisters metrics in Prometheus client.
// Implements service.MetricsRegisterer interface.
func (s *Scheduler) UnregisterMetrics() {
	if pm, ok := s.metrics.(*PrometheusMetrics); ok {
		pm.Unregister()
	}
}

func (s *Scheduler) abandon() {
	s.mu.Lock()
	s.stopped = true
	s.abandoned = true
	pending := s.queue.Clear()
	s.metrics.SetQueueSize(0)
	loopCancel := s.loopCancel
	s.mu.Unlock()

	if loopCancel != nil {
		loopCancel()
	}
	if len(pending) != 0 {
		s.logger.Warn("scheduler is stopped, waiting requests are rejected", log.Int("rejected", len(pending)))
	}
	for _, req := range pending {
		s.reject(req, ErrStopped)
	}
}

// startLoopLocked starts a new dispatch loop. s.mu must be held.
// The first dispatch happens one interval after the start, the following ones are paced by the limiter.
func (s *Scheduler) startLoopLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.running, s.loopCancel, s.loopDone = true, cancel, done

	worker := service.NewPeriodicWorkerWithOpts(
		service.WorkerFunc(s.dispatch), 0, s.logger, service.PeriodicWorkerOpts{
			Name:              dispatcherWorkerName,
			InitialDelay:      s.interval,
			LifecycleLogLevel: log.LevelDebug,
		})
	go func() {
		defer close(done)
		defer cancel()
		_ = worker.Run(ctx) // never fails, panics of operations are recovered in execute
	}()
}

// dispatch is called by the periodic worker until the queue becomes empty.
// It returns service.ErrPeriodicWorkerStop to suspend the loop when there is nothing to do.
func (s *Scheduler) dispatch(ctx context.Context) error {
	// The token is taken before the request is chosen, so a request submitted during the wait competes by priority.
	if err := s.limiter.Wait(ctx); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return service.ErrPeriodicWorkerStop
	}

	req, expired := s.popReady()
	for _, r := range expired {
		s.reject(r, r.ctx.Err())
	}
	if req == nil {
		return service.ErrPeriodicWorkerStop
	}

	s.execute(req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.IsEmpty() {
		s.running = false
		return service.ErrPeriodicWorkerStop
	}
	return nil
}

// popReady takes the next request for execution.
// Requests whose context is already done are skipped and returned separately, the next waiting request is taken instead.
func (s *Scheduler) popReady() (req *request, expired []*request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for {
		r, ok := s.queue.Pop()
		if !ok {
			break
		}
		if r.ctx.Err() != nil {
			expired = append(expired, r)
			continue
		}
		r.state = StateProcessing
		r.attempts++
		r.future.setState(StateProcessing)
		r.future.attempts.Store(int32(r.attempts))
		s.metrics.ObserveQueueWait(now.Sub(r.enqueuedAt))
		req = r
		break
	}
	s.metrics.SetQueueSize(s.queue.Len())
	if req == nil {
		s.running = false
	}
	return req, expired
}

func (s *Scheduler) execute(req *request) {
	s.stats.inFlight.Inc()
	defer s.stats.inFlight.Dec()

	logger := s.logger.With(s.requestLogFields(req)...)
	logger.Debug("request dispatched")

	startedAt := time.Now()
	value, err := s.invoke(req)
	duration := time.Since(startedAt)

	if err == nil {
		s.metrics.ObserveAttempt(AttemptOutcomeSuccess, duration)
		s.resolve(req, value)
		logger.Debug("request resolved", log.DurationIn(duration, time.Millisecond))
		return
	}

	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		s.metrics.ObserveAttempt(AttemptOutcomePanic, duration)
		logger.Error("panic in operation", log.String("panic", panicErr.Error()), log.Bytes("stack", panicErr.Stack))
	} else {
		s.metrics.ObserveAttempt(AttemptOutcomeError, duration)
	}

	if s.requeue(req, err) {
		s.stats.retried.Inc()
		logger.Warn("attempt failed, request is put back into the queue", log.Error(err))
		return
	}

	s.reject(req, retry.Unwrap(err))
	logger.Error("request rejected", log.Error(err), log.DurationIn(duration, time.Millisecond))
}

func (s *Scheduler) invoke(req *request) (value interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			const stackSize = 8192
			stack := make([]byte, stackSize)
			stack = stack[:runtime.Stack(stack, false)]
			value, err = nil, &PanicError{Value: p, Stack: stack}
		}
	}()
	return req.op(req.ctx)
}

// requeue puts the failed request back into the queue if it has attempts left and the error is retryable.
func (s *Scheduler) requeue(req *request, err error) bool {
	retryable := s.isRetryable(err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if req.remainingAttempts > 0 {
		req.remainingAttempts--
	}
	if req.remainingAttempts == 0 || !retryable || s.abandoned {
		return false
	}
	req.state = StateWaiting
	req.enqueuedAt = time.Now()
	req.future.setState(StateWaiting)
	s.queue.Push(req) // keeps the original seq
	s.metrics.SetQueueSize(s.queue.Len())
	return true
}

func (s *Scheduler) resolve(req *request, value interface{}) {
	s.complete(req, StateResolved, value, nil)
}

func (s *Scheduler) reject(req *request, err error) {
	s.complete(req, StateRejected, nil, err)
}

func (s *Scheduler) complete(req *request, state State, value interface{}, err error) {
	s.mu.Lock()
	if req.state.IsTerminal() {
		s.mu.Unlock()
		return
	}
	req.state = state
	s.mu.Unlock()

	if !req.future.complete(state, value, err) {
		return
	}
	if state == StateResolved {
		s.stats.resolved.Inc()
	} else {
		s.stats.rejected.Inc()
	}
	s.metrics.IncCompleted(state)
}

func (s *Scheduler) requestLogFields(req *request, extra ...log.Field) []log.Field {
	return append([]log.Field{
		log.String("request_id", req.id),
		log.Int("priority", req.priority),
		log.Int("attempt", req.future.Attempts()),
	}, extra...)
}
