/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttlequeue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/xid"

	"github.com/acronis/go-throttlequeue/log"
)

// Default parameter values for Queue.
const (
	DefaultMaxRetries           = 30
	DefaultMaxRetriesWithPauses = 30

	// DefaultRetryWait is used as a retry delay when the retry carries no explicit delay,
	// no retry policy is configured, and the queue has no interval.
	DefaultRetryWait = 500 * time.Millisecond
)

// Unbounded should be used as Opts.MaxPerInterval value when the admission quota should be disabled.
const Unbounded = 0

// NoRetries should be used as Opts.MaxRetries or Opts.MaxRetriesWithPauses value
// when retries of the corresponding kind should be forbidden entirely
// (the zero value of these options means "use the default limit").
const NoRetries = -1

const executionIDLogFieldKey = "execution_id"

// Opts represents an options for Queue.
type Opts struct {
	// MaxPerInterval is the maximum number of executions admitted to run
	// within each interval window. Unbounded (0) disables the quota.
	MaxPerInterval int

	// Interval is the length of the admission window.
	// Zero means no windowing: executions are admitted immediately.
	Interval time.Duration

	// EvenlySpaced spreads admissions uniformly over the interval instead of
	// admitting MaxPerInterval executions in a burst at each window start.
	// It is a pure configuration normalization:
	// (MaxPerInterval=k, Interval=i) becomes (MaxPerInterval=1, Interval=i/k).
	EvenlySpaced bool

	// MaxRetries determines how many plain retries a single logical execution may do.
	// By default, DefaultMaxRetries const is used. Use NoRetries to forbid retries.
	MaxRetries int

	// MaxRetriesWithPauses determines how many queue-pausing retries
	// a single logical execution may do.
	// By default, DefaultMaxRetriesWithPauses const is used. Use NoRetries to forbid them.
	MaxRetriesWithPauses int

	// RetryPolicy supplies delays for retries that carry no explicit RetryAfter.
	// When nil, the queue interval (if nonzero) or DefaultRetryWait is used.
	RetryPolicy RetryPolicy

	// Logger is used for logging. When nil, logging is disabled.
	Logger log.FieldLogger

	// MetricsCollector is used for collecting metrics. When nil, metrics collecting is disabled.
	MetricsCollector MetricsCollector
}

// Queue is a client-side throttling queue.
// Enqueued executions are admitted in strict FIFO order,
// at most MaxPerInterval of them within any interval window.
// A single wake-up timer drives admission of queued executions.
type Queue[T any] struct {
	maxPerInterval       int
	interval             time.Duration
	maxRetries           int
	maxRetriesWithPauses int
	retryPolicy          RetryPolicy
	logger               log.FieldLogger
	metrics              MetricsCollector

	mu               sync.Mutex
	pending          []*execution[T]
	windowStart      time.Time
	admittedInWindow int
	timer            *time.Timer
	timerActive      bool
}

// New creates a new Queue with the specified options.
// For options that are not presented, the default values will be used.
func New[T any](opts Opts) (*Queue[T], error) {
	if opts.MaxPerInterval < 0 {
		return nil, fmt.Errorf("max per interval must be positive or Unbounded")
	}
	if opts.Interval < 0 {
		return nil, fmt.Errorf("interval must not be negative")
	}

	maxRetries, err := resolveRetryLimit(opts.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("incorrect max retries")
	}
	maxRetriesWithPauses, err := resolveRetryLimit(opts.MaxRetriesWithPauses)
	if err != nil {
		return nil, fmt.Errorf("incorrect max retries with pauses")
	}

	if opts.EvenlySpaced {
		opts.EvenlySpaced = false
		if opts.MaxPerInterval > 1 && opts.Interval > 0 {
			opts.Interval /= time.Duration(opts.MaxPerInterval)
			opts.MaxPerInterval = 1
		}
		return New[T](opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetricsCollector
	}

	return &Queue[T]{
		maxPerInterval:       opts.MaxPerInterval,
		interval:             opts.Interval,
		maxRetries:           maxRetries,
		maxRetriesWithPauses: maxRetriesWithPauses,
		retryPolicy:          opts.RetryPolicy,
		logger:               opts.Logger,
		metrics:              opts.MetricsCollector,
		windowStart:          time.Now(),
	}, nil
}

// Must is a version of New that panics if an error occurs.
func Must[T any](opts Opts) *Queue[T] {
	q, err := New[T](opts)
	if err != nil {
		panic(err)
	}
	return q
}

func resolveRetryLimit(value int) (int, error) {
	switch {
	case value == 0:
		return DefaultMaxRetries, nil
	case value == NoRetries:
		return 0, nil
	case value < 0:
		return 0, fmt.Errorf("retry limit must not be negative")
	}
	return value, nil
}

// execution is a logical execution: one Enqueue call including all of its retries.
type execution[T any] struct {
	task        Task[T]
	state       State
	result      *Result[T]
	id          string
	retriesDone int
	pausesDone  int
	enqueuedAt  time.Time
	backOff     backoff.BackOff
}

// Enqueue adds a task to the queue and returns a future for its result.
// The task is never invoked synchronously on the caller's stack.
func (q *Queue[T]) Enqueue(task Task[T]) *Result[T] {
	return q.EnqueueWithState(task, nil)
}

// EnqueueWithState is a version of Enqueue that passes the given state bag to the task.
// The same bag is threaded through all retries of this call (see State).
func (q *Queue[T]) EnqueueWithState(task Task[T], state State) *Result[T] {
	if state == nil {
		state = State{}
	}
	e := &execution[T]{
		task:   task,
		state:  state,
		result: newResult[T](),
		id:     xid.New().String(),
	}
	q.enqueueExecution(e)
	return e.result
}

func (q *Queue[T]) enqueueExecution(e *execution[T]) {
	e.enqueuedAt = time.Now()

	q.mu.Lock()
	q.rollWindowIfStaleLocked(e.enqueuedAt)
	if q.hasCapacityLocked() {
		q.admittedInWindow++
		windowStart := q.windowStart
		q.mu.Unlock()
		q.admit(e, windowStart)
		return
	}
	q.pending = append(q.pending, e)
	pendingAmount := len(q.pending)
	if !q.timerActive {
		q.scheduleTimerLocked(q.windowStart.Add(q.interval).Sub(e.enqueuedAt))
	}
	// Published under the lock so concurrent updates cannot reorder gauge values.
	q.metrics.SetPendingAmount(pendingAmount)
	q.mu.Unlock()

	q.logger.Debug("execution queued, window quota is exhausted",
		log.String(executionIDLogFieldKey, e.id), log.Int("pending", pendingAmount))
}

// rollWindowIfStaleLocked resets the accounting window if it has fully elapsed
// and no timer is pending. This lets a queue that has been idle admit immediately
// instead of waiting for a stale window to be closed by a timer.
func (q *Queue[T]) rollWindowIfStaleLocked(now time.Time) {
	if !q.bounded() || q.timerActive {
		return
	}
	if now.Sub(q.windowStart) > q.interval {
		q.windowStart = now
		q.admittedInWindow = 0
	}
}

// bounded reports whether interval windowing is in effect.
func (q *Queue[T]) bounded() bool {
	return q.maxPerInterval != Unbounded && q.interval > 0
}

func (q *Queue[T]) hasCapacityLocked() bool {
	return !q.bounded() || q.admittedInWindow < q.maxPerInterval
}

// scheduleTimerLocked replaces the outstanding wake-up timer with one firing after d.
// At most one timer is live at any time.
func (q *Queue[T]) scheduleTimerLocked(d time.Duration) {
	if d < 0 {
		d = 0
	}
	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(d, q.onTimer)
	q.timerActive = true
}

// onTimer closes the current window and admits queued executions into the new one.
func (q *Queue[T]) onTimer() {
	q.mu.Lock()
	q.timerActive = false

	now := time.Now()
	if remaining := q.windowStart.Add(q.interval).Sub(now); remaining > 0 {
		// The timer fired before the window's theoretical end (coarse timer granularity).
		// Wait out the remainder instead of admitting early.
		q.scheduleTimerLocked(remaining)
		q.mu.Unlock()
		return
	}

	q.windowStart = now
	q.admittedInWindow = 0

	batchSize := len(q.pending)
	if q.maxPerInterval != Unbounded && batchSize > q.maxPerInterval {
		batchSize = q.maxPerInterval
	}
	batch := q.pending[:batchSize]
	q.pending = q.pending[batchSize:]
	q.admittedInWindow = batchSize

	pendingAmount := len(q.pending)
	if pendingAmount > 0 {
		q.scheduleTimerLocked(q.interval)
	}
	q.metrics.SetPendingAmount(pendingAmount)
	q.mu.Unlock()

	for _, e := range batch {
		q.admit(e, now)
	}
}

// admit dispatches an execution asynchronously within the window that starts at windowStart.
func (q *Queue[T]) admit(e *execution[T], windowStart time.Time) {
	q.metrics.IncAdmitted()
	q.metrics.ObserveAdmissionWait(time.Since(e.enqueuedAt))
	q.logger.Debug("execution admitted",
		log.String(executionIDLogFieldKey, e.id), log.Int("attempt", e.attempt()))
	go q.run(e, windowStart)
}

func (e *execution[T]) attempt() int {
	return e.retriesDone + e.pausesDone
}

func (q *Queue[T]) run(e *execution[T], windowStart time.Time) {
	value, err := e.task(ExecutionContext{
		WindowStart: windowStart,
		State:       e.state,
		ID:          e.id,
		Attempt:     e.attempt(),
	})
	if err == nil {
		e.result.resolve(value)
		return
	}

	var retryErr *RetryError
	if !errors.As(err, &retryErr) {
		q.logger.Debug("execution finished with error",
			log.String(executionIDLogFieldKey, e.id), log.Error(err))
		e.result.fail(err)
		return
	}

	if retryErr.PauseQueue {
		q.retryWithPause(e, retryErr)
		return
	}
	q.retry(e, retryErr)
}

// retry schedules the same logical execution to be enqueued again after a delay.
func (q *Queue[T]) retry(e *execution[T], retryErr *RetryError) {
	if e.retriesDone >= q.maxRetries {
		q.logger.Warn("max retries exceeded",
			log.String(executionIDLogFieldKey, e.id), log.Int("max_retries", q.maxRetries))
		e.result.fail(retryErr)
		return
	}
	e.retriesDone++

	delay := q.resolveRetryDelay(e, retryErr)
	q.metrics.IncRetries(RetryKindPlain)
	q.logger.Debug("execution retry scheduled",
		log.String(executionIDLogFieldKey, e.id),
		log.Duration("delay", delay), log.Int("attempt", e.attempt()))

	time.AfterFunc(delay, func() {
		q.enqueueExecution(e)
	})
}

// retryWithPause saturates the current window so that no queued execution is admitted
// until the delay elapses, and enqueues the same logical execution again behind the pause.
// Executions that are already running are not affected.
func (q *Queue[T]) retryWithPause(e *execution[T], retryErr *RetryError) {
	if e.pausesDone >= q.maxRetriesWithPauses {
		q.logger.Warn("max retries with pauses exceeded",
			log.String(executionIDLogFieldKey, e.id), log.Int("max_retries", q.maxRetriesWithPauses))
		e.result.fail(retryErr)
		return
	}
	e.pausesDone++

	delay := q.resolveRetryDelay(e, retryErr)
	q.metrics.IncRetries(RetryKindPause)
	q.logger.Warn("queue paused by execution",
		log.String(executionIDLogFieldKey, e.id),
		log.Duration("delay", delay), log.Int("attempt", e.attempt()))

	q.mu.Lock()
	bounded := q.bounded()
	if bounded {
		now := time.Now()
		q.admittedInWindow = q.maxPerInterval
		// Align the window start so that the replaced timer fires exactly
		// at the window's theoretical end and a new window opens when the pause elapses.
		q.windowStart = now.Add(delay - q.interval)
		q.scheduleTimerLocked(delay)
	}
	q.mu.Unlock()

	if bounded {
		q.enqueueExecution(e)
		return
	}
	// An unbounded queue has no admissions to withhold, the pause degrades to a plain delay.
	time.AfterFunc(delay, func() {
		q.enqueueExecution(e)
	})
}

func (q *Queue[T]) resolveRetryDelay(e *execution[T], retryErr *RetryError) time.Duration {
	if retryErr.RetryAfter > 0 {
		return retryErr.RetryAfter
	}
	if q.retryPolicy != nil {
		if e.backOff == nil {
			e.backOff = q.retryPolicy.NewBackOff()
		}
		if d := e.backOff.NextBackOff(); d != backoff.Stop {
			return d
		}
	}
	if q.interval > 0 {
		return q.interval
	}
	return DefaultRetryWait
}
