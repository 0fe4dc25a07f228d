/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttlequeue

import (
	"context"
	"errors"
	"time"
)

// ErrResultNotReady is returned by Result.Get when the execution has not finished yet.
var ErrResultNotReady = errors.New("execution result is not ready yet")

// Task is a unit of work executed by the queue.
// It receives an ExecutionContext and produces a value or an error.
// Returning *RetryError asks the queue to run the same logical execution again (see RetryError).
type Task[T any] func(ctx ExecutionContext) (T, error)

// State is a mutable bag of values attached to a logical execution.
// The same State instance is passed to every retry of the execution,
// so a task can keep data between attempts (e.g. a resumption token).
// It is never shared between different Enqueue calls and is not touched by the queue itself.
type State map[string]interface{}

// ExecutionContext carries per-attempt information into a Task.
type ExecutionContext struct {
	// WindowStart is the start time of the admission window
	// that was in effect when this attempt was admitted.
	WindowStart time.Time

	// State is the execution's state bag, identity-stable across retries.
	State State

	// ID identifies the logical execution in logs. It is stable across retries.
	ID string

	// Attempt is the sequential number of the current attempt, starting from 0.
	Attempt int
}

// Result is a future for an enqueued execution.
// It is resolved once the execution completes, fails terminally, or exhausts its retry budget.
type Result[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newResult[T any]() *Result[T] {
	return &Result[T]{done: make(chan struct{})}
}

// Done returns a channel that is closed when the execution finishes.
func (r *Result[T]) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the execution finishes or the passed context is done.
// Canceling the context abandons only the waiting, not the execution itself:
// an enqueued execution always runs to completion or retry exhaustion.
func (r *Result[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-r.done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Get returns the execution outcome without blocking.
// If the execution has not finished yet, ErrResultNotReady is returned.
func (r *Result[T]) Get() (T, error) {
	select {
	case <-r.done:
		return r.value, r.err
	default:
		var zero T
		return zero, ErrResultNotReady
	}
}

func (r *Result[T]) resolve(value T) {
	r.value = value
	close(r.done)
}

func (r *Result[T]) fail(err error) {
	r.err = err
	close(r.done)
}
