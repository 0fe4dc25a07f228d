/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttlequeue

import "time"

// RetryError is a control signal that a running execution may return instead of a regular error.
// The queue intercepts it and schedules the same logical execution again
// instead of delivering the error to the caller.
// Any other error type is delivered to the caller as a terminal failure.
type RetryError struct {
	// RetryAfter is the delay before the execution is enqueued again.
	// Zero means the queue resolves the delay itself:
	// configured retry policy, then the queue interval, then DefaultRetryWait.
	RetryAfter time.Duration

	// PauseQueue, when true, additionally freezes admission of all queued executions
	// until the delay elapses. Executions that are already running are not affected.
	PauseQueue bool

	// Message is an optional reason that will be used in the error text and logs.
	Message string
}

// Error implements the error interface.
func (e *RetryError) Error() string {
	if e.Message != "" {
		return "execution retry requested: " + e.Message
	}
	return "execution retry requested"
}
