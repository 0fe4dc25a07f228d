/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	throttlequeue "github.com/acronis/go-throttlequeue"
	"github.com/acronis/go-throttlequeue/log"
)

// DefaultThrottlingWaitTimeout determines how long RoundTrip of ThrottlingRoundTripper
// waits for the queued request to complete before giving up.
const DefaultThrottlingWaitTimeout = 15 * time.Minute

// RetryAttemptNumberHeader is an HTTP header name that will contain the serial number of the retry attempt.
const RetryAttemptNumberHeader = "X-Retry-Attempt"

// CheckThrottleFunc is called right after each request attempt and decides whether the attempt
// should be retried through the queue. A nil result accepts the attempt as final.
type CheckThrottleFunc func(resp *http.Response, roundTripErr error) *throttlequeue.RetryError

// ThrottlingRoundTripper wraps an object that implements http.RoundTripper interface
// and funnels all outgoing requests through a throttling queue.
// Responses that signal server-side throttling (429, 503) are converted into queue retries;
// a 429 additionally pauses the whole queue so that other pending requests back off too.
type ThrottlingRoundTripper struct {
	// Delegate is an object that implements http.RoundTripper interface
	// and is used for sending HTTP requests under the hood.
	Delegate http.RoundTripper

	// Queue schedules request attempts. All clients sharing the queue share its quota.
	Queue *throttlequeue.Queue[*http.Response]

	// Logger is used for logging.
	// When it's necessary to use context-specific logger, LoggerProvider should be used instead.
	Logger log.FieldLogger

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// WaitTimeout limits how long RoundTrip waits for the queued request to complete.
	// By default, DefaultThrottlingWaitTimeout const is used.
	WaitTimeout time.Duration

	// CheckThrottle decides whether a request attempt should be retried through the queue.
	// By default, DefaultCheckThrottle function is used.
	CheckThrottle CheckThrottleFunc
}

// ThrottlingRoundTripperOpts represents an options for ThrottlingRoundTripper.
type ThrottlingRoundTripperOpts struct {
	// Logger is used for logging.
	// When it's necessary to use context-specific logger, LoggerProvider should be used instead.
	Logger log.FieldLogger

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// WaitTimeout limits how long RoundTrip waits for the queued request to complete.
	// By default, DefaultThrottlingWaitTimeout const is used.
	WaitTimeout time.Duration

	// CheckThrottle decides whether a request attempt should be retried through the queue.
	// By default, DefaultCheckThrottle function is used.
	CheckThrottle CheckThrottleFunc
}

// NewThrottlingRoundTripper creates a new ThrottlingRoundTripper that schedules requests on the passed queue.
func NewThrottlingRoundTripper(
	delegate http.RoundTripper, queue *throttlequeue.Queue[*http.Response],
) (*ThrottlingRoundTripper, error) {
	return NewThrottlingRoundTripperWithOpts(delegate, queue, ThrottlingRoundTripperOpts{})
}

// NewThrottlingRoundTripperWithOpts creates a new ThrottlingRoundTripper with specified options.
// For options that are not presented, the default values will be used.
func NewThrottlingRoundTripperWithOpts(
	delegate http.RoundTripper, queue *throttlequeue.Queue[*http.Response], opts ThrottlingRoundTripperOpts,
) (*ThrottlingRoundTripper, error) {
	if queue == nil {
		return nil, fmt.Errorf("queue must not be nil")
	}

	if opts.WaitTimeout < 0 {
		return nil, fmt.Errorf("wait timeout must not be negative")
	}
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = DefaultThrottlingWaitTimeout
	}

	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.CheckThrottle == nil {
		opts.CheckThrottle = DefaultCheckThrottle
	}

	return &ThrottlingRoundTripper{
		Delegate:       delegate,
		Queue:          queue,
		Logger:         opts.Logger,
		LoggerProvider: opts.LoggerProvider,
		WaitTimeout:    opts.WaitTimeout,
		CheckThrottle:  opts.CheckThrottle,
	}, nil
}

// RoundTrip enqueues the request and blocks until it has been admitted, executed,
// and (if throttled) retried to completion.
// If waiting exceeds WaitTimeout or the request's context is done, ThrottlingWaitError is returned;
// the queued execution keeps running in the background in that case.
func (rt *ThrottlingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rewindReqBody := func(r *http.Request) error { return nil }
	if req.Body != nil {
		originalReqBody := req.Body
		defer func() {
			_ = originalReqBody.Close() // Per RoundTripper contract.
		}()

		var err error
		rewindReqBody, err = makeRequestBodyRewindable(req)
		if err != nil {
			return nil, &ThrottlingRoundTripperError{Inner: err}
		}
	}

	reqCtx := req.Context()
	reqCloned := false

	result := rt.Queue.Enqueue(func(execCtx throttlequeue.ExecutionContext) (*http.Response, error) {
		if rewindErr := rewindReqBody(req); rewindErr != nil {
			return nil, &ThrottlingRoundTripperError{Inner: rewindErr}
		}

		if execCtx.Attempt > 0 {
			if !reqCloned {
				req, reqCloned = req.Clone(reqCtx), true // Per RoundTripper contract.
			}
			req.Header.Set(RetryAttemptNumberHeader, strconv.Itoa(execCtx.Attempt))
		}

		resp, roundTripErr := rt.Delegate.RoundTrip(req)

		retryErr := rt.CheckThrottle(resp, roundTripErr)
		if retryErr == nil {
			if roundTripErr != nil {
				return nil, roundTripErr
			}
			return resp, nil
		}

		if resp != nil {
			rt.drainResponseBody(reqCtx, resp)
		}
		rt.logger(reqCtx).Warn("request attempt will be retried",
			log.String("method", req.Method),
			log.String("url", req.URL.String()),
			log.Int("attempt", execCtx.Attempt+1),
			log.Duration("retry_after", retryErr.RetryAfter),
			log.Bool("pause_queue", retryErr.PauseQueue),
		)
		return nil, retryErr
	})

	waitCtx := reqCtx
	if rt.WaitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(reqCtx, rt.WaitTimeout)
		defer cancel()
	}
	resp, err := result.Wait(waitCtx)
	if err != nil {
		if waitCtx.Err() != nil && errors.Is(err, waitCtx.Err()) {
			return nil, &ThrottlingWaitError{Inner: err}
		}
		return nil, err
	}
	return resp, nil
}

func (rt *ThrottlingRoundTripper) drainResponseBody(ctx context.Context, resp *http.Response) {
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			rt.logger(ctx).Error("failed to close previous response body between retry attempts", log.Error(closeErr))
		}
	}()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		rt.logger(ctx).Error("failed to discard previous response body between retry attempts", log.Error(err))
	}
}

func (rt *ThrottlingRoundTripper) logger(ctx context.Context) log.FieldLogger {
	if rt.LoggerProvider != nil {
		return rt.LoggerProvider(ctx)
	}
	return rt.Logger
}

// DefaultCheckThrottle converts throttling responses into queue retries:
// 429 pauses the queue, 503 retries only the current request, temporary transport errors retry too.
// Retry-After header of the response, when present, is used as the retry delay.
func DefaultCheckThrottle(resp *http.Response, roundTripErr error) *throttlequeue.RetryError {
	if roundTripErr != nil {
		if CheckErrorIsTemporary(roundTripErr) {
			return &throttlequeue.RetryError{Message: roundTripErr.Error()}
		}
		return nil
	}
	if resp == nil {
		return nil
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		retryAfter, _ := parseRetryAfterFromResponse(resp)
		return &throttlequeue.RetryError{RetryAfter: retryAfter, PauseQueue: true, Message: resp.Status}
	case http.StatusServiceUnavailable:
		retryAfter, _ := parseRetryAfterFromResponse(resp)
		return &throttlequeue.RetryError{RetryAfter: retryAfter, Message: resp.Status}
	}
	return nil
}

// CheckErrorIsTemporary checks either error is temporary or not.
func CheckErrorIsTemporary(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var terr interface{ Temporary() bool }
	ok := errors.As(err, &terr)
	return ok && terr.Temporary()
}

// ThrottlingRoundTripperError is returned in RoundTrip method of ThrottlingRoundTripper
// when the original request cannot be enqueued or retried.
type ThrottlingRoundTripperError struct {
	Inner error
}

func (e *ThrottlingRoundTripperError) Error() string {
	return fmt.Sprintf("throttling round trip: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *ThrottlingRoundTripperError) Unwrap() error {
	return e.Inner
}

// ThrottlingWaitError is returned in RoundTrip method of ThrottlingRoundTripper
// when waiting for the queued request is interrupted by the context or WaitTimeout.
type ThrottlingWaitError struct {
	Inner error
}

func (e *ThrottlingWaitError) Error() string {
	return fmt.Sprintf("wait for queued request: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *ThrottlingWaitError) Unwrap() error {
	return e.Inner
}

// makeRequestBodyRewindable prepares a request body for potential retries.
// GetBody is preferred, a seekable body is rewound in place, and as a last resort
// the whole body is buffered in memory.
func makeRequestBodyRewindable(req *http.Request) (func(*http.Request) error, error) {
	if req.GetBody != nil {
		initialBody, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("get body before doing first request: %w", err)
		}
		req.Body = initialBody
		return func(r *http.Request) error {
			newBody, newBodyErr := r.GetBody()
			if newBodyErr != nil {
				return fmt.Errorf("get body for retry: %w", newBodyErr)
			}
			r.Body = newBody
			return nil
		}, nil
	}

	if reqBodySeeker, ok := req.Body.(io.ReadSeeker); ok {
		reqBodySeekOffset, err := reqBodySeeker.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("seek request body before doing first request: %w", err)
		}
		req.Body = io.NopCloser(req.Body)
		return func(r *http.Request) error {
			if _, seekErr := reqBodySeeker.Seek(reqBodySeekOffset, io.SeekStart); seekErr != nil {
				return fmt.Errorf(
					"seek request body (offset=%d, whence=%d) for retry: %w", reqBodySeekOffset, io.SeekStart, seekErr)
			}
			return nil
		}, nil
	}

	bufferedReqBody, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("read all request body before doing first request: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(bufferedReqBody))
	return func(r *http.Request) error {
		r.Body = io.NopCloser(bytes.NewReader(bufferedReqBody))
		return nil
	}, nil
}

func parseRetryAfterFromResponse(resp *http.Response) (retryAfter time.Duration, ok bool) {
	retryAfterVal := resp.Header.Get("Retry-After")
	if retryAfterVal == "" {
		return 0, false
	}

	parsedInt, parseIntErr := strconv.Atoi(retryAfterVal)
	if parseIntErr != nil {
		parsedTime, parsedTimeErr := time.Parse(time.RFC1123, retryAfterVal)
		if parsedTimeErr != nil {
			return 0, false
		}
		return time.Until(parsedTime), true
	}
	if parsedInt < 0 {
		return 0, false
	}
	return time.Duration(parsedInt) * time.Second, true
}
