/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient provides round trippers that throttle outgoing HTTP requests:
// a queue-backed one with retry/pause semantics and a plain token-bucket one.
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	throttlequeue "github.com/acronis/go-throttlequeue"
	"github.com/acronis/go-throttlequeue/log"
)

// New wraps delegate transport with rate limiting and throttling
// and returns an error if any occurs.
func New(cfg *Config) (*http.Client, error) {
	return NewWithOpts(cfg, Opts{})
}

// Must wraps delegate transport with rate limiting and throttling
// and panics if any error occurs.
func Must(cfg *Config) *http.Client {
	client, err := New(cfg)
	if err != nil {
		panic(err)
	}

	return client
}

// Opts provides options for NewWithOpts and MustWithOpts functions.
type Opts struct {
	// Delegate is the next RoundTripper in the chain.
	Delegate http.RoundTripper

	// Queue is a throttling queue to schedule requests on.
	// Passing a shared queue makes several clients share one quota.
	// When nil and throttling is enabled, a new queue is built from the configuration.
	Queue *throttlequeue.Queue[*http.Response]

	// Logger is used for logging.
	Logger log.FieldLogger

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger
}

// NewWithOpts wraps delegate transport with rate limiting and throttling
// and returns an error if any occurs.
func NewWithOpts(cfg *Config, opts Opts) (*http.Client, error) {
	var err error
	delegate := opts.Delegate

	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}

	if cfg.RateLimits.Enabled {
		delegate, err = NewRateLimitingRoundTripperWithOpts(
			delegate, cfg.RateLimits.Limit, cfg.RateLimits.TransportOpts(),
		)
		if err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
	}

	if cfg.Throttling.Enabled {
		queue := opts.Queue
		if queue == nil {
			queueOpts := cfg.Throttling.Queue.QueueOpts()
			queueOpts.Logger = opts.Logger
			if queue, err = throttlequeue.New[*http.Response](queueOpts); err != nil {
				return nil, fmt.Errorf("create throttling queue: %w", err)
			}
		}
		throttlingOpts := cfg.Throttling.TransportOpts()
		throttlingOpts.Logger = opts.Logger
		throttlingOpts.LoggerProvider = opts.LoggerProvider
		delegate, err = NewThrottlingRoundTripperWithOpts(delegate, queue, throttlingOpts)
		if err != nil {
			return nil, fmt.Errorf("create throttling round tripper: %w", err)
		}
	}

	return &http.Client{Transport: delegate, Timeout: time.Duration(cfg.Timeout)}, nil
}

// MustWithOpts wraps delegate transport with rate limiting and throttling
// and panics if any error occurs.
func MustWithOpts(cfg *Config, opts Opts) *http.Client {
	client, err := NewWithOpts(cfg, opts)
	if err != nil {
		panic(err)
	}

	return client
}
