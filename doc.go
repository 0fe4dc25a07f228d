/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package throttlequeue provides a client-side throttling queue for arbitrary units of work.
// It releases enqueued executions over time so that no more than a configured number
// run within any interval window, optionally spacing them evenly.
// A running execution may ask to be retried after a delay or to pause the whole queue,
// which makes the package convenient for wrapping calls to rate-limited remote APIs.
package throttlequeue
