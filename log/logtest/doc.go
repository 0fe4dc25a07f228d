/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest provides helpers for testing code that writes structured logs.
package logtest
