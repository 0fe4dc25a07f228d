/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package timeutil provides helpers for building time.Duration values
// from plain numeric magnitudes (ints, floats, or their string forms).
package timeutil

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/cast"
)

// Seconds converts a numeric magnitude into a duration measured in seconds.
// The value may be any integer or float type, or a string holding a number.
func Seconds(value interface{}) (time.Duration, error) {
	return durationIn(value, time.Second)
}

// MustSeconds is a variant of the Seconds that panics on error.
func MustSeconds(value interface{}) time.Duration {
	d, err := Seconds(value)
	if err != nil {
		panic(err)
	}
	return d
}

// Minutes converts a numeric magnitude into a duration measured in minutes.
func Minutes(value interface{}) (time.Duration, error) {
	return durationIn(value, time.Minute)
}

// MustMinutes is a variant of the Minutes that panics on error.
func MustMinutes(value interface{}) time.Duration {
	d, err := Minutes(value)
	if err != nil {
		panic(err)
	}
	return d
}

// Hours converts a numeric magnitude into a duration measured in hours.
func Hours(value interface{}) (time.Duration, error) {
	return durationIn(value, time.Hour)
}

// MustHours is a variant of the Hours that panics on error.
func MustHours(value interface{}) time.Duration {
	d, err := Hours(value)
	if err != nil {
		panic(err)
	}
	return d
}

func durationIn(value interface{}, unit time.Duration) (time.Duration, error) {
	magnitude, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, fmt.Errorf("parse duration magnitude: %w", err)
	}
	if math.IsNaN(magnitude) || math.IsInf(magnitude, 0) {
		return 0, fmt.Errorf("duration magnitude must be finite, got %v", magnitude)
	}
	return time.Duration(magnitude * float64(unit)), nil
}
