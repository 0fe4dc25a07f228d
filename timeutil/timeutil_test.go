/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package timeutil

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSeconds(t *testing.T) {
	tests := []struct {
		Name    string
		Value   interface{}
		Want    time.Duration
		WantErr bool
	}{
		{Name: "int", Value: 5, Want: 5 * time.Second},
		{Name: "float", Value: 1.5, Want: 1500 * time.Millisecond},
		{Name: "string", Value: "30", Want: 30 * time.Second},
		{Name: "float string", Value: "0.25", Want: 250 * time.Millisecond},
		{Name: "zero", Value: 0, Want: 0},
		{Name: "negative", Value: -2, Want: -2 * time.Second},
		{Name: "not a number", Value: "5s", WantErr: true},
		{Name: "nan", Value: math.NaN(), WantErr: true},
		{Name: "inf", Value: math.Inf(1), WantErr: true},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.Name, func(t *testing.T) {
			got, err := Seconds(tt.Value)
			if tt.WantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.Want, got)
		})
	}
}

func TestMinutesAndHours(t *testing.T) {
	d, err := Minutes(3)
	require.NoError(t, err)
	require.Equal(t, 3*time.Minute, d)

	d, err = Minutes("0.5")
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, d)

	d, err = Hours(2)
	require.NoError(t, err)
	require.Equal(t, 2*time.Hour, d)

	_, err = Hours("later")
	require.Error(t, err)
}

func TestMustHelpers(t *testing.T) {
	require.Equal(t, 10*time.Second, MustSeconds(10))
	require.Equal(t, time.Minute, MustMinutes(1))
	require.Equal(t, time.Hour, MustHours(1))
	require.Panics(t, func() { MustSeconds("oops") })
}
