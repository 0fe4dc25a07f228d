/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type MockT struct {
	Failed bool
	Format string
	Args   []interface{}
}

func (t *MockT) FailNow() {
	t.Failed = true
}

func (t *MockT) Errorf(format string, args ...interface{}) {
	t.Format, t.Args = format, args
}

func TestAssertSamplesCountInCounter(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter"})
	counter.Inc()
	counter.Inc()

	mockT := &MockT{}
	require.True(t, AssertSamplesCountInCounter(mockT, counter, 2))
	require.False(t, mockT.Failed)

	require.False(t, AssertSamplesCountInCounter(mockT, counter, 3))
}

func TestAssertSamplesCountInHistogram(t *testing.T) {
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_histogram"})
	hist.Observe(0.1)
	hist.Observe(0.2)
	hist.Observe(0.3)

	mockT := &MockT{}
	require.True(t, AssertSamplesCountInHistogram(mockT, hist, 3))
	require.False(t, AssertSamplesCountInHistogram(mockT, hist, 1))
}

func TestAssertGaugeValue(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge"})
	gauge.Set(7)

	mockT := &MockT{}
	require.True(t, AssertGaugeValue(mockT, gauge, 7))
	require.False(t, AssertGaugeValue(mockT, gauge, 8))
}
