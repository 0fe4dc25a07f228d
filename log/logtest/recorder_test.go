/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-throttlequeue/log"
)

func TestRecorderCapturesEntries(t *testing.T) {
	recorder := NewRecorder()

	recorder.Info("execution admitted", log.String("executionID", "c1bfqrv6n4e1hfcpvs00"))
	recorder.With(log.Int("attempt", 2)).Warn("execution retry scheduled")

	entries := recorder.Entries()
	require.Len(t, entries, 2)

	entry, found := recorder.FindEntry("execution admitted")
	require.True(t, found)
	require.Equal(t, log.LevelInfo, entry.Level)
	field, found := entry.FindField("executionID")
	require.True(t, found)
	require.Equal(t, "c1bfqrv6n4e1hfcpvs00", string(field.Bytes))

	entry, found = recorder.FindEntry("execution retry scheduled")
	require.True(t, found)
	require.Equal(t, log.LevelWarn, entry.Level)
	_, found = entry.FindField("attempt")
	require.True(t, found, "fields added via With must be captured on derived entries")

	_, found = recorder.FindEntry("no such message")
	require.False(t, found)
}

func TestRecorderFindEntryByFilter(t *testing.T) {
	recorder := NewRecorder()
	recorder.Error("queue pause requested")
	recorder.Debug("queue pause elapsed")

	entry, found := recorder.FindEntryByFilter(func(entry RecordedEntry) bool {
		return entry.Level == log.LevelError
	})
	require.True(t, found)
	require.Equal(t, "queue pause requested", entry.Text)
}
