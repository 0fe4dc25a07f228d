/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-throttlequeue/log"
)

// RecordedEntry is a single captured log entry.
type RecordedEntry struct {
	LoggerName string
	Level      log.Level
	Time       time.Time
	Text       string
	Fields     []log.Field
}

// FindField looks up a structured field of the entry by its key.
func (re RecordedEntry) FindField(key string) (log.Field, bool) {
	for _, field := range re.Fields {
		if field.Key == key {
			return field, true
		}
	}
	return log.Field{}, false
}

type captureWriter struct {
	mu      sync.RWMutex
	entries []RecordedEntry
}

//nolint:gocritic
func (w *captureWriter) WriteEntry(e logf.Entry) {
	fields := make([]log.Field, 0, len(e.Fields)+len(e.DerivedFields))
	fields = append(fields, e.Fields...)
	fields = append(fields, e.DerivedFields...)

	w.mu.Lock()
	w.entries = append(w.entries, RecordedEntry{
		LoggerName: e.LoggerName,
		Level:      levelFromLogf(e.Level),
		Time:       e.Time,
		Text:       e.Text,
		Fields:     fields,
	})
	w.mu.Unlock()
}

// Recorder is a log.FieldLogger that captures every logged entry in memory
// so tests can assert on what was reported and with which fields.
type Recorder struct {
	*log.LogfAdapter
	writer *captureWriter
}

// NewRecorder returns a Recorder logging at debug level.
func NewRecorder() *Recorder {
	w := &captureWriter{}
	return &Recorder{&log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, w)}, w}
}

// With returns a new Recorder with the given additional fields.
// Entries logged through it are captured by the same underlying writer.
func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{r.LogfAdapter.With(fs...).(*log.LogfAdapter), r.writer}
}

// Entries returns a copy of all captured entries in logging order.
func (r *Recorder) Entries() []RecordedEntry {
	r.writer.mu.RLock()
	defer r.writer.mu.RUnlock()
	return append([]RecordedEntry(nil), r.writer.entries...)
}

// FindEntry finds the first captured entry with the given message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	return r.FindEntryByFilter(func(entry RecordedEntry) bool {
		return entry.Text == msg
	})
}

// FindEntryByFilter finds the first captured entry matching the filter.
func (r *Recorder) FindEntryByFilter(match func(entry RecordedEntry) bool) (RecordedEntry, bool) {
	r.writer.mu.RLock()
	defer r.writer.mu.RUnlock()
	for _, entry := range r.writer.entries {
		if match(entry) {
			return entry, true
		}
	}
	return RecordedEntry{}, false
}

func levelFromLogf(value logf.Level) log.Level {
	switch value {
	case logf.LevelError:
		return log.LevelError
	case logf.LevelWarn:
		return log.LevelWarn
	case logf.LevelInfo:
		return log.LevelInfo
	case logf.LevelDebug:
		return log.LevelDebug
	}
	return log.LevelInfo
}
