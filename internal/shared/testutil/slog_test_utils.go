package testutil

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

// LogRecord is one captured log line with its attributes flattened
type LogRecord struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// LogCapture is a slog.Handler that keeps every record in memory. Loggers
// derived with With share the capture of their parent.
type LogCapture struct {
	mu      *sync.Mutex
	records *[]LogRecord
	attrs   []slog.Attr
	t       testing.TB
}

// NewTestLogger returns a logger that captures every level, echoing each
// record to t.Log so failing tests show what was logged.
func NewTestLogger(t testing.TB) (*slog.Logger, *LogCapture) {
	c := &LogCapture{mu: &sync.Mutex{}, records: &[]LogRecord{}, t: t}
	return slog.New(c), c
}

func (c *LogCapture) Enabled(context.Context, slog.Level) bool { return true }

func (c *LogCapture) Handle(_ context.Context, r slog.Record) error {
	rec := LogRecord{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   make(map[string]any, len(c.attrs)+r.NumAttrs()),
	}
	for _, a := range c.attrs {
		rec.Attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.Attrs[a.Key] = a.Value.Any()
		return true
	})

	c.mu.Lock()
	*c.records = append(*c.records, rec)
	c.mu.Unlock()

	if c.t != nil {
		c.t.Logf("%s %s %v", r.Level, r.Message, rec.Attrs)
	}
	return nil
}

func (c *LogCapture) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := *c
	derived.attrs = append(slices.Clip(c.attrs), attrs...)
	return &derived
}

// WithGroup flattens groups; tests look attributes up by their bare key.
func (c *LogCapture) WithGroup(string) slog.Handler { return c }

// GetRecords returns a copy of everything captured so far
func (c *LogCapture) GetRecords() []LogRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(*c.records)
}

// GetRecordsByLevel returns the records logged at exactly level
func (c *LogCapture) GetRecordsByLevel(level slog.Level) []LogRecord {
	return slices.DeleteFunc(c.GetRecords(), func(r LogRecord) bool { return r.Level != level })
}

// Count returns the number of captured records
func (c *LogCapture) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(*c.records)
}

// ContainsMessage reports whether any record's message contains msg
func (c *LogCapture) ContainsMessage(msg string) bool {
	return slices.ContainsFunc(c.GetRecords(), func(r LogRecord) bool {
		return strings.Contains(r.Message, msg)
	})
}

// ContainsAttr reports whether any record carries key with value
func (c *LogCapture) ContainsAttr(key string, value any) bool {
	return slices.ContainsFunc(c.GetRecords(), func(r LogRecord) bool {
		v, ok := r.Attrs[key]
		return ok && v == value
	})
}
