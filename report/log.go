package report

import (
	"sync"
	"time"
)

// Severity tags a log entry.
type Severity string

const (
	// SeverityEvent records a step taken by a component.
	SeverityEvent Severity = "EVENT"
	// SeverityInfo records a final or summarizing note.
	SeverityInfo Severity = "INFO"
	// SeverityWarning records a non-fatal irregularity.
	SeverityWarning Severity = "WARNING"
	// SeverityError records a failure. Any ERROR entry in a job log marks the job as failed.
	SeverityError Severity = "ERROR"
)

// Entry is a single log message.
type Entry struct {
	Severity  Severity  `json:"severity"`
	Origin    string    `json:"origin"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"datetime"`
}

// Log is an append-only, ordered list of entries. It is safe for concurrent use.
type Log struct {
	defaultOrigin string

	mu      sync.Mutex
	entries []Entry
}

// NewLog creates an empty Log whose entries default to the given origin.
func NewLog(defaultOrigin string) *Log {
	return &Log{defaultOrigin: defaultOrigin}
}

// Log appends an entry with the default origin.
func (l *Log) Log(severity Severity, body string) {
	l.LogFrom(severity, l.defaultOrigin, body)
}

// LogFrom appends an entry with an explicit origin.
func (l *Log) LogFrom(severity Severity, origin, body string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{
		Severity:  severity,
		Origin:    origin,
		Body:      body,
		Timestamp: time.Now(),
	})
}

// Merge appends all entries of other, preserving their order.
func (l *Log) Merge(other *Log) {
	if other == nil || other == l {
		return
	}
	entries := other.Entries()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entries...)
}

// Entries returns a copy of all entries in insertion order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Filter returns the entries with the given severity in insertion order.
func (l *Log) Filter(severity Severity) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Severity == severity {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of entries with the given severity.
func (l *Log) Count(severity Severity) int {
	return len(l.Filter(severity))
}

// Contains reports whether at least one entry has the given severity.
func (l *Log) Contains(severity Severity) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.Severity == severity {
			return true
		}
	}
	return false
}

// Failed reports whether the log holds any ERROR entry.
func (l *Log) Failed() bool {
	return l.Contains(SeverityError)
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
