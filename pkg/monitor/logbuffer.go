package monitor

import (
	"sync"
	"time"
)

// DefaultLogCapacity is the number of operator log entries kept per run.
const DefaultLogCapacity = 50

// TimeOfDayFormat is the layout of LogEntry.TimeOfDay.
const TimeOfDayFormat = "15:04:05"

// Severity of an operator log entry.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityError Severity = "ERROR"
)

// LogEntry is one line of the operator log.
type LogEntry struct {
	TimeOfDay string   `json:"timeOfDay"`
	Message   string   `json:"message"`
	Severity  Severity `json:"severity"`
}

func (e LogEntry) String() string {
	return "[" + e.TimeOfDay + "] " + e.Message
}

// LogBuffer is a bounded FIFO of operator log entries. When full, appending
// evicts the oldest entry. Appends are serialized.
type LogBuffer struct {
	mu       sync.Mutex
	capacity int
	entries  []LogEntry
	now      func() time.Time
}

// NewLogBuffer creates a buffer holding at most capacity entries. A
// non-positive capacity selects DefaultLogCapacity.
func NewLogBuffer(capacity int, now func() time.Time) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &LogBuffer{
		capacity: capacity,
		entries:  make([]LogEntry, 0, capacity),
		now:      now,
	}
}

// Append stamps msg with the current time of day and adds it at the end.
func (b *LogBuffer) Append(msg string, sev Severity) {
	if sev == "" {
		sev = SeverityInfo
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	e := LogEntry{
		TimeOfDay: b.now().Format(TimeOfDayFormat),
		Message:   msg,
		Severity:  sev,
	}
	if len(b.entries) >= b.capacity {
		copy(b.entries, b.entries[1:])
		b.entries = b.entries[:len(b.entries)-1]
	}
	b.entries = append(b.entries, e)
}

// Entries returns a copy of the log, oldest first.
func (b *LogBuffer) Entries() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]LogEntry(nil), b.entries...)
}

// Len returns the number of entries held.
func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Reset empties the log.
func (b *LogBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = b.entries[:0]
}
