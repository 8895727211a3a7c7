// Package audit records structured pipeline events for external review.
package audit

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes an audit record.
type EventType string

const (
	EventSubmission EventType = "SUBMISSION"
	EventRejection  EventType = "REJECTION"
	EventDecision   EventType = "DECISION"
	EventExecution  EventType = "EXECUTION"
	EventProof      EventType = "PROOF"
	EventSystem     EventType = "SYSTEM"
)

// Record is a single audit line.
type Record struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Action    string            `json:"action"`
	EventHash string            `json:"event_hash,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Logger records audit events.
type Logger interface {
	Record(eventType EventType, action, eventHash string, metadata map[string]string)
}

type logger struct {
	mu     sync.Mutex
	writer io.Writer
	clock  func() time.Time
}

// Option configures a Logger.
type Option func(*logger)

// WithClock overrides the timestamp source for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *logger) { l.clock = clock }
}

// NewLogger creates a Logger writing to os.Stdout.
func NewLogger(opts ...Option) Logger {
	return NewLoggerWithWriter(os.Stdout, opts...)
}

// NewLoggerWithWriter creates a Logger writing to the given writer.
// This allows injection for testing and custom sinks.
func NewLoggerWithWriter(w io.Writer, opts ...Option) Logger {
	if w == nil {
		w = os.Stdout
	}
	l := &logger{writer: w, clock: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *logger) Record(eventType EventType, action, eventHash string, metadata map[string]string) {
	record := Record{
		ID:        uuid.New().String(),
		Type:      eventType,
		Action:    action,
		EventHash: eventHash,
		Timestamp: l.clock().UTC(),
		Metadata:  metadata,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bytes, err := json.Marshal(record)
	if err != nil {
		return
	}
	// Prefix with AUDIT: for easy filtering
	_, _ = l.writer.Write(append([]byte("AUDIT: "), append(bytes, '\n')...))
}

// Nop returns a Logger that discards every record.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Record(EventType, string, string, map[string]string) {}
