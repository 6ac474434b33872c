package audit

import (
	"sync"
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	// EventTypeDecode represents a container decode operation.
	EventTypeDecode EventType = "decode"
	// EventTypeEncode represents a container encode operation.
	EventTypeEncode EventType = "encode"
	// EventTypeResign represents a full resign (decode + re-encode).
	EventTypeResign EventType = "resign"
	// EventTypeSearch represents a credential search run.
	EventTypeSearch EventType = "search"
)

// Event represents a single audit log event.
type Event struct {
	Timestamp time.Time     `json:"timestamp"`
	EventType EventType     `json:"event_type"`
	File      string        `json:"file,omitempty"`
	Identity  string        `json:"identity,omitempty"`
	Target    string        `json:"target,omitempty"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ms"`
}

// Logger is the interface for audit logging.
type Logger interface {
	// Log logs an audit event.
	Log(event *Event) error

	// LogCodec logs a decode or encode operation on one container.
	LogCodec(eventType EventType, file, identity string, success bool, err error, duration time.Duration)

	// LogResign logs a resign operation from one identity to another.
	LogResign(file, from, to string, success bool, err error, duration time.Duration)

	// LogSearch logs a credential search run.
	LogSearch(file string, found bool, err error, duration time.Duration)

	// Events returns a snapshot of the retained events, newest last.
	Events() []*Event
}

// EventWriter is an interface for writing audit events to an external sink.
type EventWriter interface {
	WriteEvent(event *Event) error
}

// auditLogger implements the Logger interface with a bounded in-memory ring.
type auditLogger struct {
	mu        sync.Mutex
	events    []*Event
	maxEvents int
	writer    EventWriter
}

// NewLogger creates a new audit logger. A nil writer keeps events in memory
// only.
func NewLogger(maxEvents int, writer EventWriter) Logger {
	return &auditLogger{
		events:    make([]*Event, 0, maxEvents),
		maxEvents: maxEvents,
		writer:    writer,
	}
}

// Log logs an audit event.
func (l *auditLogger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != nil {
		// Sink failures must not break the operation being audited.
		_ = l.writer.WriteEvent(event)
	}

	l.events = append(l.events, event)
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}
	return nil
}

// LogCodec logs a decode or encode operation on one container.
func (l *auditLogger) LogCodec(eventType EventType, file, identity string, success bool, err error, duration time.Duration) {
	event := &Event{
		Timestamp: time.Now(),
		EventType: eventType,
		File:      file,
		Identity:  identity,
		Success:   success,
		Duration:  duration,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// LogResign logs a resign operation from one identity to another.
func (l *auditLogger) LogResign(file, from, to string, success bool, err error, duration time.Duration) {
	event := &Event{
		Timestamp: time.Now(),
		EventType: EventTypeResign,
		File:      file,
		Identity:  from,
		Target:    to,
		Success:   success,
		Duration:  duration,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// LogSearch logs a credential search run.
func (l *auditLogger) LogSearch(file string, found bool, err error, duration time.Duration) {
	event := &Event{
		Timestamp: time.Now(),
		EventType: EventTypeSearch,
		File:      file,
		Success:   found,
		Duration:  duration,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// Events returns a snapshot of the retained events, newest last.
func (l *auditLogger) Events() []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*Event, len(l.events))
	copy(out, l.events)
	return out
}
