package audit

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestAuditLogger_LogCodec(t *testing.T) {
	logger := NewLogger(100, nil)

	logger.LogCodec(EventTypeDecode, "save01.sav", "76561197960265729", true, nil, 12*time.Millisecond)

	events := logger.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	event := events[0]
	if event.EventType != EventTypeDecode {
		t.Fatalf("expected event type %s, got %s", EventTypeDecode, event.EventType)
	}
	if event.File != "save01.sav" {
		t.Fatalf("expected file save01.sav, got %s", event.File)
	}
	if event.Identity != "76561197960265729" {
		t.Fatalf("expected identity 76561197960265729, got %s", event.Identity)
	}
	if !event.Success {
		t.Fatal("expected success to be true")
	}
	if event.Error != "" {
		t.Fatalf("expected empty error, got %s", event.Error)
	}
}

func TestAuditLogger_LogCodecFailure(t *testing.T) {
	logger := NewLogger(100, nil)

	logger.LogCodec(EventTypeEncode, "broken.yaml", "id", false, errors.New("boom"), time.Millisecond)

	events := logger.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Success {
		t.Fatal("expected success to be false")
	}
	if events[0].Error != "boom" {
		t.Fatalf("expected error boom, got %s", events[0].Error)
	}
}

func TestAuditLogger_LogResign(t *testing.T) {
	logger := NewLogger(100, nil)

	logger.LogResign("save01.sav", "76561197960265729", "76561197960265730", true, nil, 30*time.Millisecond)

	events := logger.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	event := events[0]
	if event.EventType != EventTypeResign {
		t.Fatalf("expected event type %s, got %s", EventTypeResign, event.EventType)
	}
	if event.Identity != "76561197960265729" {
		t.Fatalf("expected source identity, got %s", event.Identity)
	}
	if event.Target != "76561197960265730" {
		t.Fatalf("expected target identity, got %s", event.Target)
	}
}

func TestAuditLogger_LogSearch(t *testing.T) {
	logger := NewLogger(100, nil)

	logger.LogSearch("mystery.sav", false, nil, 5*time.Second)

	events := logger.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].EventType != EventTypeSearch {
		t.Fatalf("expected event type %s, got %s", EventTypeSearch, events[0].EventType)
	}
	if events[0].Success {
		t.Fatal("expected success to be false for an exhausted search")
	}
}

func TestAuditLogger_MaxEvents(t *testing.T) {
	logger := NewLogger(5, nil)

	for i := 0; i < 10; i++ {
		logger.LogCodec(EventTypeDecode, fmt.Sprintf("save%02d.sav", i), "id", true, nil, time.Millisecond)
	}

	events := logger.Events()
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	// Oldest events are dropped first.
	if events[0].File != "save05.sav" {
		t.Fatalf("expected oldest retained event save05.sav, got %s", events[0].File)
	}
	if events[4].File != "save09.sav" {
		t.Fatalf("expected newest event save09.sav, got %s", events[4].File)
	}
}

type captureWriter struct {
	events []*Event
}

func (w *captureWriter) WriteEvent(event *Event) error {
	w.events = append(w.events, event)
	return nil
}

func TestAuditLogger_EventWriter(t *testing.T) {
	writer := &captureWriter{}
	logger := NewLogger(100, writer)

	logger.LogCodec(EventTypeDecode, "save.sav", "id", true, nil, time.Millisecond)

	if len(writer.events) != 1 {
		t.Fatalf("expected writer to receive 1 event, got %d", len(writer.events))
	}
}
