package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/jar-tracker/internal/logic"
)

func TestFormatPayload(t *testing.T) {
	event := logic.Event{
		Row:      2,
		Type:     logic.EventAlertRaised,
		Time:     time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		Distance: 24.7,
	}

	data, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("FormatPayload: %v", err)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if p.Event.Type != "ALERT_RAISED" {
		t.Errorf("type: got %q, want ALERT_RAISED", p.Event.Type)
	}
	if p.Event.Row != 2 {
		t.Errorf("row: got %d, want 2", p.Event.Row)
	}
	if p.Event.Distance != 24.7 {
		t.Errorf("distance: got %g, want 24.7", p.Event.Distance)
	}
	if p.Event.Timestamp != "2026-03-01T12:30:00Z" {
		t.Errorf("timestamp: got %q", p.Event.Timestamp)
	}
}

func TestFormatPayloadOmitsAbsentFields(t *testing.T) {
	event := logic.Event{
		Row:    1,
		Type:   logic.EventAlertCleared,
		Time:   time.Now(),
		Detail: "manual clear",
	}

	data, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("FormatPayload: %v", err)
	}

	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, present := raw["event"]["distance"]; present {
		t.Error("zero distance must be omitted")
	}
	if raw["event"]["detail"] != "manual clear" {
		t.Errorf("detail: got %v", raw["event"]["detail"])
	}
}

func TestFormatSystemPayload(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	data, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("FormatSystemPayload: %v", err)
	}

	var p SystemPayload
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if p.System.Event != "SHUTDOWN" || p.System.Reason != "SIGTERM" {
		t.Errorf("got %+v", p.System)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"custom":true}`)
	data, err := FormatSystemPayload(SystemEvent{RawPayload: raw})
	if err != nil {
		t.Fatalf("FormatSystemPayload: %v", err)
	}
	if string(data) != string(raw) {
		t.Errorf("got %s, want raw payload passthrough", data)
	}
}

func TestFakePublisherRecords(t *testing.T) {
	f := NewFakePublisher()

	event := logic.Event{Row: 1, Type: logic.EventAlertRaised, Time: time.Now(), Distance: 20}
	if err := f.Publish(event); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(f.Events) != 1 || len(f.Payloads) != 1 {
		t.Fatalf("recorded %d events, %d payloads", len(f.Events), len(f.Payloads))
	}

	f.PublishError = errors.New("down")
	if err := f.Publish(event); err == nil {
		t.Error("expected injected publish error")
	}

	f.Reset()
	if len(f.Events) != 0 || f.PublishError != nil {
		t.Error("Reset did not clear state")
	}
}
