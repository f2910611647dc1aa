// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/jar-tracker/internal/logic"
)

// Topic is the MQTT topic for jar tracking events.
const Topic = "inventory/jars/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "inventory/jars/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a row event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Event EventPayload `json:"event"`
}

// EventPayload contains the row event details.
type EventPayload struct {
	Timestamp string  `json:"timestamp"`
	Type      string  `json:"type"`
	Row       int     `json:"row"`
	Distance  float64 `json:"distance,omitempty"`
	Detail    string  `json:"detail,omitempty"`
}

// FormatPayload creates the JSON payload for a row event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Event: EventPayload{
			Timestamp: event.Time.UTC().Format(time.RFC3339),
			Type:      string(event.Type),
			Row:       event.Row,
			Distance:  event.Distance,
			Detail:    event.Detail,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
