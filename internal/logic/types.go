// Package logic contains pure business logic for per-row alert tracking.
// This package has NO external dependencies (no serial, MQTT, OS, or
// time.Sleep). Time is always injectable via time.Time parameters.
package logic

import "time"

// EventType identifies a state transition or manual action.
type EventType string

const (
	EventAlertRaised  EventType = "ALERT_RAISED"
	EventAlertCleared EventType = "ALERT_CLEARED"
	EventJarMisplaced EventType = "JAR_MARKED_MISPLACED"
)

// Event is one entry of the append-only log. Immutable.
type Event struct {
	Row      int       `json:"row"`
	Type     EventType `json:"event"`
	Time     time.Time `json:"time"`
	Distance float64   `json:"distance,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// Input is one sensor reading already mapped onto a logical row.
type Input struct {
	Row      int
	Close    bool
	Distance float64
	Time     time.Time
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	Raised    int
	Cleared   int
	Misplaced int
}

// CommandKind identifies a manual action funneled through the writer loop.
type CommandKind string

const (
	CommandClearAlert    CommandKind = "clear_alert"
	CommandMarkMisplaced CommandKind = "mark_misplaced"
	CommandSetJarStatus  CommandKind = "set_jar_status"
)

// Command is a manual action from the web layer. Commands are applied by
// the single writer loop, never concurrently with sensor samples. Reply
// receives exactly one value: nil on success or the rejection error.
type Command struct {
	Kind  CommandKind
	Row   int
	Jar   string
	State string // jar status, CommandSetJarStatus only
	Time  time.Time
	Reply chan error
}
