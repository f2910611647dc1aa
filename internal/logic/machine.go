package logic

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownRow rejects a command or input naming a row that is not configured.
var ErrUnknownRow = errors.New("unknown row")

// rowState holds the alert flag and the last sensor value actually applied.
// The two are tracked separately: a manual clear drops the alert but leaves
// lastClose untouched, so a stale still-triggered sample is not a flip and
// cannot re-raise. Only a genuine false→true edge raises again.
type rowState struct {
	alert     bool
	lastClose bool
	baselined bool
	lastDist  float64
}

// Machine tracks alert state for every configured row. Not safe for
// concurrent use: exactly one writer applies samples and commands, readers
// see state only through snapshots taken by that writer.
type Machine struct {
	rows   map[int]*rowState
	counts EventCounts
}

// NewMachine creates a Machine with one CLEAR row per id.
func NewMachine(rowIDs []int) *Machine {
	rows := make(map[int]*rowState, len(rowIDs))
	for _, id := range rowIDs {
		rows[id] = &rowState{}
	}
	return &Machine{rows: rows}
}

// Apply consumes one mapped sensor reading and returns the transition event,
// if any. The first reading for a row establishes its baseline without an
// event; repeated identical states emit nothing.
func (m *Machine) Apply(in Input) (*Event, error) {
	rs, ok := m.rows[in.Row]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRow, in.Row)
	}

	rs.lastDist = in.Distance
	if !rs.baselined {
		rs.baselined = true
		rs.lastClose = in.Close
		return nil, nil
	}
	if in.Close == rs.lastClose {
		return nil, nil
	}
	rs.lastClose = in.Close

	if in.Close {
		if rs.alert {
			// Alert already pending (sensor flipped back and forth after a
			// raise without a clear); record the flip, emit nothing.
			return nil, nil
		}
		rs.alert = true
		m.counts.Raised++
		return &Event{Row: in.Row, Type: EventAlertRaised, Time: in.Time, Distance: in.Distance}, nil
	}

	if !rs.alert {
		// Sensor released after a manual clear; nothing left to clear.
		return nil, nil
	}
	rs.alert = false
	m.counts.Cleared++
	return &Event{Row: in.Row, Type: EventAlertCleared, Time: in.Time, Distance: in.Distance}, nil
}

// ClearAlert applies a manual clear for the row. It wins immediately
// regardless of the current sensor value and emits an ALERT_CLEARED event.
// Clearing a row that is not alerted is a no-op success with no event.
// The last applied sensor value is deliberately left alone.
func (m *Machine) ClearAlert(row int, now time.Time) (*Event, error) {
	rs, ok := m.rows[row]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRow, row)
	}
	if !rs.alert {
		return nil, nil
	}
	rs.alert = false
	m.counts.Cleared++
	return &Event{Row: row, Type: EventAlertCleared, Time: now, Detail: "manual clear"}, nil
}

// HasRow reports whether the row id is configured.
func (m *Machine) HasRow(row int) bool {
	_, ok := m.rows[row]
	return ok
}

// Alerts returns a fresh copy of the per-row alert flags.
func (m *Machine) Alerts() map[int]bool {
	out := make(map[int]bool, len(m.rows))
	for id, rs := range m.rows {
		out[id] = rs.alert
	}
	return out
}

// CountMisplaced records one manual misplaced-jar action in the counts.
func (m *Machine) CountMisplaced() {
	m.counts.Misplaced++
}

// Counts returns the event counts since startup.
func (m *Machine) Counts() EventCounts {
	return m.counts
}
