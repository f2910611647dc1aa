// Package status provides a thread-safe status tracker for the jar-tracker
// daemon. It is the only window reader goroutines (HTTP handlers, SSE
// loops) get onto writer-owned row state: the writer pushes copies in,
// readers take copies out, nobody observes a row mid-mutation.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/jar-tracker/internal/logic"
	"github.com/sweeney/jar-tracker/internal/reading"
)

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	SerialPort  string
	Mock        bool
	LogCapacity int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	LastSample    *reading.Sample // nil until the first valid line
	Alerts        map[int]bool
	Counts        logic.EventCounts
	ParseErrors   uint64
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time, row ids and config.
func NewTracker(startTime time.Time, rowIDs []int, cfg Config) *Tracker {
	alerts := make(map[int]bool, len(rowIDs))
	for _, id := range rowIDs {
		alerts[id] = false
	}
	return &Tracker{
		snap: Snapshot{
			Alerts:    alerts,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets alert flags and event counts. Called from the writer loop
// after every transition; the map is copied, never retained.
func (t *Tracker) Update(alerts map[int]bool, counts logic.EventCounts) {
	copied := make(map[int]bool, len(alerts))
	for id, v := range alerts {
		copied[id] = v
	}
	t.mu.Lock()
	t.snap.Alerts = copied
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetLastSample records the most recent decoded sample.
func (t *Tracker) SetLastSample(s reading.Sample) {
	t.mu.Lock()
	t.snap.LastSample = &s
	t.mu.Unlock()
}

// AddParseError bumps the malformed-line counter.
func (t *Tracker) AddParseError() {
	t.mu.Lock()
	t.snap.ParseErrors++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	alerts := make(map[int]bool, len(s.Alerts))
	for id, v := range s.Alerts {
		alerts[id] = v
	}
	t.mu.RUnlock()
	s.Alerts = alerts
	s.Now = time.Now()
	return s
}

// Alerts returns a copy of just the per-row alert flags.
func (t *Tracker) Alerts() map[int]bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int]bool, len(t.snap.Alerts))
	for id, v := range t.snap.Alerts {
		out[id] = v
	}
	return out
}
