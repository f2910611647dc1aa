package status

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/sweeney/jar-tracker/internal/reading"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string          `json:"event,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Alerts        map[string]bool `json:"alerts"`
	LastSample    *SampleJSON     `json:"last_sample,omitempty"`
	Mode          string          `json:"mode"`
	ParseErrors   uint64          `json:"parse_errors"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     string          `json:"start_time"`
	Timestamp     string          `json:"timestamp"`
	MQTT          MQTTStatus      `json:"mqtt"`
	Counts        CountsJSON      `json:"event_counts"`
	Config        ConfigJSON      `json:"config"`
}

// SampleJSON is the JSON representation of the last decoded sample.
type SampleJSON struct {
	Dist1      float64 `json:"dist1"`
	State1     bool    `json:"state1"`
	Dist2      float64 `json:"dist2"`
	State2     bool    `json:"state2"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	ReceivedAt string  `json:"received_at"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Raised    int `json:"alerts_raised"`
	Cleared   int `json:"alerts_cleared"`
	Misplaced int `json:"jars_marked_misplaced"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker,omitempty"`
	HTTPAddr    string `json:"http_addr"`
	SerialPort  string `json:"serial_port,omitempty"`
	LogCapacity int    `json:"log_capacity"`
}

func buildInner(snap Snapshot) StatusInner {
	alerts := make(map[string]bool, len(snap.Alerts))
	for row, v := range snap.Alerts {
		alerts[strconv.Itoa(row)] = v
	}

	mode := "serial"
	if snap.Config.Mock {
		mode = "mock"
	}

	inner := StatusInner{
		Alerts:        alerts,
		Mode:          mode,
		ParseErrors:   snap.ParseErrors,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Raised:    snap.Counts.Raised,
			Cleared:   snap.Counts.Cleared,
			Misplaced: snap.Counts.Misplaced,
		},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			SerialPort:  snap.Config.SerialPort,
			LogCapacity: snap.Config.LogCapacity,
		},
	}

	if s := snap.LastSample; s != nil {
		inner.LastSample = &SampleJSON{
			Dist1:      s.DistA,
			State1:     s.CloseA,
			Dist2:      s.DistB,
			State2:     s.CloseB,
			Lower:      s.Lower,
			Upper:      s.Upper,
			ReceivedAt: s.ReceivedAt.UTC().Format(time.RFC3339),
		}
	}

	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatSample returns the compact JSON for one sample, as pushed on the
// live feed.
func FormatSample(s reading.Sample) []byte {
	data, _ := json.Marshal(&SampleJSON{
		Dist1:      s.DistA,
		State1:     s.CloseA,
		Dist2:      s.DistB,
		State2:     s.CloseB,
		Lower:      s.Lower,
		Upper:      s.Upper,
		ReceivedAt: s.ReceivedAt.UTC().Format(time.RFC3339),
	})
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
