// Package metrics exposes the daemon's diagnostic counters for the
// /metrics endpoint. Counters are incremented from the writer loop;
// gauges read live state through registered closures.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/jar-tracker/internal/hub"
	"github.com/sweeney/jar-tracker/internal/serial"
)

const metricPrefix = "jartracker_"

var (
	// SamplesTotal counts successfully decoded sensor lines.
	SamplesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "samples_total",
		Help: "Decoded sensor samples",
	})

	// ParseErrors counts malformed lines discarded by the ingest loop.
	ParseErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "parse_errors_total",
		Help: "Malformed sensor lines discarded",
	})

	// ReadErrors counts failed serial reads (device gone, timeout chains).
	ReadErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "read_errors_total",
		Help: "Failed reads from the sensor source",
	})

	// EventsTotal counts emitted events by kind.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricPrefix + "events_total",
		Help: "Events appended to the log",
	}, []string{"kind"})

	// CommandsTotal counts manual actions by kind.
	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricPrefix + "commands_total",
		Help: "Manual commands applied by the writer loop",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(SamplesTotal, ParseErrors, ReadErrors, EventsTotal, CommandsTotal)
}

// RegisterHub registers live gauges over the broadcast hub.
func RegisterHub(h *hub.Hub) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "subscribers",
			Help: "Active live-view subscribers",
		},
		func() float64 { return float64(h.SubscriberCount()) },
	))

	prometheus.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: metricPrefix + "hub_dropped_total",
			Help: "Messages dropped by slow subscribers",
		},
		func() float64 { return float64(h.DroppedTotal()) },
	))
}

// RegisterSource registers the reopen counter of a real serial source.
// Not called in mock mode.
func RegisterSource(src *serial.RealSource) {
	prometheus.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: metricPrefix + "serial_reopens_total",
			Help: "Serial port reopens after a device failure",
		},
		func() float64 { return float64(src.Reopens()) },
	))
}
