// Command jar-tracker reads the dual-sensor shelf unit over serial, tracks
// per-row alert state, and serves the dashboard over HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/jar-tracker/internal/config"
	"github.com/sweeney/jar-tracker/internal/eventlog"
	"github.com/sweeney/jar-tracker/internal/hub"
	"github.com/sweeney/jar-tracker/internal/jars"
	"github.com/sweeney/jar-tracker/internal/led"
	"github.com/sweeney/jar-tracker/internal/logic"
	"github.com/sweeney/jar-tracker/internal/metrics"
	"github.com/sweeney/jar-tracker/internal/mqtt"
	"github.com/sweeney/jar-tracker/internal/reading"
	"github.com/sweeney/jar-tracker/internal/serial"
	"github.com/sweeney/jar-tracker/internal/status"
	"github.com/sweeney/jar-tracker/internal/web"
)

// Mock-mode hysteresis band, matching the firmware's default thresholds.
const (
	mockLower = 30.0
	mockUpper = 50.0
)

// commandQueueDepth bounds how many manual actions can wait for the loop.
const commandQueueDepth = 8

func main() {
	poll := flag.Duration("poll", 100*time.Millisecond, "Serial polling interval")
	configPath := flag.String("config", "", "Path to shelf config yaml (empty for built-in layout)")
	broker := flag.String("broker", "tcp://192.168.1.200:1883", `MQTT broker address ("off" disables)`)
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	httpAddr := flag.String("http", ":80", "HTTP dashboard address (empty to disable)")
	ledPin := flag.Int("led-pin", led.DefaultPin, "BCM pin number for the alert LED (0 to disable)")
	port := flag.String("port", "", "Serial port (overrides config)")
	mock := flag.Bool("mock", false, "Synthesize sensor data instead of reading serial")
	printLine := flag.Bool("print-line", false, "Print one sensor line and exit")

	flag.Parse()

	if err := run(*poll, *configPath, *broker, *heartbeat, *httpAddr, *ledPin, *port, *mock, *printLine); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(poll time.Duration, configPath, broker string, heartbeat time.Duration, httpAddr string, ledPin int, portOverride string, mock, printLine bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if portOverride != "" {
		cfg.Serial.Port = portOverride
	}

	// Initialize the sensor source
	var source serial.Source
	if mock {
		source = serial.NewMockSource(mockLower, mockUpper, time.Now().UnixNano())
	} else {
		real, err := serial.NewRealSource(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			// Not fatal: the source reopens the port on later reads.
			log.Printf("serial: %v (will keep retrying)", err)
		}
		metrics.RegisterSource(real)
		source = real
	}
	defer source.Close()

	// Print-line mode
	if printLine {
		for i := 0; i < 50; i++ {
			line, err := source.ReadLine()
			if err != nil {
				return fmt.Errorf("read line: %w", err)
			}
			if line != "" {
				fmt.Println(line)
				return nil
			}
		}
		return fmt.Errorf("no line from %s", cfg.Serial.Port)
	}

	// Initialize MQTT
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if broker != "off" {
		real, err := mqtt.NewRealPublisher(broker)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer real.Close()
		publisher = real
		mqttStatus = real
	}

	// Initialize the alert LED
	var alertLED led.Setter
	if ledPin > 0 {
		real, err := led.NewRealSetter(ledPin)
		if err != nil {
			// Alerts still reach the dashboard and MQTT without the LED.
			log.Printf("led: %v (continuing without)", err)
		} else {
			alertLED = real
			defer real.Close()
		}
	}

	startTime := time.Now()
	machine := logic.NewMachine(cfg.RowIDs())
	board := jars.NewBoard(cfg.RowJars())
	events := eventlog.New(cfg.LogCapacity)
	feed := hub.New(cfg.HubBuffer)
	defer feed.Close()
	metrics.RegisterHub(feed)

	serialPort := cfg.Serial.Port
	if mock {
		serialPort = ""
	}
	tracker := status.NewTracker(startTime, cfg.RowIDs(), status.Config{
		PollMs:      poll.Milliseconds(),
		HeartbeatMs: heartbeat.Milliseconds(),
		Broker:      brokerForDisplay(broker),
		HTTPAddr:    httpAddr,
		SerialPort:  serialPort,
		Mock:        mock,
		LogCapacity: cfg.LogCapacity,
	})

	// Publish startup event with full status snapshot
	if publisher != nil {
		snap := tracker.Snapshot()
		startupEvent := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startupEvent); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		} else {
			log.Printf("published startup event")
		}
	}

	commands := make(chan logic.Command, commandQueueDepth)

	// Start HTTP dashboard
	if httpAddr != "" {
		srv := web.New(httpAddr, web.Deps{
			Tracker:  tracker,
			Log:      events,
			Board:    board,
			Hub:      feed,
			Commands: commands,
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer func() {
			// Close the hub first so SSE handlers parked on their subscriber
			// channel return; Shutdown waits for active connections and would
			// otherwise never see the streams go idle.
			feed.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Printf("http shutdown: %v", err)
			}
		}()
		log.Printf("http dashboard listening on %s", httpAddr)
	}

	log.Printf("started: poll=%v port=%s rows=%v broker=%s heartbeat=%v mock=%v",
		poll, serialPort, cfg.RowIDs(), brokerForDisplay(broker), heartbeat, mock)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	l := &loop{
		source:     source,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		machine:    machine,
		board:      board,
		events:     events,
		feed:       feed,
		led:        alertLED,
		sensors:    cfg.SensorRows(),
		heartbeat:  heartbeat,
	}
	return l.run(time.Now, ticker.C, commands, sigCh)
}

// loop owns all mutable row state. Exactly one goroutine executes run;
// everything else observes state through the tracker, log, board and hub.
type loop struct {
	source     serial.Source
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	machine    *logic.Machine
	board      *jars.Board
	events     *eventlog.Log
	feed       *hub.Hub
	led        led.Setter
	sensors    [2]int
	heartbeat  time.Duration
}

func (l *loop) run(now func() time.Time, tick <-chan time.Time, commands <-chan logic.Command, sig <-chan os.Signal) error {
	lastHeartbeat := now()

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			if l.publisher != nil {
				l.refreshMQTTStatus()
				snap := l.tracker.Snapshot()
				event := mqtt.SystemEvent{
					Timestamp:  now(),
					Event:      "SHUTDOWN",
					Reason:     signalName,
					Retained:   true,
					RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
				}
				if err := l.publisher.PublishSystem(event); err != nil {
					log.Printf("failed to publish shutdown event: %v", err)
				} else {
					log.Printf("published shutdown event")
				}
			}
			return nil

		case cmd := <-commands:
			metrics.CommandsTotal.WithLabelValues(string(cmd.Kind)).Inc()
			// Events carry the time the operator acted, not the time the
			// loop got around to the command.
			t := cmd.Time
			if t.IsZero() {
				t = now()
			}
			err := l.applyCommand(cmd, t)
			if cmd.Reply != nil {
				cmd.Reply <- err
			}

		case <-tick:
			t := now()
			l.pollOnce(t)

			if l.heartbeat > 0 && t.Sub(lastHeartbeat) >= l.heartbeat {
				lastHeartbeat = t
				l.publishHeartbeat(t)
			}
		}
	}
}

// pollOnce reads and processes at most one sensor line.
func (l *loop) pollOnce(t time.Time) {
	line, err := l.source.ReadLine()
	if err != nil {
		log.Printf("serial read error: %v", err)
		metrics.ReadErrors.Inc()
		return
	}
	if reading.Skippable(line) {
		return
	}

	sample, err := reading.Parse(line, t)
	if err != nil {
		log.Printf("parse error: %v", err)
		metrics.ParseErrors.Inc()
		l.tracker.AddParseError()
		return
	}
	metrics.SamplesTotal.Inc()
	l.tracker.SetLastSample(sample)
	l.feed.Publish(hub.Message{Event: "reading", Data: status.FormatSample(sample)})

	for _, rr := range reading.Split(sample, l.sensors) {
		event, err := l.machine.Apply(logic.Input{
			Row:      rr.Row,
			Close:    rr.Close,
			Distance: rr.Distance,
			Time:     rr.Time,
		})
		if err != nil {
			log.Printf("apply row %d: %v", rr.Row, err)
			continue
		}
		if event != nil {
			l.emit(*event)
		}
	}

	l.refreshMQTTStatus()
	l.updateOutputs()
}

// applyCommand executes one manual action from the web layer.
func (l *loop) applyCommand(cmd logic.Command, t time.Time) error {
	switch cmd.Kind {
	case logic.CommandClearAlert:
		event, err := l.machine.ClearAlert(cmd.Row, t)
		if err != nil {
			return err
		}
		if event != nil {
			l.emit(*event)
		}
		l.updateOutputs()
		return nil

	case logic.CommandMarkMisplaced:
		expected, known, err := l.board.MarkFound(cmd.Jar, cmd.Row, t)
		if err != nil {
			return err
		}
		l.machine.CountMisplaced()
		detail := "jar " + cmd.Jar
		if known {
			detail = fmt.Sprintf("jar %s belongs in row %d", cmd.Jar, expected)
		}
		l.emit(logic.Event{
			Row:    cmd.Row,
			Type:   logic.EventJarMisplaced,
			Time:   t,
			Detail: detail,
		})
		l.updateOutputs()
		return nil

	case logic.CommandSetJarStatus:
		return l.board.SetStatus(cmd.Jar, cmd.State, cmd.Row, t)
	}
	return fmt.Errorf("unknown command kind %q", cmd.Kind)
}

// emit records one event everywhere it goes: log, live feed, MQTT, metrics.
func (l *loop) emit(event logic.Event) {
	log.Printf("event: %s row=%d%s", event.Type, event.Row, detailSuffix(event.Detail))
	l.events.Append(event)
	metrics.EventsTotal.WithLabelValues(string(event.Type)).Inc()

	if data, err := json.Marshal(event); err == nil {
		l.feed.Publish(hub.Message{Event: "event", Data: data})
	}

	if l.publisher != nil {
		if err := l.publisher.Publish(event); err != nil {
			// Don't crash on publish failure
			log.Printf("publish error: %v", err)
		}
	}
}

// updateOutputs pushes the machine's state to readers: tracker for HTTP,
// LED for the shelf.
func (l *loop) updateOutputs() {
	alerts := l.machine.Alerts()
	l.tracker.Update(alerts, l.machine.Counts())

	if l.led != nil {
		any := false
		for _, v := range alerts {
			if v {
				any = true
				break
			}
		}
		if err := l.led.Set(any); err != nil {
			log.Printf("led error: %v", err)
		}
	}
}

func (l *loop) refreshMQTTStatus() {
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

func (l *loop) publishHeartbeat(t time.Time) {
	if l.publisher == nil {
		return
	}
	l.refreshMQTTStatus()
	snap := l.tracker.Snapshot()
	log.Printf("heartbeat: uptime=%v raised=%d cleared=%d misplaced=%d parse_errors=%d",
		snap.Uptime().Truncate(time.Second),
		snap.Counts.Raised, snap.Counts.Cleared, snap.Counts.Misplaced, snap.ParseErrors)

	event := mqtt.SystemEvent{
		Timestamp:  t,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
}

func detailSuffix(detail string) string {
	if detail == "" {
		return ""
	}
	return " (" + detail + ")"
}

func brokerForDisplay(broker string) string {
	if broker == "off" {
		return ""
	}
	return broker
}
