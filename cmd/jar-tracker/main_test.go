package main

import (
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/jar-tracker/internal/eventlog"
	"github.com/sweeney/jar-tracker/internal/hub"
	"github.com/sweeney/jar-tracker/internal/jars"
	"github.com/sweeney/jar-tracker/internal/led"
	"github.com/sweeney/jar-tracker/internal/logic"
	"github.com/sweeney/jar-tracker/internal/mqtt"
	"github.com/sweeney/jar-tracker/internal/serial"
	"github.com/sweeney/jar-tracker/internal/status"
)

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from the
// loop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

// line builds one wire-format line for the given sensor states.
func line(closeA, closeB bool) string {
	s := func(b bool) string {
		if b {
			return "25.0,1"
		}
		return "62.0,0"
	}
	return s(closeA) + "," + s(closeB) + ",30.0,50.0"
}

// repeat returns n copies of s.
func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func newTestLoop(lines []string, heartbeat time.Duration) (*loop, *mqtt.FakePublisher, *led.FakeSetter) {
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	setter := led.NewFakeSetter()
	l := &loop{
		source:     serial.NewFakeSource(lines),
		publisher:  pub,
		mqttStatus: pub,
		tracker: status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), []int{1, 2},
			status.Config{PollMs: 100}),
		machine:   logic.NewMachine([]int{1, 2}),
		board:     jars.NewBoard(map[int][]string{1: {"H004040"}, 2: {"R0244", "R0245"}}),
		events:    eventlog.New(100),
		feed:      hub.New(64),
		led:       setter,
		sensors:   [2]int{1, 2},
		heartbeat: heartbeat,
	}
	return l, pub, setter
}

// driver runs the loop in a goroutine and feeds it ticks, commands and
// finally a signal, mirroring how main wires the real channels.
type driver struct {
	tick  chan time.Time
	cmds  chan logic.Command
	sig   chan os.Signal
	errCh chan error
}

func startLoop(l *loop, clock func() time.Time) *driver {
	d := &driver{
		tick:  make(chan time.Time),
		cmds:  make(chan logic.Command, 4),
		sig:   make(chan os.Signal, 1),
		errCh: make(chan error, 1),
	}
	go func() {
		d.errCh <- l.run(clock, d.tick, d.cmds, d.sig)
	}()
	return d
}

func (d *driver) ticks(n int) {
	for i := 0; i < n; i++ {
		d.tick <- time.Time{}
	}
}

// command sends one manual action and waits for the loop's verdict.
func (d *driver) command(cmd logic.Command) error {
	cmd.Reply = make(chan error, 1)
	d.cmds <- cmd
	select {
	case err := <-cmd.Reply:
		return err
	case <-time.After(5 * time.Second):
		return errors.New("command reply timeout")
	}
}

func (d *driver) stop(s os.Signal) error {
	d.sig <- s
	select {
	case err := <-d.errCh:
		return err
	case <-time.After(5 * time.Second):
		return errors.New("loop did not exit")
	}
}

func TestRunLoopBaselineNoEvents(t *testing.T) {
	lines := repeat(line(false, false), 4)
	l, pub, _ := newTestLoop(lines, 0)
	d := startLoop(l, fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Millisecond))

	d.ticks(len(lines))
	if err := d.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	if len(pub.Events) != 0 {
		t.Errorf("expected 0 row events, got %d", len(pub.Events))
	}
	if len(pub.SystemEvents) != 1 || pub.SystemEvents[0].Event != "SHUTDOWN" {
		t.Errorf("expected exactly a SHUTDOWN system event, got %+v", pub.SystemEvents)
	}
}

func TestRunLoopSingleRaise(t *testing.T) {
	lines := append(repeat(line(false, false), 3), repeat(line(true, false), 3)...)
	l, pub, setter := newTestLoop(lines, 0)
	d := startLoop(l, fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Millisecond))

	d.ticks(len(lines))
	if err := d.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	if len(pub.Events) != 1 {
		t.Fatalf("expected 1 row event, got %d", len(pub.Events))
	}
	if pub.Events[0].Type != logic.EventAlertRaised || pub.Events[0].Row != 1 {
		t.Errorf("event: got %+v", pub.Events[0])
	}
	if l.events.Len() != 1 {
		t.Errorf("log length: got %d, want 1", l.events.Len())
	}
	if !setter.On {
		t.Error("alert LED should be on")
	}
}

func TestRunLoopRaiseAndClear(t *testing.T) {
	lines := append(repeat(line(false, false), 2),
		append(repeat(line(true, false), 2), repeat(line(false, false), 2)...)...)
	l, pub, setter := newTestLoop(lines, 0)
	d := startLoop(l, fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Millisecond))

	d.ticks(len(lines))
	if err := d.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	if len(pub.Events) != 2 {
		t.Fatalf("expected 2 row events, got %d", len(pub.Events))
	}
	if pub.Events[0].Type != logic.EventAlertRaised || pub.Events[1].Type != logic.EventAlertCleared {
		t.Errorf("events: got %s, %s", pub.Events[0].Type, pub.Events[1].Type)
	}
	if setter.On {
		t.Error("alert LED should be off after clear")
	}
}

func TestRunLoopBothRowsIndependent(t *testing.T) {
	lines := append(repeat(line(false, false), 2), repeat(line(true, true), 2)...)
	l, pub, _ := newTestLoop(lines, 0)
	d := startLoop(l, fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Millisecond))

	d.ticks(len(lines))
	if err := d.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	if len(pub.Events) != 2 {
		t.Fatalf("expected 2 row events, got %d", len(pub.Events))
	}
	rows := map[int]bool{}
	for _, ev := range pub.Events {
		if ev.Type != logic.EventAlertRaised {
			t.Errorf("event type: got %s", ev.Type)
		}
		rows[ev.Row] = true
	}
	if !rows[1] || !rows[2] {
		t.Errorf("expected raises on rows 1 and 2, got %v", rows)
	}
}

func TestRunLoopSkipsHeaderAndBlank(t *testing.T) {
	lines := []string{"Dist1,State1,Dist2,State2,Lower,Upper", "", line(false, false), line(true, false)}
	l, pub, _ := newTestLoop(lines, 0)
	d := startLoop(l, fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Millisecond))

	d.ticks(len(lines))
	if err := d.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	if len(pub.Events) != 1 {
		t.Fatalf("expected 1 row event, got %d", len(pub.Events))
	}
	snap := l.tracker.Snapshot()
	if snap.ParseErrors != 0 {
		t.Errorf("parse errors: got %d, want 0", snap.ParseErrors)
	}
}

func TestRunLoopMalformedLines(t *testing.T) {
	lines := []string{line(false, false), "garbage", "1,2,3", line(true, false)}
	l, pub, _ := newTestLoop(lines, 0)
	d := startLoop(l, fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Millisecond))

	d.ticks(len(lines))
	if err := d.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	// Malformed lines are counted and skipped; state tracking survives.
	snap := l.tracker.Snapshot()
	if snap.ParseErrors != 2 {
		t.Errorf("parse errors: got %d, want 2", snap.ParseErrors)
	}
	if len(pub.Events) != 1 || pub.Events[0].Type != logic.EventAlertRaised {
		t.Errorf("events: got %+v", pub.Events)
	}
}

func TestRunLoopReadErrors(t *testing.T) {
	l, pub, _ := newTestLoop(nil, 0)
	l.source = &serial.FakeSource{ReadError: errors.New("device gone")}
	d := startLoop(l, fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Millisecond))

	d.ticks(3)
	if err := d.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	// Loop survives read errors and still publishes SHUTDOWN.
	found := false
	for _, se := range pub.SystemEvents {
		if se.Event == "SHUTDOWN" {
			found = true
		}
	}
	if !found {
		t.Error("expected SHUTDOWN system event after read errors")
	}
}

func TestRunLoopClearAlertCommand(t *testing.T) {
	lines := append(repeat(line(false, false), 2), repeat(line(true, false), 2)...)
	l, pub, setter := newTestLoop(lines, 0)
	d := startLoop(l, fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Millisecond))

	d.ticks(len(lines))
	if err := d.command(logic.Command{Kind: logic.CommandClearAlert, Row: 1, Time: time.Now()}); err != nil {
		t.Fatalf("clear alert: %v", err)
	}
	if err := d.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	if len(pub.Events) != 2 {
		t.Fatalf("expected raise + manual clear, got %d events", len(pub.Events))
	}
	clear := pub.Events[1]
	if clear.Type != logic.EventAlertCleared || clear.Detail != "manual clear" {
		t.Errorf("clear event: got %+v", clear)
	}
	if setter.On {
		t.Error("alert LED should be off after manual clear")
	}
	if alerts := l.tracker.Alerts(); alerts[1] {
		t.Error("tracker still shows row 1 alerted")
	}
}

func TestRunLoopCommandCarriesRequestTime(t *testing.T) {
	lines := append(repeat(line(false, false), 2), repeat(line(true, false), 2)...)
	l, pub, _ := newTestLoop(lines, 0)
	d := startLoop(l, fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Millisecond))

	d.ticks(len(lines))
	stamp := time.Date(2026, 1, 1, 0, 42, 0, 0, time.UTC)
	if err := d.command(logic.Command{Kind: logic.CommandClearAlert, Row: 1, Time: stamp}); err != nil {
		t.Fatalf("clear alert: %v", err)
	}
	if err := d.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	// The manual clear is stamped with the time the operator acted.
	if len(pub.Events) != 2 {
		t.Fatalf("expected raise + clear, got %d events", len(pub.Events))
	}
	if !pub.Events[1].Time.Equal(stamp) {
		t.Errorf("clear time: got %v, want %v", pub.Events[1].Time, stamp)
	}
}

func TestRunLoopClearAlertUnknownRow(t *testing.T) {
	l, _, _ := newTestLoop(nil, 0)
	d := startLoop(l, fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Millisecond))

	err := d.command(logic.Command{Kind: logic.CommandClearAlert, Row: 9, Time: time.Now()})
	if !errors.Is(err, logic.ErrUnknownRow) {
		t.Errorf("expected ErrUnknownRow, got %v", err)
	}
	if err := d.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}
}

func TestRunLoopMarkMisplacedCommand(t *testing.T) {
	l, pub, _ := newTestLoop(nil, 0)
	d := startLoop(l, fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Millisecond))

	if err := d.command(logic.Command{Kind: logic.CommandMarkMisplaced, Jar: "R0244", Row: 1, Time: time.Now()}); err != nil {
		t.Fatalf("mark misplaced: %v", err)
	}
	if err := d.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	if len(pub.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.Events))
	}
	ev := pub.Events[0]
	if ev.Type != logic.EventJarMisplaced || !strings.Contains(ev.Detail, "row 2") {
		t.Errorf("event: got %+v", ev)
	}

	mismatches := l.board.Mismatches()
	if len(mismatches) != 1 || mismatches[0].Jar != "R0244" || mismatches[0].ObservedRow != 1 {
		t.Errorf("mismatches: got %+v", mismatches)
	}
	if l.machine.Counts().Misplaced != 1 {
		t.Errorf("misplaced count: got %d, want 1", l.machine.Counts().Misplaced)
	}
}

func TestRunLoopSetJarStatusCommand(t *testing.T) {
	l, _, _ := newTestLoop(nil, 0)
	d := startLoop(l, fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Millisecond))

	if err := d.command(logic.Command{Kind: logic.CommandSetJarStatus, Jar: "R0244", Row: 2, State: jars.StatusMissing, Time: time.Now()}); err != nil {
		t.Fatalf("set status: %v", err)
	}
	err := d.command(logic.Command{Kind: logic.CommandSetJarStatus, Jar: "R0244", Row: 2, State: "lost", Time: time.Now()})
	if !errors.Is(err, jars.ErrBadStatus) {
		t.Errorf("expected ErrBadStatus, got %v", err)
	}
	if err := d.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	statuses, err := l.board.RowStatus(2)
	if err != nil {
		t.Fatal(err)
	}
	if statuses["R0244"].Status != jars.StatusMissing {
		t.Errorf("R0244 status: got %q, want missing", statuses["R0244"].Status)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	// 5-minute clock step with a 15-minute heartbeat: the 4th tick is the
	// first one at or past the interval.
	lines := repeat(line(false, false), 5)
	l, pub, _ := newTestLoop(lines, 15*time.Minute)
	d := startLoop(l, fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 5*time.Minute))

	d.ticks(len(lines))
	if err := d.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	var heartbeats int
	for _, se := range pub.SystemEvents {
		if se.Event == "HEARTBEAT" {
			heartbeats++
			if se.RawPayload == nil {
				t.Error("heartbeat missing status payload")
			}
		}
	}
	if heartbeats != 1 {
		t.Errorf("expected 1 HEARTBEAT, got %d", heartbeats)
	}
}

func TestRunLoopShutdownReason(t *testing.T) {
	l, pub, _ := newTestLoop(nil, 0)
	d := startLoop(l, fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Millisecond))

	if err := d.stop(syscall.SIGINT); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	se := pub.SystemEvents[0]
	if se.Event != "SHUTDOWN" || se.Reason != "SIGINT" || !se.Retained {
		t.Errorf("shutdown event: got %+v", se)
	}
}

func TestRunLoopPublishesToHub(t *testing.T) {
	lines := append(repeat(line(false, false), 2), line(true, false))
	l, _, _ := newTestLoop(lines, 0)
	sub := l.feed.Subscribe()
	d := startLoop(l, fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Millisecond))

	d.ticks(len(lines))
	if err := d.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}
	l.feed.Unsubscribe(sub)

	var readings, events int
	for msg := range sub.C {
		switch msg.Event {
		case "reading":
			readings++
		case "event":
			events++
		}
	}
	if readings != 3 {
		t.Errorf("readings on feed: got %d, want 3", readings)
	}
	if events != 1 {
		t.Errorf("events on feed: got %d, want 1", events)
	}
}

func TestRunLoopPublishErrorDoesNotStop(t *testing.T) {
	lines := append(repeat(line(false, false), 2), repeat(line(true, false), 2)...)
	l, pub, _ := newTestLoop(lines, 0)
	pub.PublishError = errors.New("broker unavailable")
	d := startLoop(l, fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Millisecond))

	d.ticks(len(lines))
	if err := d.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	// The event still lands in the local log even though MQTT rejected it.
	if l.events.Len() != 1 {
		t.Errorf("log length: got %d, want 1", l.events.Len())
	}
}

func TestBrokerForDisplay(t *testing.T) {
	if got := brokerForDisplay("off"); got != "" {
		t.Errorf("off: got %q, want empty", got)
	}
	if got := brokerForDisplay("tcp://host:1883"); got != "tcp://host:1883" {
		t.Errorf("broker: got %q", got)
	}
}
