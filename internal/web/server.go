// Package web provides the HTTP dashboard and command surface for the
// jar-tracker daemon. Handlers only read snapshot containers or forward
// commands to the writer loop; they never mutate row state directly.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/jar-tracker/internal/eventlog"
	"github.com/sweeney/jar-tracker/internal/hub"
	"github.com/sweeney/jar-tracker/internal/jars"
	"github.com/sweeney/jar-tracker/internal/logic"
	"github.com/sweeney/jar-tracker/internal/status"
)

// defaultLogCount is the number of events /log returns without an n param.
const defaultLogCount = 50

// commandTimeout bounds how long a handler waits for the writer loop.
const commandTimeout = 2 * time.Second

var errCommandTimeout = errors.New("command queue busy")

// Deps are the read and command surfaces handlers work against.
type Deps struct {
	Tracker  *status.Tracker
	Log      *eventlog.Log
	Board    *jars.Board
	Hub      *hub.Hub
	Commands chan<- logic.Command
}

// Server serves the dashboard over HTTP.
type Server struct {
	httpServer *http.Server
	deps       Deps
}

// New creates a Server with the given dependencies.
func New(addr string, deps Deps) *Server {
	s := &Server{deps: deps}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/status.json", s.handleStatusJSON)
	mux.HandleFunc("/alerts", s.handleAlerts)
	mux.HandleFunc("/log", s.handleLog)
	mux.HandleFunc("/misplaced", s.handleMisplaced)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/clear_alert/", s.handleClearAlert)
	mux.HandleFunc("/mark_wrong_jar", s.handleMarkWrongJar)
	mux.HandleFunc("/update_jar_status", s.handleUpdateJarStatus)
	mux.HandleFunc("/jar_status/", s.handleJarStatus)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderIndex(w, s.deps.Tracker.Snapshot(), s.deps.Board)
}

func (s *Server) handleStatusJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.deps.Tracker.Snapshot()))
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := s.deps.Tracker.Alerts()
	out := make(map[string]bool, len(alerts))
	for row, v := range alerts {
		out[strconv.Itoa(row)] = v
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	n := defaultLogCount
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "invalid n")
			return
		}
		n = v
	}
	events := s.deps.Log.Recent(n)
	if events == nil {
		events = []logic.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) handleMisplaced(w http.ResponseWriter, r *http.Request) {
	mismatches := s.deps.Board.Mismatches()
	if mismatches == nil {
		mismatches = []jars.Mismatch{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"misplaced": mismatches})
}

func (s *Server) handleClearAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	row, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/clear_alert/"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid row")
		return
	}

	err = s.sendCommand(r.Context(), logic.Command{Kind: logic.CommandClearAlert, Row: row})
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleMarkWrongJar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req struct {
		Jar     string `json:"jar"`
		FoundIn int    `json:"found_in"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Jar == "" || req.FoundIn == 0 {
		writeError(w, http.StatusBadRequest, "missing data")
		return
	}

	err := s.sendCommand(r.Context(), logic.Command{
		Kind: logic.CommandMarkMisplaced,
		Jar:  req.Jar,
		Row:  req.FoundIn,
	})
	if err != nil {
		writeCommandError(w, err)
		return
	}

	resp := map[string]interface{}{"success": true}
	if correct, known := s.deps.Board.ExpectedRow(req.Jar); known {
		resp["correct_row"] = correct
		resp["message"] = "Jar " + req.Jar + " belongs in row " + strconv.Itoa(correct)
	} else {
		resp["message"] = "Jar not found in database."
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateJarStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req struct {
		Jar    string `json:"jar_id"`
		Status string `json:"status"`
		Row    int    `json:"row"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Jar == "" || req.Status == "" || req.Row == 0 {
		writeError(w, http.StatusBadRequest, "missing data")
		return
	}

	err := s.sendCommand(r.Context(), logic.Command{
		Kind:  logic.CommandSetJarStatus,
		Jar:   req.Jar,
		Row:   req.Row,
		State: req.Status,
	})
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Jar " + req.Jar + " marked as " + req.Status,
	})
}

func (s *Server) handleJarStatus(w http.ResponseWriter, r *http.Request) {
	row, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/jar_status/"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid row")
		return
	}
	statuses, err := s.deps.Board.RowStatus(row)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "jars": statuses})
}

// handleEvents is the SSE live feed. Each subscription starts with a full
// status snapshot; after that the client sees whatever the hub delivers.
// Delivery is lossy under backpressure, but the latest state always
// arrives eventually.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := s.deps.Hub.Subscribe()
	defer s.deps.Hub.Unsubscribe(sub)

	snap := status.FormatStatusEvent(s.deps.Tracker.Snapshot(), "", "")
	if err := writeSSE(w, "snapshot", snap); err != nil {
		return
	}
	flusher.Flush()

	done := r.Context().Done()
	for {
		select {
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeSSE(w, msg.Event, msg.Data); err != nil {
				// Disconnect detected on failed write; unsubscribe via defer.
				return
			}
			flusher.Flush()
		case <-done:
			return
		}
	}
}

// sendCommand funnels a manual action through the writer loop and waits
// for its verdict.
func (s *Server) sendCommand(ctx context.Context, cmd logic.Command) error {
	cmd.Time = time.Now()
	cmd.Reply = make(chan error, 1)

	select {
	case s.deps.Commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(commandTimeout):
		return errCommandTimeout
	}

	select {
	case err := <-cmd.Reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(commandTimeout):
		return errCommandTimeout
	}
}

func writeSSE(w http.ResponseWriter, event string, data []byte) error {
	if _, err := w.Write([]byte("event: " + event + "\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n\n"))
	return err
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]interface{}{"success": false, "error": msg})
}

func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, logic.ErrUnknownRow), errors.Is(err, jars.ErrUnknownRow):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, jars.ErrUnknownJar), errors.Is(err, jars.ErrBadStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errCommandTimeout):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
