// Package api serves the play-mode HTTP surface: commands, scene and
// variable inspection, the journal over REST and WebSocket, health and
// Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/SentientPlay/internal/events"
	"github.com/AaronLay10/SentientPlay/internal/orchestrator"
)

// Source tags commands that arrived over HTTP in the journal.
const Source = "api"

const defaultEventLimit = 200

// Controller is the play-mode surface the server exposes.
type Controller interface {
	Execute(cmd orchestrator.Command, source string) error
	Status() orchestrator.Status
	Entities() []orchestrator.EntityInfo
	Entity(id string) (orchestrator.EntityDetail, bool)
	Stats() orchestrator.Stats
	Variables() []orchestrator.Variable
	Graphs() []string
}

// Options configure a Server.
type Options struct {
	// Journal defaults to events.Default().
	Journal   *events.Journal
	Auth      *Auth
	TLS       *TLSConfig
	Readiness *Readiness
	ProjectID string
	Logger    *slog.Logger
}

// Server is the HTTP API for one Controller.
type Server struct {
	ctrl      Controller
	journal   *events.Journal
	auth      *Auth
	tls       *TLSConfig
	readiness *Readiness
	projectID string
	started   time.Time
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

func NewServer(ctrl Controller, opts Options) *Server {
	s := &Server{
		ctrl:      ctrl,
		journal:   opts.Journal,
		auth:      opts.Auth,
		tls:       opts.TLS,
		readiness: opts.Readiness,
		projectID: opts.ProjectID,
		started:   time.Now(),
		logger:    opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	if s.journal == nil {
		s.journal = events.Default()
	}
	if s.readiness == nil {
		s.readiness = NewReadiness()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "api")
	return s
}

// Readiness returns the tracker behind /ready.
func (s *Server) Readiness() *Readiness { return s.readiness }

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	authed := s.auth.RequireAnyRole
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", authed(uiHandler))
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ready", s.readiness.handler)
	mux.HandleFunc("GET /metrics", s.metricsHandler)

	mux.HandleFunc("GET /status", authed(s.statusHandler))
	mux.HandleFunc("GET /stats", authed(s.statsHandler))
	mux.HandleFunc("GET /entities", authed(s.entitiesHandler))
	mux.HandleFunc("GET /entities/{id}", authed(s.entityHandler))
	mux.HandleFunc("GET /variables", authed(s.variablesHandler))
	mux.HandleFunc("GET /graphs", authed(s.graphsHandler))
	mux.HandleFunc("GET /events", authed(s.eventsHandler))
	mux.HandleFunc("GET /ws/events", authed(s.wsEventsHandler))

	mux.HandleFunc("POST /play/{command}", authed(s.playHandler))
	mux.HandleFunc("POST /commands", authed(s.commandHandler))
	mux.HandleFunc("DELETE /events", s.auth.RequireAdmin(s.clearEventsHandler))
	return mux
}

// ListenAndServe serves on port until ctx is done, then shuts down
// gracefully. TLS is used when configured.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	tlsCfg, err := s.tls.Load()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr, "tls", tlsCfg != nil, "auth", s.auth.Enabled())
		if tlsCfg != nil {
			errCh <- srv.ListenAndServeTLS("", "")
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.journal.CloseAllSubscribers()
		return srv.Shutdown(shutdownCtx)
	}
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "sentient-play",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) statsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Stats())
}

func (s *Server) entitiesHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Entities())
}

func (s *Server) entityHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, ok := s.ctrl.Entity(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "entity not found: " + id})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) variablesHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Variables())
}

func (s *Server) graphsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Graphs())
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	evts := s.journal.Recent(limit)
	if evts == nil {
		evts = []events.Event{}
	}
	writeJSON(w, http.StatusOK, evts)
}

func (s *Server) clearEventsHandler(w http.ResponseWriter, _ *http.Request) {
	s.journal.Clear()
	w.WriteHeader(http.StatusNoContent)
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// CommandResponse answers play commands.
type CommandResponse struct {
	OK     bool                `json:"ok"`
	Error  string              `json:"error,omitempty"`
	Status orchestrator.Status `json:"status"`
}

// playHandler runs the command named in the path. Parameters come from the
// query string: apply for stop, frames for step, key and down for key.
func (s *Server) playHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cmd := orchestrator.Command{Name: r.PathValue("command"), Key: q.Get("key")}

	var err error
	if cmd.Apply, err = queryBool(q.Get("apply")); err != nil {
		writeJSON(w, http.StatusBadRequest, CommandResponse{Error: "apply: " + err.Error(), Status: s.ctrl.Status()})
		return
	}
	if cmd.Down, err = queryBool(q.Get("down")); err != nil {
		writeJSON(w, http.StatusBadRequest, CommandResponse{Error: "down: " + err.Error(), Status: s.ctrl.Status()})
		return
	}
	if v := q.Get("frames"); v != "" {
		if cmd.Frames, err = strconv.Atoi(v); err != nil {
			writeJSON(w, http.StatusBadRequest, CommandResponse{Error: "frames must be an integer", Status: s.ctrl.Status()})
			return
		}
	}
	s.execute(w, cmd)
}

// commandHandler runs a JSON command body.
func (s *Server) commandHandler(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, CommandResponse{Error: err.Error(), Status: s.ctrl.Status()})
		return
	}
	cmd, err := orchestrator.ParseCommand(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, CommandResponse{Error: err.Error(), Status: s.ctrl.Status()})
		return
	}
	s.execute(w, cmd)
}

func (s *Server) execute(w http.ResponseWriter, cmd orchestrator.Command) {
	err := s.ctrl.Execute(cmd, Source)
	resp := CommandResponse{OK: err == nil, Status: s.ctrl.Status()}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, commandStatus(err), resp)
}

func commandStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, orchestrator.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrInvalidState), errors.Is(err, orchestrator.ErrNoRoot):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func queryBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

const maxBody = 1 << 20

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	var buf json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&buf); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return buf, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
