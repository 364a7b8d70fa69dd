package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/SentientPlay/internal/actions"
	"github.com/AaronLay10/SentientPlay/internal/engine"
	"github.com/AaronLay10/SentientPlay/internal/events"
	"github.com/AaronLay10/SentientPlay/internal/graph"
	"github.com/AaronLay10/SentientPlay/internal/orchestrator"
	"github.com/AaronLay10/SentientPlay/internal/scene"
	"github.com/AaronLay10/SentientPlay/internal/scheduler"
)

type fakeController struct {
	mu       sync.Mutex
	commands []orchestrator.Command
	sources  []string
	err      error
	state    orchestrator.State
}

func (f *fakeController) Execute(cmd orchestrator.Command, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	f.sources = append(f.sources, source)
	return f.err
}

func (f *fakeController) Status() orchestrator.Status {
	return orchestrator.Status{State: f.state, Frame: 7}
}

func (f *fakeController) Entities() []orchestrator.EntityInfo {
	return []orchestrator.EntityInfo{{ID: "world"}, {ID: "hero", Parent: "world", Bound: true}}
}

func (f *fakeController) Entity(id string) (orchestrator.EntityDetail, bool) {
	if id != "hero" {
		return orchestrator.EntityDetail{}, false
	}
	return orchestrator.EntityDetail{EntityInfo: orchestrator.EntityInfo{ID: "hero"}}, true
}

func (f *fakeController) Stats() orchestrator.Stats {
	return orchestrator.Stats{FrameCount: 7, EntityCount: 2, BehaviorCount: 1, BusEvents: 12}
}

func (f *fakeController) Variables() []orchestrator.Variable {
	return []orchestrator.Variable{{Name: "score"}}
}

func (f *fakeController) Graphs() []string { return []string{"mover"} }

func newTestServer(t *testing.T, ctrl Controller, auth *Auth) (*Server, *events.Journal) {
	t.Helper()
	journal := events.NewJournal(32)
	s := NewServer(ctrl, Options{
		Journal:   journal,
		Auth:      auth,
		ProjectID: "demo",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return s, journal
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &fakeController{}, nil)
	w := do(t, s.Handler(), "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, w).Status)
}

func TestQueryEndpoints(t *testing.T) {
	s, _ := newTestServer(t, &fakeController{state: orchestrator.StatePlaying}, nil)
	h := s.Handler()

	w := do(t, h, "GET", "/status", "")
	assert.Equal(t, orchestrator.StatePlaying, decode[orchestrator.Status](t, w).State)

	w = do(t, h, "GET", "/entities", "")
	assert.Len(t, decode[[]orchestrator.EntityInfo](t, w), 2)

	w = do(t, h, "GET", "/entities/hero", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hero", decode[orchestrator.EntityDetail](t, w).ID)

	w = do(t, h, "GET", "/entities/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, "GET", "/stats", "")
	assert.Equal(t, uint64(12), decode[orchestrator.Stats](t, w).BusEvents)

	w = do(t, h, "GET", "/variables", "")
	assert.Equal(t, "score", decode[[]orchestrator.Variable](t, w)[0].Name)

	w = do(t, h, "GET", "/graphs", "")
	assert.Equal(t, []string{"mover"}, decode[[]string](t, w))
}

func TestPlayEndpointParsesQuery(t *testing.T) {
	ctrl := &fakeController{}
	s, _ := newTestServer(t, ctrl, nil)
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, "POST", "/play/stop?apply=true", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, "POST", "/play/step?frames=4", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, "POST", "/play/key?key=space&down=1", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/play/stop?apply=maybe", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/play/step?frames=x", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, "GET", "/play/start", "").Code)

	assert.Equal(t, []orchestrator.Command{
		{Name: "stop", Apply: true},
		{Name: "step", Frames: 4},
		{Name: "key", Key: "space", Down: true},
	}, ctrl.commands)
	assert.Equal(t, []string{Source, Source, Source}, ctrl.sources)
}

func TestCommandEndpoint(t *testing.T) {
	ctrl := &fakeController{}
	s, _ := newTestServer(t, ctrl, nil)
	h := s.Handler()

	w := do(t, h, "POST", "/commands", `{"command":"pause"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[CommandResponse](t, w).OK)

	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/commands", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/commands", `{"frames":2}`).Code)
	assert.Len(t, ctrl.commands, 1)
}

func TestCommandErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{orchestrator.ErrInvalidState, http.StatusConflict},
		{orchestrator.ErrNoRoot, http.StatusConflict},
		{orchestrator.ErrUnknownCommand, http.StatusNotFound},
		{assert.AnError, http.StatusBadRequest},
	}
	for _, tc := range cases {
		ctrl := &fakeController{err: tc.err}
		s, _ := newTestServer(t, ctrl, nil)
		w := do(t, s.Handler(), "POST", "/play/pause", "")
		assert.Equal(t, tc.code, w.Code, "%v", tc.err)
		resp := decode[CommandResponse](t, w)
		assert.False(t, resp.OK)
		assert.Equal(t, tc.err.Error(), resp.Error)
	}
}

func TestEventsEndpoint(t *testing.T) {
	s, journal := newTestServer(t, &fakeController{}, nil)
	h := s.Handler()

	w := do(t, h, "GET", "/events", "")
	assert.Equal(t, "[]\n", w.Body.String())

	for i := 0; i < 5; i++ {
		_, err := journal.Emit(events.LevelInfo, "play.stepped", "", map[string]interface{}{"frames": i})
		require.NoError(t, err)
	}
	got := decode[[]events.Event](t, do(t, h, "GET", "/events?limit=2", ""))
	require.Len(t, got, 2)
	assert.Equal(t, float64(4), got[1].Fields["frames"])

	assert.Equal(t, http.StatusBadRequest, do(t, h, "GET", "/events?limit=-1", "").Code)

	assert.Equal(t, http.StatusNoContent, do(t, h, "DELETE", "/events", "").Code)
	assert.Empty(t, journal.Snapshot())
}

func TestRoutesRequireAuth(t *testing.T) {
	s, _ := newTestServer(t, &fakeController{}, NewAuth("admin", "secret", "op", "oppass"))
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, "GET", "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, "GET", "/status", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, "POST", "/play/start", "").Code)

	req := httptest.NewRequest("DELETE", "/events", nil)
	req.SetBasicAuth("op", "oppass")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestConsolePage(t *testing.T) {
	s, _ := newTestServer(t, &fakeController{}, nil)
	w := do(t, s.Handler(), "GET", "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/ws/events")
	assert.Equal(t, http.StatusNotFound, do(t, s.Handler(), "GET", "/nope", "").Code)
}

func TestReadiness(t *testing.T) {
	cases := []struct {
		name                       string
		orch, mqtt, mqttOpt        bool
		pg, pgOpt                  bool
		code                       int
		mqttStatus, postgresStatus string
	}{
		{"all ready", true, true, false, true, false, http.StatusOK, "ok", "ok"},
		{"orchestrator down", false, true, false, true, false, http.StatusServiceUnavailable, "ok", "ok"},
		{"optional mqtt down", true, false, true, true, false, http.StatusOK, "unavailable", "ok"},
		{"required mqtt down", true, false, false, true, false, http.StatusServiceUnavailable, "not_ready", "ok"},
		{"optional postgres down", true, true, false, false, true, http.StatusOK, "ok", "unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestServer(t, &fakeController{}, nil)
			r := s.Readiness()
			r.SetOrchestratorReady(tc.orch)
			r.SetMQTT(tc.mqtt, tc.mqttOpt)
			r.SetPostgres(tc.pg, tc.pgOpt)

			w := do(t, s.Handler(), "GET", "/ready", "")
			assert.Equal(t, tc.code, w.Code)
			resp := decode[ReadinessResponse](t, w)
			assert.Equal(t, tc.code == http.StatusOK, resp.Ready)
			assert.Equal(t, tc.mqttStatus, resp.Checks["mqtt"].Status)
			assert.Equal(t, tc.postgresStatus, resp.Checks["postgres"].Status)
			if !resp.Ready {
				assert.NotEmpty(t, resp.NotReadyMsg)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, journal := newTestServer(t, &fakeController{state: orchestrator.StatePaused}, nil)
	_, err := journal.Emit(events.LevelInfo, "play.paused", "", nil)
	require.NoError(t, err)
	s.Readiness().SetMQTT(true, true)

	w := do(t, s.Handler(), "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, body, "# TYPE sentient_play_frames_total counter")
	assert.Contains(t, body, `state="paused"} 1`)
	assert.Contains(t, body, `state="playing"} 0`)
	assert.Regexp(t, `sentient_play_frames_total\{project="demo",[^}]*\} 7`, body)
	assert.Regexp(t, `sentient_play_journal_events_total\{[^}]*\} 1`, body)
	assert.Regexp(t, `sentient_play_mqtt_connected\{[^}]*\} 1`, body)
	assert.Regexp(t, `sentient_play_postgres_connected\{[^}]*\} 0`, body)
}

const moverGraph = `{"id":"mover","nodes":[
	{"id":"u","kind":"signal","signal":"Update"},
	{"id":"m","kind":"action","component":"transform","method":"translate","inputs":{"dx":1,"dy":0}}
],"edges":[{"from":"u","to":"m"}]}`

func TestPlaySessionOverHTTP(t *testing.T) {
	env := engine.NewEnv(slog.New(slog.NewTextHandler(io.Discard, nil)))
	actions.Register(env.Registry)
	require.NoError(t, env.Scene.Add(scene.Entity{ID: "world"}))
	require.NoError(t, env.Scene.Add(scene.Entity{ID: "hero", Parent: "world", Behavior: "mover"}))
	g, err := graph.Parse([]byte(moverGraph))
	require.NoError(t, err)

	journal := events.NewJournal(64)
	o, err := orchestrator.New(env, []*graph.Graph{g}, orchestrator.Options{
		Manual:    true,
		Journal:   journal,
		Scheduler: scheduler.Config{FixedHz: 10, MaxDelta: 1, TargetFPS: 10},
	})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	s := NewServer(o, Options{Journal: journal, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	h := s.Handler()

	w := do(t, h, "POST", "/play/start", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, orchestrator.StatePlaying, decode[CommandResponse](t, w).Status.State)

	assert.Equal(t, http.StatusConflict, do(t, h, "POST", "/play/resume", "").Code)

	for i := 0; i < 3; i++ {
		_, _, err := o.Tick(0.1)
		require.NoError(t, err)
	}
	hero := decode[orchestrator.EntityDetail](t, do(t, h, "GET", "/entities/hero", ""))
	assert.Equal(t, 3.0, hero.X)

	w = do(t, h, "POST", "/play/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	hero = decode[orchestrator.EntityDetail](t, do(t, h, "GET", "/entities/hero", ""))
	assert.Equal(t, 0.0, hero.X, "stop without apply restores the scene")

	var received int
	for _, e := range journal.Snapshot() {
		if e.Name == "command.received" && e.Fields["source"] == Source {
			received++
		}
	}
	assert.Equal(t, 3, received)
}
