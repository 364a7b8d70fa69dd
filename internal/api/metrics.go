package api

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/AaronLay10/SentientPlay/internal/orchestrator"
	"github.com/AaronLay10/SentientPlay/internal/version"
)

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func (s *Server) metricsHandler(w http.ResponseWriter, _ *http.Request) {
	status := s.ctrl.Status()
	stats := s.ctrl.Stats()
	mqttConnected, postgresConnected := s.readiness.connected()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
	}

	labels := fmt.Sprintf(`project="%s",instance="%s",version="%s"`, s.projectID, hostname, version.Version)

	writeMetric("sentient_play_uptime_seconds", "gauge",
		"Number of seconds since the process started", time.Since(s.started).Seconds(), labels)

	fmt.Fprintf(w, "# HELP sentient_play_state Current play state (1 for the active state)\n")
	fmt.Fprintf(w, "# TYPE sentient_play_state gauge\n")
	for _, st := range []orchestrator.State{orchestrator.StateStopped, orchestrator.StatePlaying, orchestrator.StatePaused} {
		fmt.Fprintf(w, "sentient_play_state{%s,state=\"%s\"} %d\n", labels, st, boolGauge(status.State == st))
	}

	writeMetric("sentient_play_frames_total", "counter",
		"Frames run in the current session", stats.FrameCount, labels)
	writeMetric("sentient_play_fixed_steps_total", "counter",
		"Fixed steps run in the current session", stats.FixedSteps, labels)
	writeMetric("sentient_play_fps", "gauge",
		"Measured frames per second", stats.FPS, labels)
	writeMetric("sentient_play_frame_time_ms", "gauge",
		"Duration of the last frame in milliseconds", stats.FrameTime, labels)
	writeMetric("sentient_play_entities", "gauge",
		"Entities in the scene", stats.EntityCount, labels)
	writeMetric("sentient_play_behaviors", "gauge",
		"Bound behavior runtimes", stats.BehaviorCount, labels)
	writeMetric("sentient_play_bus_events_total", "counter",
		"Events dispatched on the signal bus", stats.BusEvents, labels)
	writeMetric("sentient_play_bus_failures_total", "counter",
		"Bus events with at least one failing handler", stats.BusFailures, labels)
	writeMetric("sentient_play_behavior_errors_total", "counter",
		"Behavior execution errors", stats.BehaviorErrors, labels)
	writeMetric("sentient_play_timers", "gauge",
		"Pending timers", stats.Timers, labels)
	writeMetric("sentient_play_tweens", "gauge",
		"Running tweens", stats.Tweens, labels)
	writeMetric("sentient_play_journal_events_total", "counter",
		"Journal events emitted since startup", s.journal.Total(), labels)
	writeMetric("sentient_play_ws_clients", "gauge",
		"Active WebSocket journal subscribers", s.journal.SubscriberCount(), labels)
	writeMetric("sentient_play_mqtt_connected", "gauge",
		"Whether the MQTT broker is connected (1) or not (0)", boolGauge(mqttConnected), labels)
	writeMetric("sentient_play_postgres_connected", "gauge",
		"Whether PostgreSQL is connected (1) or not (0)", boolGauge(postgresConnected), labels)
}
