package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/SentientPlay/internal/events"
)

type webhookRecorder struct {
	mu       sync.Mutex
	payloads []AlertPayload
}

func (r *webhookRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var p AlertPayload
	_ = json.NewDecoder(req.Body).Decode(&p)
	r.mu.Lock()
	r.payloads = append(r.payloads, p)
	r.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (r *webhookRecorder) received() []AlertPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AlertPayload(nil), r.payloads...)
}

func TestAlertConfigFromEnv(t *testing.T) {
	t.Setenv("SENTIENT_ALERT_WEBHOOK_URL", "http://hooks.local/alert")
	t.Setenv("SENTIENT_ALERT_COOLDOWN", "")
	cfg, err := AlertConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://hooks.local/alert", cfg.WebhookURL)
	assert.Equal(t, time.Minute, cfg.Cooldown)

	t.Setenv("SENTIENT_ALERT_COOLDOWN", "15s")
	cfg, err = AlertConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.Cooldown)

	t.Setenv("SENTIENT_ALERT_COOLDOWN", "soon")
	_, err = AlertConfigFromEnv()
	assert.Error(t, err)
}

func TestAlerterCooldownAndSeverity(t *testing.T) {
	hook := &webhookRecorder{}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	journal := events.NewJournal(16)
	a := NewAlerter(AlertConfig{WebhookURL: srv.URL, Cooldown: time.Minute}, "demo", journal,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	a.Handle(events.Event{Level: events.LevelInfo, Name: "play.started"})
	a.Handle(events.Event{Level: events.LevelError, Name: "behavior.error", Message: "boom", Fields: map[string]interface{}{"entity": "hero"}})
	a.Handle(events.Event{Level: events.LevelError, Name: "behavior.error"})
	a.Handle(events.Event{Level: events.LevelWarn, Name: "graph.warning"})
	now = now.Add(2 * time.Minute)
	a.Handle(events.Event{Level: events.LevelError, Name: "behavior.error"})

	assert.Equal(t, 3, a.Sent())
	got := hook.received()
	require.Len(t, got, 3)
	assert.Equal(t, AlertPayload{
		Project:   "demo",
		Event:     "behavior.error",
		Timestamp: "2026-06-01T09:00:00Z",
		Severity:  SeverityCritical,
		Message:   "boom",
		Details:   map[string]interface{}{"entity": "hero"},
	}, got[0])
	assert.Equal(t, SeverityWarning, got[1].Severity)
}

func TestAlerterRunForwardsJournal(t *testing.T) {
	hook := &webhookRecorder{}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	journal := events.NewJournal(16)
	a := NewAlerter(AlertConfig{WebhookURL: srv.URL}, "demo", journal, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return journal.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	_, err := journal.Emit(events.LevelError, "system.error", "disk full", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(hook.received()) == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Zero(t, journal.SubscriberCount())
}
