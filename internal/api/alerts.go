package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AaronLay10/SentientPlay/internal/config"
	"github.com/AaronLay10/SentientPlay/internal/events"
)

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// AlertPayload is the JSON structure sent to the webhook.
type AlertPayload struct {
	Project   string                 `json:"project"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message,omitempty"`
	Session   string                 `json:"session,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AlertConfig holds alert configuration.
type AlertConfig struct {
	WebhookURL string
	// Cooldown suppresses repeats of the same event name. A behavior that
	// fails every frame alerts once per cooldown.
	Cooldown time.Duration
}

// AlertConfigFromEnv reads SENTIENT_ALERT_WEBHOOK_URL and
// SENTIENT_ALERT_COOLDOWN (a Go duration, default 1m).
func AlertConfigFromEnv() (AlertConfig, error) {
	cfg := AlertConfig{
		WebhookURL: config.Env("SENTIENT_ALERT_WEBHOOK_URL", ""),
		Cooldown:   time.Minute,
	}
	if v := config.Env("SENTIENT_ALERT_COOLDOWN", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("SENTIENT_ALERT_COOLDOWN: %w", err)
		}
		cfg.Cooldown = d
	}
	return cfg, nil
}

// Alerter forwards warning and error journal events to a webhook.
type Alerter struct {
	cfg     AlertConfig
	project string
	journal *events.Journal
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
	sent     int
}

func NewAlerter(cfg AlertConfig, project string, journal *events.Journal, logger *slog.Logger) *Alerter {
	if journal == nil {
		journal = events.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerter{
		cfg:      cfg,
		project:  project,
		journal:  journal,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.With("component", "alerts"),
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// Run forwards journal events until ctx is done or the journal closes its
// subscribers.
func (a *Alerter) Run(ctx context.Context) {
	sub := a.journal.Subscribe()
	defer a.journal.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			a.Handle(e)
		}
	}
}

// Handle sends e if it is alert-worthy and not within the cooldown.
func (a *Alerter) Handle(e events.Event) {
	severity := severityFor(e.Level)
	if severity == "" {
		return
	}

	a.mu.Lock()
	now := a.now()
	if last, ok := a.lastSent[e.Name]; ok && now.Sub(last) < a.cfg.Cooldown {
		a.mu.Unlock()
		return
	}
	a.lastSent[e.Name] = now
	a.sent++
	a.mu.Unlock()

	payload := AlertPayload{
		Project:   a.project,
		Event:     e.Name,
		Timestamp: now.UTC().Format(time.RFC3339),
		Severity:  severity,
		Message:   e.Message,
		Session:   e.Session,
		Details:   e.Fields,
	}
	if a.cfg.WebhookURL == "" {
		a.logger.Warn("alert", "event", e.Name, "severity", severity, "msg", e.Message, "details", e.Fields)
		return
	}
	a.sendWebhook(payload)
}

// Sent returns the number of alerts that passed the cooldown.
func (a *Alerter) Sent() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sent
}

func severityFor(level string) string {
	switch level {
	case events.LevelError:
		return SeverityCritical
	case events.LevelWarn:
		return SeverityWarning
	}
	return ""
}

func (a *Alerter) sendWebhook(payload AlertPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		a.logger.Error("failed to marshal alert", "error", err)
		return
	}

	resp, err := a.client.Post(a.cfg.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		a.logger.Warn("webhook POST failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		a.logger.Warn("webhook rejected alert", "status", resp.StatusCode)
	}
}
