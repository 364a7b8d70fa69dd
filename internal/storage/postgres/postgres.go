// Package postgres persists the play journal and per-session summaries.
package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/AaronLay10/SentientPlay/internal/config"
)

// EventRow represents a journal event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	ProjectID string                 `json:"project_id"`
	SessionID *string                `json:"session_id,omitempty"`
}

// SessionRecord summarizes one finished play session.
type SessionRecord struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	Frames    uint64    `json:"frames"`
	Applied   bool      `json:"applied"`
	Errors    uint64    `json:"errors"`
}

// Client manages the Postgres connection for journal storage.
type Client struct {
	db        *sql.DB
	projectID string

	mu          sync.Mutex
	errorLogged bool
}

// DSN builds a lib/pq connection string from the PG* environment. The
// password honors the PGPASSWORD_FILE convention.
func DSN() (string, error) {
	password, err := config.ResolveSecret("PGPASSWORD")
	if err != nil {
		return "", err
	}
	parts := []string{
		"host=" + config.Env("PGHOST", "127.0.0.1"),
		"port=" + config.Env("PGPORT", "5432"),
		"user=" + config.Env("PGUSER", "sentient"),
	}
	if password != "" {
		parts = append(parts, "password="+password)
	}
	parts = append(parts,
		"dbname="+config.Env("PGDATABASE", "sentient"),
		"sslmode="+config.Env("PGSSLMODE", "disable"),
	)
	return strings.Join(parts, " "), nil
}

// New connects using the PG* environment and scopes all rows to projectID.
func New(projectID string) (*Client, error) {
	dsn, err := DSN()
	if err != nil {
		return nil, err
	}
	return Open(dsn, projectID)
}

// Open connects with an explicit connection string.
func Open(dsn, projectID string) (*Client, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:        db,
		projectID: projectID,
	}

	if err := client.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return client, nil
}

func (c *Client) createTables() error {
	query := `
		CREATE TABLE IF NOT EXISTS play_events (
			event_id   BIGSERIAL PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			level      TEXT NOT NULL,
			event      TEXT NOT NULL,
			msg        TEXT,
			fields     JSONB,
			project_id TEXT NOT NULL,
			session_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_play_events_ts ON play_events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_play_events_project ON play_events(project_id);

		CREATE TABLE IF NOT EXISTS play_sessions (
			session_id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			stopped_at TIMESTAMPTZ NOT NULL,
			frames     BIGINT NOT NULL,
			applied    BOOLEAN NOT NULL,
			errors     BIGINT NOT NULL
		);
	`
	_, err := c.db.Exec(query)
	return err
}

// Append inserts a journal event. It satisfies events.Sink.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error {
	fieldsJSON, err := encodeFields(fields)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO play_events (ts, level, event, msg, fields, project_id, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.Exec(query, ts, level, event, nullable(msg), fieldsJSON, c.projectID, nullable(sessionID))
	return err
}

// RecordSession upserts the summary of a finished session.
func (c *Client) RecordSession(r SessionRecord) error {
	if r.SessionID == "" {
		return fmt.Errorf("record session: session id is required")
	}
	query := `
		INSERT INTO play_sessions (session_id, project_id, started_at, stopped_at, frames, applied, errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			stopped_at = EXCLUDED.stopped_at,
			frames = EXCLUDED.frames,
			applied = EXCLUDED.applied,
			errors = EXCLUDED.errors
	`
	_, err := c.db.Exec(query, r.SessionID, c.projectID, r.StartedAt, r.StoppedAt,
		int64(r.Frames), r.Applied, int64(r.Errors))
	return err
}

// Sessions returns the most recent session summaries, newest first.
func (c *Client) Sessions(limit int) ([]SessionRecord, error) {
	limit = clampLimit(limit, 50)
	query := `
		SELECT session_id, started_at, stopped_at, frames, applied, errors
		FROM play_sessions
		WHERE project_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := c.db.Query(query, c.projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var r SessionRecord
		var frames, errs int64
		if err := rows.Scan(&r.SessionID, &r.StartedAt, &r.StoppedAt, &frames, &r.Applied, &errs); err != nil {
			return nil, err
		}
		r.Frames = uint64(frames)
		r.Errors = uint64(errs)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Query returns the last N events from the database in descending order by timestamp.
func (c *Client) Query(limit int) ([]EventRow, error) {
	limit = clampLimit(limit, 200)

	query := `
		SELECT event_id, ts, level, event, msg, fields, project_id, session_id
		FROM play_events
		WHERE project_id = $1
		ORDER BY ts DESC, event_id DESC
		LIMIT $2
	`
	rows, err := c.db.Query(query, c.projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, sessionID sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.ProjectID, &sessionID); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if sessionID.Valid {
			e.SessionID = &sessionID.String
		}
		if e.Fields, err = decodeFields(fieldsJSON); err != nil {
			return nil, err
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c != nil && c.db != nil {
		return c.db.Close()
	}
	return nil
}

// MarkErrorLogged marks that an error has been logged (to avoid spam).
func (c *Client) MarkErrorLogged() {
	c.mu.Lock()
	c.errorLogged = true
	c.mu.Unlock()
}

// HasLoggedError returns true if an error has been logged.
func (c *Client) HasLoggedError() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorLogged
}

func encodeFields(fields map[string]interface{}) ([]byte, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fields: %w", err)
	}
	return b, nil
}

func decodeFields(b []byte) (map[string]interface{}, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
	}
	return fields, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 10000 {
		return 10000
	}
	return limit
}
