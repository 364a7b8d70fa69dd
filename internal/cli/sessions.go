package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/SentientPlay/internal/config"
	"github.com/AaronLay10/SentientPlay/internal/orchestrator"
	"github.com/AaronLay10/SentientPlay/internal/storage/postgres"
)

// sessionStore is the slice of the Postgres client the sessions report reads.
type sessionStore interface {
	orchestrator.JournalQuerier
	Sessions(limit int) ([]postgres.SessionRecord, error)
}

type sessionsReport struct {
	Sessions    []postgres.SessionRecord   `json:"sessions"`
	Interrupted []orchestrator.Interrupted `json:"interrupted"`
}

// NewSessionsCommand creates the sessions command.
func NewSessionsCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded and interrupted play sessions from Postgres",
		Long: `Lists the play sessions recorded in Postgres, newest first, followed by
sessions whose play.started was journaled without a matching play.stopped.

Connection settings come from the PG* environment (PGPASSWORD_FILE supported).`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadRuntimeConfig(rootOpts.Config)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			store, err := postgres.New(cfg.ProjectID())
			if err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			defer store.Close()

			report, err := collectSessions(store, limit)
			if err != nil {
				return err
			}
			return writeSessions(cmd.OutOrStdout(), rootOpts.Format, report)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum sessions to list")
	return cmd
}

func collectSessions(store sessionStore, limit int) (sessionsReport, error) {
	sessions, err := store.Sessions(limit)
	if err != nil {
		return sessionsReport{}, fmt.Errorf("list sessions: %w", err)
	}
	interrupted, _, err := orchestrator.FindInterrupted(store, 0)
	if err != nil {
		return sessionsReport{}, fmt.Errorf("scan journal: %w", err)
	}
	return sessionsReport{Sessions: sessions, Interrupted: interrupted}, nil
}

func writeSessions(w io.Writer, format string, r sessionsReport) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	if len(r.Sessions) == 0 {
		fmt.Fprintln(w, "no recorded sessions")
	}
	for _, s := range r.Sessions {
		mode := "restored"
		if s.Applied {
			mode = "applied"
		}
		fmt.Fprintf(w, "%s  %s  %s  frames=%d errors=%d %s\n",
			s.SessionID, s.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
			s.StoppedAt.Sub(s.StartedAt).Round(time.Millisecond), s.Frames, s.Errors, mode)
	}
	for _, s := range r.Interrupted {
		state := "playing"
		if s.Paused {
			state = "paused"
		}
		fmt.Fprintf(w, "interrupted %s  started %s  last seen %s while %s, errors=%d\n",
			s.Session, s.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
			s.LastSeen.UTC().Format("2006-01-02T15:04:05Z"), state, s.Errors)
	}
	return nil
}

// sessionRecorder persists a summary of each finished session.
type sessionRecorder interface {
	RecordSession(r postgres.SessionRecord) error
}

// sessionTracker turns orchestrator transitions into session records.
// behaviorErrors reads the orchestrator's cumulative error counter; the
// record carries the delta over the session.
type sessionTracker struct {
	store          sessionRecorder
	behaviorErrors func() uint64
	logger         *slog.Logger
	baseline       uint64
}

func (s *sessionTracker) transition(t orchestrator.Transition) {
	switch {
	case t.From == orchestrator.StateStopped && t.To == orchestrator.StatePlaying:
		s.baseline = s.behaviorErrors()
	case t.To == orchestrator.StateStopped && t.Session != "":
		rec := postgres.SessionRecord{
			SessionID: t.Session,
			StartedAt: t.At.Add(-t.Duration),
			StoppedAt: t.At,
			Frames:    t.Frames,
			Applied:   t.Applied,
			Errors:    s.behaviorErrors() - s.baseline,
		}
		if err := s.store.RecordSession(rec); err != nil {
			s.logger.Warn("failed to record session", "session", t.Session, "error", err)
		}
	}
}
