package orchestrator

import (
	"time"

	"github.com/AaronLay10/SentientPlay/internal/storage/postgres"
)

// DefaultRecoverLimit is the default number of journal rows to scan.
const DefaultRecoverLimit = 1000

// JournalQuerier reads persisted journal rows, newest first.
type JournalQuerier interface {
	Query(limit int) ([]postgres.EventRow, error)
}

// Interrupted describes a play session whose play.started was persisted
// without a matching play.stopped, typically because the process died.
type Interrupted struct {
	Session   string    `json:"session"`
	StartedAt time.Time `json:"startedAt"`
	LastSeen  time.Time `json:"lastSeen"`
	Paused    bool      `json:"paused"`
	Errors    int       `json:"errors"`
}

// FindInterrupted scans the persisted journal for sessions that never
// stopped. Only the bookkeeping is reconstructed; the scene itself is
// whatever the seed file holds on the next start. It returns the sessions in
// start order and the number of rows scanned.
func FindInterrupted(q JournalQuerier, limit int) ([]Interrupted, int, error) {
	if q == nil {
		return nil, 0, nil
	}
	if limit <= 0 {
		limit = DefaultRecoverLimit
	}

	rows, err := q.Query(limit)
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return nil, 0, nil
	}

	// Query returns newest first.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	open := make(map[string]*Interrupted)
	var order []string
	for _, row := range rows {
		if row.SessionID == nil || *row.SessionID == "" {
			continue
		}
		id := *row.SessionID
		s := open[id]
		switch row.Event {
		case "play.started":
			s = &Interrupted{Session: id, StartedAt: row.Timestamp}
			open[id] = s
			order = append(order, id)
		case "play.stopped":
			delete(open, id)
			continue
		case "play.paused":
			if s != nil {
				s.Paused = true
			}
		case "play.resumed":
			if s != nil {
				s.Paused = false
			}
		case "behavior.error":
			if s != nil {
				s.Errors++
			}
		}
		if s != nil {
			s.LastSeen = row.Timestamp
		}
	}

	var out []Interrupted
	for _, id := range order {
		if s, ok := open[id]; ok {
			out = append(out, *s)
			delete(open, id)
		}
	}
	return out, len(rows), nil
}
