package orchestrator

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/SentientPlay/internal/storage/postgres"
)

type fakeQuerier struct {
	rows  []postgres.EventRow
	err   error
	limit int
}

func (f *fakeQuerier) Query(limit int) ([]postgres.EventRow, error) {
	f.limit = limit
	return f.rows, f.err
}

func row(at time.Time, event, session string) postgres.EventRow {
	r := postgres.EventRow{Timestamp: at, Event: event}
	if session != "" {
		r.SessionID = &session
	}
	return r
}

// newestFirst mirrors the persisted ordering.
func newestFirst(rows ...postgres.EventRow) []postgres.EventRow {
	out := make([]postgres.EventRow, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, rows[i])
	}
	return out
}

func TestFindInterrupted(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(s int) time.Time { return t0.Add(time.Duration(s) * time.Second) }

	q := &fakeQuerier{rows: newestFirst(
		row(at(0), "system.startup", ""),
		row(at(1), "play.started", "a"),
		row(at(2), "play.stopped", "a"),
		row(at(3), "play.started", "b"),
		row(at(4), "behavior.error", "b"),
		row(at(5), "play.paused", "b"),
		row(at(6), "behavior.error", "b"),
		row(at(7), "play.started", "c"),
		row(at(8), "play.paused", "c"),
		row(at(9), "play.resumed", "c"),
	)}

	got, scanned, err := FindInterrupted(q, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultRecoverLimit, q.limit)
	assert.Equal(t, 10, scanned)

	want := []Interrupted{
		{Session: "b", StartedAt: at(3), LastSeen: at(6), Paused: true, Errors: 2},
		{Session: "c", StartedAt: at(7), LastSeen: at(9)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("interrupted sessions mismatch (-want +got):\n%s", diff)
	}
}

func TestFindInterruptedNone(t *testing.T) {
	got, scanned, err := FindInterrupted(nil, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, scanned)

	q := &fakeQuerier{}
	got, _, err = FindInterrupted(q, 25)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 25, q.limit)
}

func TestFindInterruptedQueryError(t *testing.T) {
	boom := errors.New("connection refused")
	_, _, err := FindInterrupted(&fakeQuerier{err: boom}, 10)
	assert.ErrorIs(t, err, boom)
}
