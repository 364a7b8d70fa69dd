// Package events is the diagnostic journal: allow-listed operational events
// kept in a ring buffer, fanned out to live subscribers and optionally
// persisted through a Sink.
package events

import (
	"sync"
	"time"
)

// DefaultBufferSize is the ring size used when none is configured.
const DefaultBufferSize = 256

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Session   string                 `json:"session,omitempty"`
}

// Sink persists journal entries. Append is called synchronously from Emit.
type Sink interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error
}

// Journal records events. It is safe for concurrent use.
type Journal struct {
	buffer      *RingBuffer
	broadcaster *Broadcaster

	mu          sync.RWMutex
	sink        Sink
	session     string
	errorLogged bool
	now         func() time.Time
}

// NewJournal returns a journal keeping the last size events.
func NewJournal(size int) *Journal {
	return &Journal{
		buffer:      NewRingBuffer(size),
		broadcaster: NewBroadcaster(),
		now:         time.Now,
	}
}

// SetSink installs the persistence sink; nil disables persistence.
func (j *Journal) SetSink(s Sink) {
	j.mu.Lock()
	j.sink = s
	j.errorLogged = false
	j.mu.Unlock()
}

// SetSession tags later events with a play session id. Empty clears it.
func (j *Journal) SetSession(id string) {
	j.mu.Lock()
	j.session = id
	j.mu.Unlock()
}

// Session returns the current session id.
func (j *Journal) Session() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.session
}

// Emit validates name, buffers the event, persists it and broadcasts it.
func (j *Journal) Emit(level, name, msg string, fields map[string]interface{}) (Event, error) {
	if err := Validate(name); err != nil {
		return Event{}, err
	}

	j.mu.RLock()
	sink, session, now := j.sink, j.session, j.now
	j.mu.RUnlock()

	ts := now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
		Session:   session,
	}
	j.buffer.Add(e)

	if sink != nil {
		if err := sink.Append(ts, level, name, msg, fields, session); err != nil {
			j.sinkFailed(err)
		}
	}

	j.broadcaster.broadcast(e)
	return e, nil
}

// sinkFailed records the first persistence failure straight into the
// buffer. Going through Emit would recurse while the sink keeps failing.
func (j *Journal) sinkFailed(err error) {
	j.mu.Lock()
	if j.errorLogged {
		j.mu.Unlock()
		return
	}
	j.errorLogged = true
	j.mu.Unlock()

	e := Event{
		Timestamp: j.now().UTC().Format(time.RFC3339Nano),
		Level:     LevelError,
		Name:      "system.error",
		Message:   "journal sink append failed",
		Fields:    map[string]interface{}{"error": err.Error()},
	}
	j.buffer.Add(e)
	j.broadcaster.broadcast(e)
}

// Snapshot returns every buffered event, oldest first.
func (j *Journal) Snapshot() []Event {
	return j.buffer.Snapshot()
}

// Recent returns the last n events. n <= 0 or larger than the buffer
// returns everything buffered.
func (j *Journal) Recent(n int) []Event {
	all := j.buffer.Snapshot()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Total returns how many events were emitted since the last Clear.
func (j *Journal) Total() uint64 { return j.buffer.Total() }

// Clear empties the buffer.
func (j *Journal) Clear() { j.buffer.Clear() }

func (j *Journal) Subscribe() Subscriber { return j.broadcaster.Subscribe() }

func (j *Journal) Unsubscribe(sub Subscriber) { j.broadcaster.Unsubscribe(sub) }

func (j *Journal) SubscriberCount() int { return j.broadcaster.Count() }

// CloseAllSubscribers closes every subscriber, e.g. on shutdown.
func (j *Journal) CloseAllSubscribers() { j.broadcaster.CloseAll() }
