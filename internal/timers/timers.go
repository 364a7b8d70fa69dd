// Package timers is the frame-driven timer service. Time only advances
// through Update, so timers pause with the frame scheduler and stay
// deterministic in tests.
package timers

import (
	"log/slog"
	"math"
	"sort"
)

// ID identifies a scheduled timer.
type ID uint64

type timer struct {
	id       ID
	name     string
	seq      uint64
	duration float64
	due      float64
	repeat   bool
	paused   bool
	left     float64
	fn       func()
	done     bool
}

// Service holds named timers and anonymous delays.
type Service struct {
	now    float64
	seq    uint64
	byID   map[ID]*timer
	byName map[string]*timer
	logger *slog.Logger
}

// New returns an empty service. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		byID:   make(map[ID]*timer),
		byName: make(map[string]*timer),
		logger: logger,
	}
}

// Now returns the service clock in seconds.
func (s *Service) Now() float64 { return s.now }

func (s *Service) schedule(name string, seconds float64, repeat bool, fn func()) ID {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	s.seq++
	t := &timer{
		id:       ID(s.seq),
		name:     name,
		seq:      s.seq,
		duration: seconds,
		due:      s.now + seconds,
		repeat:   repeat,
		fn:       fn,
	}
	s.byID[t.id] = t
	if name != "" {
		s.byName[name] = t
	}
	return t.id
}

// Start schedules a named timer. An existing timer with the same name is
// replaced. A repeating timer with zero duration fires once per Update;
// negative and non-finite durations count as zero.
func (s *Service) Start(name string, seconds float64, repeat bool, fn func()) ID {
	if old, ok := s.byName[name]; ok {
		s.drop(old)
	}
	return s.schedule(name, seconds, repeat, fn)
}

// After schedules fn once after seconds.
func (s *Service) After(seconds float64, fn func()) ID {
	return s.schedule("", seconds, false, fn)
}

// Cancel removes the named timer and reports whether it existed.
func (s *Service) Cancel(name string) bool {
	t, ok := s.byName[name]
	if !ok {
		return false
	}
	s.drop(t)
	return true
}

// CancelID removes a timer by id.
func (s *Service) CancelID(id ID) bool {
	t, ok := s.byID[id]
	if !ok {
		return false
	}
	s.drop(t)
	return true
}

func (s *Service) drop(t *timer) {
	t.done = true
	delete(s.byID, t.id)
	if t.name != "" && s.byName[t.name] == t {
		delete(s.byName, t.name)
	}
}

// Pause freezes the named timer's remaining time.
func (s *Service) Pause(name string) bool {
	t, ok := s.byName[name]
	if !ok || t.paused {
		return false
	}
	t.paused = true
	t.left = t.due - s.now
	return true
}

// Resume restarts a paused timer with its remaining time.
func (s *Service) Resume(name string) bool {
	t, ok := s.byName[name]
	if !ok || !t.paused {
		return false
	}
	t.paused = false
	t.due = s.now + t.left
	return true
}

// Remaining returns the seconds left on the named timer.
func (s *Service) Remaining(name string) (float64, bool) {
	t, ok := s.byName[name]
	if !ok {
		return 0, false
	}
	if t.paused {
		return t.left, true
	}
	left := t.due - s.now
	if left < 0 {
		left = 0
	}
	return left, true
}

// Exists reports whether a timer with id is still scheduled.
func (s *Service) Exists(id ID) bool {
	_, ok := s.byID[id]
	return ok
}

// Len returns the number of scheduled timers.
func (s *Service) Len() int { return len(s.byID) }

// Update advances the clock by dt seconds and fires every timer that came
// due, ordered by due time then creation. Timers scheduled by callbacks are
// not considered until the next Update. A repeating timer fires at most once
// per Update.
func (s *Service) Update(dt float64) int {
	if dt > 0 {
		s.now += dt
	}

	var due []*timer
	for _, t := range s.byID {
		if !t.paused && t.due <= s.now {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].seq < due[j].seq
	})

	fired := 0
	for _, t := range due {
		if t.done {
			continue
		}
		if t.repeat {
			if t.duration > 0 {
				periods := math.Floor((s.now-t.due)/t.duration) + 1
				t.due += periods * t.duration
				if t.due <= s.now {
					t.due += t.duration
				}
				// A period below the clock's resolution behaves like zero.
				if t.due <= s.now {
					t.due = s.now
				}
			} else {
				t.due = s.now
			}
		} else {
			s.drop(t)
		}
		fired++
		s.fire(t)
	}
	return fired
}

func (s *Service) fire(t *timer) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("timer callback panicked", "timer", t.name, "timer_id", uint64(t.id), "panic", r)
		}
	}()
	if t.fn != nil {
		t.fn()
	}
}

// Clear cancels every timer and resets the clock.
func (s *Service) Clear() {
	for _, t := range s.byID {
		t.done = true
	}
	s.byID = make(map[ID]*timer)
	s.byName = make(map[string]*timer)
	s.now = 0
}
