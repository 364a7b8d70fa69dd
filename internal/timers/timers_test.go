package timers

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiryOrder(t *testing.T) {
	s := New(nil)
	var order []string
	s.After(0.5, func() { order = append(order, "b") })
	s.Start("late", 1.0, false, func() { order = append(order, "c") })
	s.After(0.5, func() { order = append(order, "b2") })
	s.After(0.1, func() { order = append(order, "a") })

	assert.Equal(t, 0, s.Update(0.05))
	assert.Equal(t, 4, s.Update(2))
	assert.Equal(t, []string{"a", "b", "b2", "c"}, order)
	assert.Equal(t, 0, s.Len())
}

func TestRepeatingTimer(t *testing.T) {
	s := New(nil)
	n := 0
	s.Start("tick", 0.25, true, func() { n++ })

	s.Update(0.25)
	s.Update(0.25)
	s.Update(1.0)
	assert.Equal(t, 3, n, "a repeating timer fires once per update")

	left, ok := s.Remaining("tick")
	require.True(t, ok)
	assert.InDelta(t, 0.25, left, 1e-9)

	assert.True(t, s.Cancel("tick"))
	assert.False(t, s.Cancel("tick"))
	s.Update(1)
	assert.Equal(t, 3, n)
}

func TestStartReplacesNamedTimer(t *testing.T) {
	s := New(nil)
	var got []int
	s.Start("t", 1, false, func() { got = append(got, 1) })
	s.Start("t", 2, false, func() { got = append(got, 2) })
	s.Update(1.5)
	assert.Empty(t, got)
	s.Update(1)
	assert.Equal(t, []int{2}, got)
}

func TestPauseResume(t *testing.T) {
	s := New(nil)
	fired := false
	s.Start("door", 1, false, func() { fired = true })
	s.Update(0.4)
	require.True(t, s.Pause("door"))
	s.Update(5)
	assert.False(t, fired)

	left, _ := s.Remaining("door")
	assert.InDelta(t, 0.6, left, 1e-9)

	require.True(t, s.Resume("door"))
	s.Update(0.5)
	assert.False(t, fired)
	s.Update(0.2)
	assert.True(t, fired)
}

func TestCallbackScheduledTimersWaitForNextUpdate(t *testing.T) {
	s := New(nil)
	var order []string
	s.After(0, func() {
		order = append(order, "first")
		s.After(0, func() { order = append(order, "second") })
	})
	s.Update(0)
	assert.Equal(t, []string{"first"}, order)
	s.Update(0)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestCancelIDAndPanicIsolation(t *testing.T) {
	s := New(nil)
	ran := false
	id := s.After(1, func() { ran = true })
	s.After(0.5, func() { panic("bad timer") })
	assert.True(t, s.Exists(id))
	assert.True(t, s.CancelID(id))
	assert.False(t, s.Exists(id))

	assert.NotPanics(t, func() { s.Update(2) })
	assert.False(t, ran)
}

func TestClear(t *testing.T) {
	s := New(nil)
	s.Start("a", 1, true, func() {})
	s.After(1, func() {})
	s.Update(0.5)
	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0.0, s.Now())
}

func TestRepeatingTimerBelowClockResolution(t *testing.T) {
	s := New(nil)
	n := 0
	s.Start("spin", 1e-20, true, func() { n++ })

	done := make(chan struct{})
	go func() {
		s.Update(1.0 / 60)
		s.Update(1.0 / 60)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Update did not return for a 1e-20s repeating timer")
	}
	assert.Equal(t, 2, n)
}

func TestRepeatingTimerCatchesUpArithmetically(t *testing.T) {
	s := New(nil)
	n := 0
	s.Start("fast", 1e-6, true, func() { n++ })
	s.Update(1000)
	assert.Equal(t, 1, n)

	left, ok := s.Remaining("fast")
	require.True(t, ok)
	assert.Greater(t, left, 0.0)
	assert.InDelta(t, 1e-6, left, 1e-6)
}

func TestNonFiniteDurationsFireImmediately(t *testing.T) {
	for name, d := range map[string]float64{"nan": math.NaN(), "+inf": math.Inf(1), "-inf": math.Inf(-1)} {
		t.Run(name, func(t *testing.T) {
			s := New(nil)
			fired := false
			s.After(d, func() { fired = true })
			s.Update(1.0 / 60)
			assert.True(t, fired)
			assert.Equal(t, 0, s.Len())
		})
	}
}
