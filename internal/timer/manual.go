package timer

import (
	"sync"
	"time"
)

// Manual is a virtual clock whose timers only fire when Advance moves time past their deadline.
// Callbacks run synchronously on the goroutine calling Advance, in deadline order.
type Manual struct {
	mu       sync.Mutex
	now      time.Time
	next     Handle
	pending  map[Handle]manualTimer
	armError error
}

type manualTimer struct {
	at   time.Time
	seq  Handle
	fire func()
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start, pending: make(map[Handle]manualTimer)}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Arm(d time.Duration, fire func()) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.armError != nil {
		return 0, m.armError
	}
	m.next++
	m.pending[m.next] = manualTimer{at: m.now.Add(d), seq: m.next, fire: fire}
	return m.next, nil
}

func (m *Manual) Cancel(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, h)
}

// FailArm makes subsequent Arm calls return err; nil restores normal behaviour.
func (m *Manual) FailArm(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armError = err
}

func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Advance moves the clock forward by d, firing every timer that comes due, including
// timers armed by callbacks fired during this call.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		h, due, ok := m.earliestLocked(target)
		if !ok {
			break
		}
		delete(m.pending, h)
		m.now = due.at
		m.mu.Unlock()
		due.fire()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

func (m *Manual) earliestLocked(limit time.Time) (Handle, manualTimer, bool) {
	var (
		best   manualTimer
		handle Handle
		found  bool
	)
	for h, t := range m.pending {
		if t.at.After(limit) {
			continue
		}
		if !found || t.at.Before(best.at) || (t.at.Equal(best.at) && t.seq < best.seq) {
			best, handle, found = t, h, true
		}
	}
	return handle, best, found
}
