// Package timer schedules one-shot, cancellable wake-ups for question deadlines.
package timer

import (
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Arm once the service has been closed.
var ErrClosed = errors.New("timer service closed")

// Handle identifies an armed timer.
type Handle uint64

// Wall arms timers against the real clock using time.AfterFunc.
type Wall struct {
	mu     sync.Mutex
	next   Handle
	timers map[Handle]*time.Timer
	closed bool
}

func NewWall() *Wall {
	return &Wall{timers: make(map[Handle]*time.Timer)}
}

func (w *Wall) Now() time.Time {
	return time.Now()
}

// Arm runs fire once, on its own goroutine, after at least d elapses.
func (w *Wall) Arm(d time.Duration, fire func()) (Handle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrClosed
	}
	w.next++
	h := w.next
	w.timers[h] = time.AfterFunc(d, func() {
		w.mu.Lock()
		delete(w.timers, h)
		w.mu.Unlock()
		fire()
	})
	return h, nil
}

// Cancel is best-effort: a timer that already fired still delivers its callback.
func (w *Wall) Cancel(h Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[h]; ok {
		t.Stop()
		delete(w.timers, h)
	}
}

// Pending reports how many timers are armed and not yet fired.
func (w *Wall) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timers)
}

// Close stops all pending timers; later Arm calls fail with ErrClosed.
func (w *Wall) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for h, t := range w.timers {
		t.Stop()
		delete(w.timers, h)
	}
}
