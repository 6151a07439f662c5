package effects

import (
	"sync"
	"time"
)

// TimerID identifies an armed one-shot timer. The zero value means "no timer".
type TimerID uint64

// SetTimerFunc arms a one-shot timer that calls fn after d.
type SetTimerFunc func(d time.Duration, fn func()) TimerID

// ClearTimerFunc cancels a pending timer. Clearing an unknown or already
// fired timer is a no-op.
type ClearTimerFunc func(id TimerID)

// Timers is the production timer table backed by time.AfterFunc.
type Timers struct {
	mu     sync.Mutex
	next   TimerID
	active map[TimerID]*time.Timer
}

// NewTimers returns an empty timer table.
func NewTimers() *Timers {
	return &Timers{active: make(map[TimerID]*time.Timer)}
}

// Set implements SetTimerFunc.
func (t *Timers) Set(d time.Duration, fn func()) TimerID {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	id := t.next
	t.active[id] = time.AfterFunc(d, func() {
		t.mu.Lock()
		_, ok := t.active[id]
		delete(t.active, id)
		t.mu.Unlock()
		if ok && fn != nil {
			fn()
		}
	})
	return id
}

// Clear implements ClearTimerFunc.
func (t *Timers) Clear(id TimerID) {
	if id == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.active[id]; ok {
		timer.Stop()
		delete(t.active, id)
	}
}

// Pending returns the number of armed timers.
func (t *Timers) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}
