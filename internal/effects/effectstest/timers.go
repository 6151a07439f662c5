// Package effectstest provides deterministic effect fakes for tests.
package effectstest

import (
	"sort"
	"sync"
	"time"

	"github.com/shuma/dashboard/internal/effects"
)

type fakeTimer struct {
	delay time.Duration
	fn    func()
}

// FakeTimers records armed timers and fires them only when asked.
type FakeTimers struct {
	mu      sync.Mutex
	next    effects.TimerID
	pending map[effects.TimerID]fakeTimer
	armed   int
	cleared int
}

// NewFakeTimers returns an empty FakeTimers.
func NewFakeTimers() *FakeTimers {
	return &FakeTimers{pending: make(map[effects.TimerID]fakeTimer)}
}

// Set implements effects.SetTimerFunc.
func (f *FakeTimers) Set(d time.Duration, fn func()) effects.TimerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.armed++
	f.pending[f.next] = fakeTimer{delay: d, fn: fn}
	return f.next
}

// Clear implements effects.ClearTimerFunc.
func (f *FakeTimers) Clear(id effects.TimerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pending[id]; ok {
		delete(f.pending, id)
		f.cleared++
	}
}

// Apply installs the fake into opts.
func (f *FakeTimers) Apply(opts effects.Options) effects.Options {
	opts.SetTimeout = f.Set
	opts.ClearTimeout = f.Clear
	return opts
}

// Pending returns the number of armed, unfired timers.
func (f *FakeTimers) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Armed returns how many timers were ever armed.
func (f *FakeTimers) Armed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armed
}

// Cleared returns how many pending timers were cancelled.
func (f *FakeTimers) Cleared() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared
}

// Delays returns the delays of pending timers in arming order.
func (f *FakeTimers) Delays() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.sortedIDsLocked()
	out := make([]time.Duration, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.pending[id].delay)
	}
	return out
}

// IDs returns the pending timer ids in arming order.
func (f *FakeTimers) IDs() []effects.TimerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedIDsLocked()
}

// Fire runs timer id synchronously, as if its delay elapsed. It reports
// whether the timer was pending.
func (f *FakeTimers) Fire(id effects.TimerID) bool {
	f.mu.Lock()
	t, ok := f.pending[id]
	delete(f.pending, id)
	f.mu.Unlock()

	if ok && t.fn != nil {
		t.fn()
	}
	return ok
}

// FireNext fires the oldest pending timer.
func (f *FakeTimers) FireNext() bool {
	f.mu.Lock()
	ids := f.sortedIDsLocked()
	f.mu.Unlock()
	if len(ids) == 0 {
		return false
	}
	return f.Fire(ids[0])
}

func (f *FakeTimers) sortedIDsLocked() []effects.TimerID {
	ids := make([]effects.TimerID, 0, len(f.pending))
	for id := range f.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
