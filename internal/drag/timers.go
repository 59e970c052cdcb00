package drag

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Timers owns every timer of a component under a string key. Scheduling a
// key that is already pending replaces it. A callback only runs if its slot
// is still the registered one when the timer fires, so Cancel wins any race
// with an expiring timer.
type Timers struct {
	clock clockwork.Clock

	mu      sync.Mutex
	slots   map[string]*slot
	stopped bool
}

type slot struct {
	delay time.Duration
	every bool
	timer clockwork.Timer
}

// NewTimers returns a Timers driven by c.
func NewTimers(c clockwork.Clock) *Timers {
	return &Timers{clock: c, slots: make(map[string]*slot)}
}

// Once runs f after d.
func (t *Timers) Once(key string, d time.Duration, f func()) {
	t.schedule(key, &slot{delay: d}, f)
}

// Every runs f every d until the key is cancelled. The next tick is armed
// after f returns, so ticks never overlap.
func (t *Timers) Every(key string, d time.Duration, f func()) {
	t.schedule(key, &slot{delay: d, every: true}, f)
}

// Cancel stops the timer under key. It reports whether one was pending.
func (t *Timers) Cancel(key string) bool {
	t.mu.Lock()
	s, ok := t.slots[key]
	delete(t.slots, key)
	var timer clockwork.Timer
	if ok {
		timer = s.timer
	}
	t.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
	return ok
}

// Pending reports whether key is scheduled.
func (t *Timers) Pending(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.slots[key]
	return ok
}

// Stop cancels all timers. Later scheduling calls are ignored.
func (t *Timers) Stop() {
	t.mu.Lock()
	t.stopped = true
	slots := t.slots
	t.slots = make(map[string]*slot)
	t.mu.Unlock()
	for _, s := range slots {
		if s.timer != nil {
			s.timer.Stop()
		}
	}
}

func (t *Timers) schedule(key string, s *slot, f func()) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	old := t.slots[key]
	t.slots[key] = s
	t.mu.Unlock()

	if old != nil && old.timer != nil {
		old.timer.Stop()
	}
	t.arm(key, s, f)
}

func (t *Timers) arm(key string, s *slot, f func()) {
	timer := t.clock.AfterFunc(s.delay, func() { t.fire(key, s, f) })

	t.mu.Lock()
	if t.slots[key] == s {
		s.timer = timer
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	timer.Stop()
}

func (t *Timers) fire(key string, s *slot, f func()) {
	t.mu.Lock()
	if t.slots[key] != s {
		t.mu.Unlock()
		return
	}
	if !s.every {
		delete(t.slots, key)
	}
	t.mu.Unlock()

	f()

	if !s.every {
		return
	}
	t.mu.Lock()
	live := t.slots[key] == s
	t.mu.Unlock()
	if live {
		t.arm(key, s, f)
	}
}
