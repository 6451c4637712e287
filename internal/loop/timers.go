// SPDX-License-Identifier: BSD-3-Clause

package loop

import (
	"sync"
	"time"
)

// Timers tracks named deadlines armed through Loop.Timers. Loop consults
// it each cycle to find how long it may safely block, and to notice
// expiry. No component in this repository arms one (the control FSM's
// boot, start and link timeouts only feed pkg/fsm's per-Fire timeout).
type Timers struct {
	mu        sync.Mutex
	deadlines map[string]time.Time
}

// NewTimers returns an empty Timers set.
func NewTimers() *Timers {
	return &Timers{deadlines: make(map[string]time.Time)}
}

// Arm sets name to expire after d from now.
func (t *Timers) Arm(name string, d time.Duration) {
	t.ArmAt(name, time.Now().Add(d))
}

// ArmAt sets name to expire at the given absolute time.
func (t *Timers) ArmAt(name string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deadlines[name] = at
}

// Disarm removes name, if armed.
func (t *Timers) Disarm(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.deadlines, name)
}

// Armed reports whether name currently has a deadline set.
func (t *Timers) Armed(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.deadlines[name]
	return ok
}

// Nearest returns the name and deadline of the soonest-expiring armed
// timer. ok is false if nothing is armed.
func (t *Timers) Nearest() (name string, at time.Time, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	first := true
	for n, d := range t.deadlines {
		if first || d.Before(at) {
			name, at, first = n, d, false
		}
	}
	return name, at, !first
}

// Expired returns every timer whose deadline is at or before now,
// disarming each as it's returned so a slow handler never re-fires the
// same timer on the next cycle.
func (t *Timers) Expired(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for n, d := range t.deadlines {
		if !d.After(now) {
			out = append(out, n)
			delete(t.deadlines, n)
		}
	}
	return out
}
