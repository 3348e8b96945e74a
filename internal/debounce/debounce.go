// Package debounce delays actions until a quiet period has passed since the
// last request under the same key.
package debounce

import (
	"sync"
	"time"
)

// Debouncer owns one pending timer per key.
//
// Schedule replaces any action under the same key that has not fired yet;
// the replaced action never runs. Actions run on their own goroutine, one at
// a time, so two actions for the same key never overlap. After Stop nothing
// pending fires and further Schedule calls are ignored.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]*entry
	seq     uint64
	stopped bool

	// run serialises action execution.
	run sync.Mutex
}

type entry struct {
	timer *time.Timer
	seq   uint64
}

// New returns an empty Debouncer.
func New() *Debouncer {
	return &Debouncer{pending: make(map[string]*entry)}
}

// Schedule records action under key to run once delay has elapsed with no
// further Schedule call for that key.
func (d *Debouncer) Schedule(key string, delay time.Duration, action func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
	}

	d.seq++
	e := &entry{seq: d.seq}
	e.timer = time.AfterFunc(delay, func() { d.fire(key, e.seq, action) })
	d.pending[key] = e
}

func (d *Debouncer) fire(key string, seq uint64, action func()) {
	d.run.Lock()
	defer d.run.Unlock()

	d.mu.Lock()
	e, ok := d.pending[key]
	// A timer that lost the race with Stop, Cancel or a newer Schedule must
	// not run.
	if d.stopped || !ok || e.seq != seq {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	action()
}

// Cancel drops the pending action under key. It reports whether something
// was pending; cancelling twice is a no-op.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(d.pending, key)
	return true
}

// Pending reports whether an action is waiting under key.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Stop cancels every pending action and disables the Debouncer.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for key, e := range d.pending {
		e.timer.Stop()
		delete(d.pending, key)
	}
}
