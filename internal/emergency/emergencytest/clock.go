// Package emergencytest provides a manual clock for driving emergency countdowns
// in tests.
package emergencytest

import (
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/emergency"
)

// Clock fires scheduled callbacks synchronously from Advance. It never starts
// goroutines.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*timer
}

type timer struct {
	clock   *Clock
	when    time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

// NewClock returns a clock reading start. A zero start uses a fixed date.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) AfterFunc(d time.Duration, f func()) emergency.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &timer{clock: c, when: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, running every due callback in deadline order.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		if next.when.After(c.now) {
			c.now = next.when
		}
		c.mu.Unlock()
		next.f()
	}
}

func (c *Clock) nextDueLocked(target time.Time) *timer {
	var due []*timer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.when.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].when.Equal(due[j].when) {
			return due[i].seq < due[j].seq
		}
		return due[i].when.Before(due[j].when)
	})
	return due[0]
}

// Pending counts callbacks that could still fire.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}
