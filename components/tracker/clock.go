package tracker

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts time so pollers work with both real and virtual time.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// RealClock delegates to the standard time package.
type RealClock struct{}

// NewRealClock creates a wall-clock implementation.
func NewRealClock() RealClock {
	return RealClock{}
}

// Now returns the current wall time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// AfterFunc schedules f on its own goroutine after d.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// VirtualClock is a controllable clock for deterministic timer tests.
// Callbacks run synchronously inside Advance, in deadline order.
//
// Thread-safe for concurrent use.
type VirtualClock struct {
	mu      sync.Mutex
	current time.Time
	seq     uint64
	timers  []*virtualTimer
}

type virtualTimer struct {
	clock    *VirtualClock
	seq      uint64
	deadline time.Time
	fn       func()
	stopped  bool
}

// NewVirtualClock creates a VirtualClock starting at the given time.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{current: start}
}

// Now returns the current virtual time.
func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc registers f to run once the clock has advanced by d.
func (c *VirtualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &virtualTimer{
		clock:    c,
		seq:      c.seq,
		deadline: c.current.Add(d),
		fn:       f,
	}
	c.timers = append(c.timers, t)
	return t
}

// Pending returns the number of armed timers.
func (c *VirtualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Advance moves the clock forward by d, firing every timer that falls due,
// including timers armed by callbacks during the advance.
// Panics if d is negative.
func (c *VirtualClock) Advance(d time.Duration) {
	if d < 0 {
		panic("clock: cannot advance by negative duration")
	}
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDue(target)
		if next == nil {
			c.current = target
			c.mu.Unlock()
			return
		}
		c.remove(next)
		if next.deadline.After(c.current) {
			c.current = next.deadline
		}
		c.mu.Unlock()
		next.fn()
	}
}

// nextDue returns the earliest timer due at or before target. Must be called with c.mu held.
func (c *VirtualClock) nextDue(target time.Time) *virtualTimer {
	if len(c.timers) == 0 {
		return nil
	}
	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].deadline.Equal(c.timers[j].deadline) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].deadline.Before(c.timers[j].deadline)
	})
	if c.timers[0].deadline.After(target) {
		return nil
	}
	return c.timers[0]
}

// remove drops t from the pending list. Must be called with c.mu held.
func (c *VirtualClock) remove(t *virtualTimer) bool {
	for i, pending := range c.timers {
		if pending == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return true
		}
	}
	return false
}

func (t *virtualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return t.clock.remove(t)
}
