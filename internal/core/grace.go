package core

import (
	"time"

	"github.com/dkeye/Parlor/internal/domain"
)

// Timer is the part of *time.Timer the grace tracker needs.
type Timer interface {
	Stop() bool
}

// Scheduler arms one-shot callbacks. Tests inject a manual clock.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallScheduler struct{}

func (wallScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// WallClock schedules on real timers.
var WallClock Scheduler = wallScheduler{}

type graceEntry struct {
	timer Timer
	gen   uint64
}

// Grace tracks one pending eviction timer per offline participant.
//
// The fire callback runs on the timer goroutine and receives the generation
// the timer was armed with. The owner hands that generation back through
// Fired from its own goroutine; a cancelled or re-armed timer yields a stale
// generation and Fired returns false.
type Grace struct {
	sched   Scheduler
	pending map[domain.ParticipantID]graceEntry
	gen     uint64
}

func NewGrace(sched Scheduler) *Grace {
	if sched == nil {
		sched = WallClock
	}
	return &Grace{
		sched:   sched,
		pending: make(map[domain.ParticipantID]graceEntry),
	}
}

// Schedule arms a timer for id, replacing any previous one.
func (g *Grace) Schedule(id domain.ParticipantID, delay time.Duration, fire func(gen uint64)) uint64 {
	g.Cancel(id)
	g.gen++
	gen := g.gen
	t := g.sched.AfterFunc(delay, func() { fire(gen) })
	g.pending[id] = graceEntry{timer: t, gen: gen}
	return gen
}

// Cancel stops the timer for id. It reports whether one was pending.
func (g *Grace) Cancel(id domain.ParticipantID) bool {
	e, ok := g.pending[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(g.pending, id)
	return true
}

// Fired consumes the pending entry when gen is still current.
func (g *Grace) Fired(id domain.ParticipantID, gen uint64) bool {
	e, ok := g.pending[id]
	if !ok || e.gen != gen {
		return false
	}
	delete(g.pending, id)
	return true
}

func (g *Grace) Pending(id domain.ParticipantID) bool {
	_, ok := g.pending[id]
	return ok
}

func (g *Grace) Stop() {
	for id, e := range g.pending {
		e.timer.Stop()
		delete(g.pending, id)
	}
}
