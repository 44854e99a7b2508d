package app

import (
	"sync"
	"time"

	"quizme/internal/domain"
)

// Timer is the subset of *time.Timer the countdown needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d; time.AfterFunc in production.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// countdowns holds at most one pending auto-advance per room. Each schedule
// gets a generation number; a firing timer must still own its room's slot,
// so stopped or replaced countdowns never act.
type countdowns struct {
	afterFunc AfterFunc
	fire      func(roomID string, index int)

	mu     sync.Mutex
	gen    uint64
	active map[string]countdown
}

type countdown struct {
	gen   uint64
	index int
	timer Timer
}

func newCountdowns(afterFunc AfterFunc, fire func(roomID string, index int)) *countdowns {
	return &countdowns{
		afterFunc: afterFunc,
		fire:      fire,
		active:    make(map[string]countdown),
	}
}

// reset cancels any pending countdown for the room and starts a new one if
// the room is on a slide with auto-advance enabled.
func (c *countdowns) reset(room domain.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked(room.ID)
	if !room.AutoAdvance || room.SlideDuration <= 0 || room.Phase() != domain.PhaseActive {
		return
	}
	c.scheduleLocked(room.ID, room.CurrentSlideIndex, time.Duration(room.SlideDuration)*time.Second)
}

// retry re-arms a countdown that fired while the room was busy. A countdown
// scheduled since then wins.
func (c *countdowns) retry(roomID string, index int, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.active[roomID]; ok {
		return
	}
	c.scheduleLocked(roomID, index, d)
}

func (c *countdowns) scheduleLocked(roomID string, index int, d time.Duration) {
	c.gen++
	gen := c.gen
	timer := c.afterFunc(d, func() {
		if !c.claim(roomID, gen) {
			return
		}
		c.fire(roomID, index)
	})
	c.active[roomID] = countdown{gen: gen, index: index, timer: timer}
}

func (c *countdowns) claim(roomID string, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cd, ok := c.active[roomID]
	if !ok || cd.gen != gen {
		return false
	}
	delete(c.active, roomID)
	return true
}

func (c *countdowns) stopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for roomID := range c.active {
		c.stopLocked(roomID)
	}
}

func (c *countdowns) stopLocked(roomID string) {
	if cd, ok := c.active[roomID]; ok {
		cd.timer.Stop()
		delete(c.active, roomID)
	}
}
