// Package playback runs a playback session: a producer that decodes and
// outputs audio and publishes its position on a Clock, and a renderer that
// polls that Clock to draw a cursor.
package playback

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrClockPoisoned is returned by readers after the writer panicked.
var ErrClockPoisoned = errors.New("playback clock poisoned")

// Elapsed is a playback position split into hours, minutes and seconds.
type Elapsed struct {
	Hours   uint64
	Minutes uint64
	Seconds float64
}

// ElapsedOf converts a frame count into elapsed time at the given rate.
func ElapsedOf(frames uint64, sampleRate int) Elapsed {
	if sampleRate <= 0 {
		return Elapsed{}
	}
	whole := frames / uint64(sampleRate)
	frac := float64(frames%uint64(sampleRate)) / float64(sampleRate)
	return Elapsed{
		Hours:   whole / 3600,
		Minutes: whole % 3600 / 60,
		Seconds: float64(whole%60) + frac,
	}
}

// Duration converts e back to a time.Duration.
func (e Elapsed) Duration() time.Duration {
	secs := float64(e.Hours*3600+e.Minutes*60) + e.Seconds
	return time.Duration(secs * float64(time.Second))
}

// String formats e as h:mm:ss.s.
func (e Elapsed) String() string {
	s := math.Floor(e.Seconds*10) / 10
	return fmt.Sprintf("%d:%02d:%04.1f", e.Hours, e.Minutes, s)
}

// Snapshot is one consistent reading of the clock.
type Snapshot struct {
	Position uint64 // frames
	Elapsed  Elapsed
}

// Clock is the shared playback position. It has a single writer (the
// producer); any number of goroutines may read it.
type Clock struct {
	mu       sync.Mutex
	snap     Snapshot
	poisoned bool

	startOnce sync.Once
	started   chan struct{}
}

func NewClock() *Clock {
	return &Clock{started: make(chan struct{})}
}

// Write replaces position and elapsed time together. It must only be
// called from one goroutine.
func (c *Clock) Write(position uint64, elapsed Elapsed) {
	c.mu.Lock()
	if !c.poisoned {
		c.snap = Snapshot{Position: position, Elapsed: elapsed}
	}
	c.mu.Unlock()
	c.startOnce.Do(func() { close(c.started) })
}

// Read returns the latest snapshot, waiting at most for one Write to finish.
func (c *Clock) Read() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poisoned {
		return Snapshot{}, ErrClockPoisoned
	}
	return c.snap, nil
}

// TryRead is Read without waiting. ok is false when a Write holds the lock.
func (c *Clock) TryRead() (snap Snapshot, ok bool, err error) {
	if !c.mu.TryLock() {
		return Snapshot{}, false, nil
	}
	defer c.mu.Unlock()
	if c.poisoned {
		return Snapshot{}, false, ErrClockPoisoned
	}
	return c.snap, true, nil
}

// Started is closed after the first Write.
func (c *Clock) Started() <-chan struct{} {
	return c.started
}

func (c *Clock) poison() {
	c.mu.Lock()
	c.poisoned = true
	c.mu.Unlock()
}
