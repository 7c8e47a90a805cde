package main

import (
	"sync"
	"time"
)

// -------------------- Pins --------------------

// Pin is one physical trigger output. Drive puts it in an output-high
// state; Release returns it to high-impedance. The idle state is Hi-Z
// rather than driven-low so several trigger outputs can be wired together
// without isolation diodes.
//
// Both methods are called from the timer context with the scheduler lock
// held, so implementations must not block (see PinBank).
type Pin interface {
	Drive()
	Release()
}

// -------------------- PulseChannel --------------------

// PulseChannel owns the pulse state of one output: whether it is currently
// firing and for how many ticks it has been. It holds no lock of its own;
// the scheduler serializes Trig against Tick (see Scheduler).
type PulseChannel struct {
	name    string
	pin     Pin
	total   int
	armed   bool
	elapsed int
}

// NewPulseChannel builds a channel whose pulse lasts duration, quantized to
// the scheduler tick period (rounded half up, minimum one tick).
func NewPulseChannel(name string, pin Pin, duration, tick time.Duration) *PulseChannel {
	return &PulseChannel{name: name, pin: pin, total: ticksFor(duration, tick)}
}

// ticksFor converts a pulse duration to whole ticks, round half up.
func ticksFor(duration, tick time.Duration) int {
	n := int((duration + tick/2) / tick)
	if n < 1 {
		n = 1
	}
	return n
}

// Begin puts the channel in its idle state: disarmed, pin released.
func (c *PulseChannel) Begin() {
	c.armed = false
	c.elapsed = 0
	c.pin.Release()
}

// trig starts (or restarts) the pulse from zero. Caller must hold the
// scheduler lock: the counter reset, the flag, and the pin drive have to
// land as one unit or a concurrent Tick could end a pulse it never saw
// start.
func (c *PulseChannel) trig() {
	c.elapsed = 0
	c.armed = true
	c.pin.Drive()
}

// tick advances the pulse by one period. Caller must hold the scheduler
// lock. Disarmed channels are untouched.
func (c *PulseChannel) tick() {
	if !c.armed {
		return
	}
	c.elapsed++
	if c.elapsed >= c.total {
		c.pin.Release()
		c.armed = false
	}
}

// Armed reports whether the channel is mid-pulse. Test/diagnostic hook;
// takes no lock, so callers sample it from the triggering context only.
func (c *PulseChannel) Armed() bool { return c.armed }

// -------------------- Scheduler --------------------

// Scheduler fans one periodic tick out to every registered channel, in
// registration order, exactly once per period. It owns the mutex that
// stands in for the interrupt-disable guard on a bare-metal build: Trig
// (input context) and Tick (timer context) both take it, so a tick never
// observes a half-armed channel.
type Scheduler struct {
	mu       sync.Mutex
	channels []*PulseChannel
}

func NewScheduler(channels ...*PulseChannel) *Scheduler {
	return &Scheduler{channels: channels}
}

// Begin initializes every channel to idle.
func (s *Scheduler) Begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.channels {
		c.Begin()
	}
}

// Tick advances every channel by one period. Called once per timer tick
// from the timer goroutine; must stay well under the tick period, so it is
// a plain O(channels) sweep with no blocking and no logging.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.channels {
		c.tick()
	}
}

// Trig arms channel i. Out-of-range indexes are ignored.
func (s *Scheduler) Trig(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.channels) {
		return
	}
	s.channels[i].trig()
}

// ReleaseAll disarms every channel and releases every pin. Used as the
// panic path on MIDI disconnect and on shutdown.
func (s *Scheduler) ReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.channels {
		c.Begin()
	}
}

// Channel returns the i'th registered channel, or nil.
func (s *Scheduler) Channel(i int) *PulseChannel {
	if i < 0 || i >= len(s.channels) {
		return nil
	}
	return s.channels[i]
}

// Run drives Tick from a time.Ticker until stop is closed. This is the
// stand-in for the hardware timer interrupt: one goroutine, one tick per
// period, channels advanced exactly once each.
func (s *Scheduler) Run(period time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Tick()
		case <-stop:
			return
		}
	}
}
