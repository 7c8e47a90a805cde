package main

import (
	"testing"
	"time"
)

// fakePin records drive/release transitions in place of a hardware output.
type fakePin struct {
	driven   bool
	drives   int
	releases int
}

func (p *fakePin) Drive()   { p.driven = true; p.drives++ }
func (p *fakePin) Release() { p.driven = false; p.releases++ }

func TestTicksForRoundsHalfUp(t *testing.T) {
	tests := []struct {
		duration time.Duration
		tick     time.Duration
		want     int
	}{
		{500 * time.Microsecond, 50 * time.Microsecond, 10},
		{8000 * time.Microsecond, 50 * time.Microsecond, 160},
		{250 * time.Microsecond, 50 * time.Microsecond, 5},
		{275 * time.Microsecond, 50 * time.Microsecond, 6}, // exactly half rounds up
		{274 * time.Microsecond, 50 * time.Microsecond, 5}, // just under half rounds down
		{10 * time.Microsecond, 50 * time.Microsecond, 1},  // never shorter than one tick
		{0, 50 * time.Microsecond, 1},
	}
	for _, tt := range tests {
		if got := ticksFor(tt.duration, tt.tick); got != tt.want {
			t.Errorf("ticksFor(%v, %v) = %d, want %d", tt.duration, tt.tick, got, tt.want)
		}
	}
}

func newTestChannel(pin Pin, totalTicks int) *PulseChannel {
	tick := 50 * time.Microsecond
	return NewPulseChannel("test", pin, time.Duration(totalTicks)*tick, tick)
}

func TestIdleTickIsIdempotent(t *testing.T) {
	pin := &fakePin{}
	c := newTestChannel(pin, 4)
	c.Begin()
	releases := pin.releases

	for i := 0; i < 100; i++ {
		c.tick()
	}
	if c.Armed() {
		t.Error("disarmed channel became armed from ticking")
	}
	if pin.drives != 0 || pin.releases != releases {
		t.Errorf("idle ticks touched the pin: drives=%d releases=%d", pin.drives, pin.releases-releases)
	}
}

func TestPulseDurationBound(t *testing.T) {
	const total = 10
	pin := &fakePin{}
	c := newTestChannel(pin, total)
	c.Begin()

	c.trig()
	if !c.Armed() || !pin.driven {
		t.Fatal("trig did not arm and drive")
	}
	for i := 1; i < total; i++ {
		c.tick()
		if !c.Armed() || !pin.driven {
			t.Fatalf("channel ended early at tick %d of %d", i, total)
		}
	}
	c.tick() // tick number `total`
	if c.Armed() || pin.driven {
		t.Errorf("channel still active after %d ticks", total)
	}
}

func TestTrigRestartsElapsedCount(t *testing.T) {
	const total = 5
	pin := &fakePin{}
	c := newTestChannel(pin, total)
	c.Begin()

	c.trig()
	c.tick()
	c.tick()
	c.tick()
	c.trig() // restart mid-pulse

	// Full duration again, measured from the second trig.
	for i := 1; i < total; i++ {
		c.tick()
		if !c.Armed() {
			t.Fatalf("restarted pulse ended early at tick %d of %d", i, total)
		}
	}
	c.tick()
	if c.Armed() {
		t.Error("restarted pulse did not end after its full duration")
	}
}

func TestBeginReleasesPin(t *testing.T) {
	pin := &fakePin{driven: true}
	c := newTestChannel(pin, 3)
	c.Begin()
	if pin.driven {
		t.Error("Begin left the pin driven")
	}
	if c.Armed() {
		t.Error("Begin left the channel armed")
	}
}

func TestSchedulerAdvancesEveryChannelOncePerTick(t *testing.T) {
	pins := [3]*fakePin{{}, {}, {}}
	chans := [3]*PulseChannel{
		newTestChannel(pins[0], 2),
		newTestChannel(pins[1], 5),
		newTestChannel(pins[2], 8),
	}
	s := NewScheduler(chans[0], chans[1], chans[2])
	s.Begin()

	s.Trig(0)
	s.Trig(1)
	s.Trig(2)

	// Each channel must disarm on exactly its own tick count, proving one
	// scheduler tick equals one channel tick for all of them.
	for tick := 1; tick <= 8; tick++ {
		s.Tick()
		for i, c := range chans {
			wantArmed := tick < c.total
			if c.Armed() != wantArmed {
				t.Errorf("tick %d: channel %d armed=%v, want %v", tick, i, c.Armed(), wantArmed)
			}
		}
	}
}

func TestSchedulerTrigOutOfRange(t *testing.T) {
	s := NewScheduler(newTestChannel(&fakePin{}, 2))
	s.Begin()
	s.Trig(-1) // must not panic
	s.Trig(5)
	if s.Channel(0).Armed() {
		t.Error("out-of-range trig armed a channel")
	}
}

func TestReleaseAll(t *testing.T) {
	pins := [2]*fakePin{{}, {}}
	s := NewScheduler(newTestChannel(pins[0], 10), newTestChannel(pins[1], 10))
	s.Begin()
	s.Trig(0)
	s.Trig(1)

	s.ReleaseAll()
	for i, pin := range pins {
		if pin.driven {
			t.Errorf("pin %d still driven after ReleaseAll", i)
		}
		if s.Channel(i).Armed() {
			t.Errorf("channel %d still armed after ReleaseAll", i)
		}
	}
}

// TestTrigAtomicWithConcurrentTicks hammers Trig from one goroutine while
// another ticks continuously: the scheduler mutex must keep every arm a
// single unit, so once the dust settles everything drains to disarmed with
// pins released. Run it under the race detector.
func TestTrigAtomicWithConcurrentTicks(t *testing.T) {
	pins := [2]*fakePin{{}, {}}
	s := NewScheduler(newTestChannel(pins[0], 3), newTestChannel(pins[1], 7))
	s.Begin()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				s.Tick()
			}
		}
	}()

	for i := 0; i < 10000; i++ {
		s.Trig(i % 2)
	}
	close(stop)
	<-done

	// Drain whatever is still in flight, then everything must be idle.
	for i := 0; i < 8; i++ {
		s.Tick()
	}
	for i, pin := range pins {
		if s.Channel(i).Armed() {
			t.Errorf("channel %d still armed after drain", i)
		}
		if pin.driven {
			t.Errorf("pin %d still driven after drain", i)
		}
	}
}

func TestSchedulerRunStops(t *testing.T) {
	s := NewScheduler(newTestChannel(&fakePin{}, 2))
	s.Begin()
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		s.Run(time.Millisecond, stop)
		close(done)
	}()
	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after stop")
	}
}
