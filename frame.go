package main

import "sync"

const (
	CmdSetTriggers = 0x11
	SOF0           = 0xAA
	SOF1           = 0x55
)

// Frame is one pin-state update sent to the drive board: a bitmask of
// trigger outputs that must be driven high (bit N = voice N), everything
// else left high-impedance.
type Frame struct {
	Mask byte
	Seq  byte
}

// Encode builds the on-wire representation:
//
//	[SOF0][SOF1][LEN][CMD][Mask][Seq][CKS]
//
// CKS is the XOR of LEN, CMD and the payload.
func (f *Frame) Encode() []byte {
	length := byte(3) // CMD + Mask + Seq
	cks := length ^ CmdSetTriggers ^ f.Mask ^ f.Seq
	return []byte{SOF0, SOF1, length, CmdSetTriggers, f.Mask, f.Seq, cks}
}

// FrameSender ships encoded frames to the drive board.
type FrameSender interface {
	SendFrame(f Frame)
}

// -------------------- PinBank --------------------

// PinBank realizes the trigger Pins over the framed serial link. Each pin
// flips one bit in a shared mask; a dedicated sender goroutine (Run) ships
// full-state frames whenever the mask has changed.
//
// Drive/Release only update the mask and post a non-blocking notification,
// so they are safe to call from the timer context: a stalled drive-board
// write can never hold up the pulse scheduler. Frames carry full state
// rather than deltas, so coalescing a burst of changes into one frame (or
// correcting a dropped one) is harmless; the next frame says everything.
type PinBank struct {
	mu       sync.Mutex
	out      FrameSender
	mask     byte
	seq      byte
	lastMask byte
	sent     bool
	dirty    chan struct{}
}

func NewPinBank(out FrameSender) *PinBank {
	return &PinBank{out: out, dirty: make(chan struct{}, 1)}
}

// Pin returns the Pin handle for bit i of the mask.
func (b *PinBank) Pin(i int) Pin {
	return bankPin{bank: b, bit: byte(1) << i}
}

// Run is the sender loop: it ships a frame for every mask change until
// stop is closed. All serial writes (and their logging) happen here, off
// the timer context.
func (b *PinBank) Run(stop <-chan struct{}) {
	for {
		select {
		case <-b.dirty:
			b.Flush()
		case <-stop:
			return
		}
	}
}

// Flush sends one frame if the mask has changed since the last frame
// shipped. Safe to call from any goroutine; used directly at shutdown to
// get the final all-released state onto the wire.
func (b *PinBank) Flush() {
	b.mu.Lock()
	mask := b.mask
	if b.sent && mask == b.lastMask {
		b.mu.Unlock()
		return
	}
	b.sent = true
	b.lastMask = mask
	seq := b.seq
	b.seq++
	b.mu.Unlock()

	b.out.SendFrame(Frame{Mask: mask, Seq: seq})
}

func (b *PinBank) set(bit byte, high bool) {
	b.mu.Lock()
	mask := b.mask
	if high {
		mask |= bit
	} else {
		mask &^= bit
	}
	if mask == b.mask {
		b.mu.Unlock()
		return
	}
	b.mask = mask
	b.mu.Unlock()

	// Wake the sender without ever blocking; a pending notification
	// already covers this change.
	select {
	case b.dirty <- struct{}{}:
	default:
	}
}

type bankPin struct {
	bank *PinBank
	bit  byte
}

func (p bankPin) Drive()   { p.bank.set(p.bit, true) }
func (p bankPin) Release() { p.bank.set(p.bit, false) }
