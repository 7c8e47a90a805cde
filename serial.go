package main

import (
	"os"
	"time"

	"go.bug.st/serial"
)

// MIDIBaud is the DIN-MIDI line rate: 31250 bps, one start and one stop
// bit, no parity.
const MIDIBaud = 31250

// -------------------- Drive-board link --------------------

// SerialPort wraps a go.bug.st/serial port with a frame-send helper. It is
// the link to the trigger drive board.
type SerialPort struct {
	port serial.Port
}

// OpenSerial opens the named serial device at the given baud rate.
// Exits the process on error.
func OpenSerial(name string, baud int) *SerialPort {
	mode := &serial.Mode{BaudRate: baud}
	p, err := serial.Open(name, mode)
	if err != nil {
		logger.Error("serial: failed to open port", "device", name, "baud", baud, "err", err)
		os.Exit(1)
	}
	logger.Info("serial: port opened", "device", name, "baud", baud)
	return &SerialPort{port: p}
}

// SendFrame encodes and writes a Frame to the serial port.
func (s *SerialPort) SendFrame(f Frame) {
	data := f.Encode()
	n, err := s.port.Write(data)
	if err != nil {
		logger.Error("serial: write error", "err", err)
		return
	}
	logger.Debug("serial: frame sent", "bytes", n, "seq", f.Seq, "mask", f.Mask)
}

// Close closes the underlying serial port.
func (s *SerialPort) Close() {
	logger.Info("serial: closing port")
	_ = s.port.Close()
}

// -------------------- MIDI byte source --------------------

// ByteSource yields one byte of the MIDI stream per call, or ok=false when
// none arrived within the source's poll timeout.
type ByteSource interface {
	ReadByte() (b byte, ok bool)
	Close()
}

// MIDIByteSource reads raw DIN-MIDI bytes from a serial receiver. Each
// ReadByte blocks for at most the configured timeout, so the poll loop
// stays responsive to shutdown without ever busy-waiting.
type MIDIByteSource struct {
	port serial.Port
	buf  [1]byte
}

// OpenMIDISource opens the named serial device at MIDI line rate with the
// given per-read timeout.
func OpenMIDISource(name string, timeout time.Duration) (*MIDIByteSource, error) {
	mode := &serial.Mode{BaudRate: MIDIBaud}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		_ = p.Close()
		return nil, err
	}
	logger.Info("serial: MIDI input opened", "device", name, "baud", MIDIBaud, "timeout_ms", timeout.Milliseconds())
	return &MIDIByteSource{port: p}, nil
}

// ReadByte returns the next byte from the wire, or ok=false on timeout or
// read error. Errors are logged, not returned: a glitchy line must not
// stop the poll loop.
func (m *MIDIByteSource) ReadByte() (byte, bool) {
	n, err := m.port.Read(m.buf[:])
	if err != nil {
		logger.Warn("serial: MIDI read error", "err", err)
		return 0, false
	}
	if n == 0 {
		return 0, false // timeout, nothing on the wire
	}
	return m.buf[0], true
}

func (m *MIDIByteSource) Close() {
	_ = m.port.Close()
}
