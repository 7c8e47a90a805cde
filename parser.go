package main

// -------------------- MIDI event model --------------------

// EventType identifies a MIDI channel-voice message. The values follow the
// status-byte type nibble order so decoding is a shift, not a table.
type EventType byte

const (
	NoteOff EventType = iota
	NoteOn
	PolyAftertouch
	ControlChange
	ProgramChange
	Aftertouch
	PitchBend
	UnknownEvent
)

func (e EventType) String() string {
	switch e {
	case NoteOff:
		return "note-off"
	case NoteOn:
		return "note-on"
	case PolyAftertouch:
		return "poly-aftertouch"
	case ControlChange:
		return "control-change"
	case ProgramChange:
		return "program-change"
	case Aftertouch:
		return "aftertouch"
	case PitchBend:
		return "pitch-bend"
	}
	return "unknown"
}

// argCount is the number of data bytes each message type carries.
// Program Change and Channel Aftertouch take one; the rest take two.
func (e EventType) argCount() int {
	switch e {
	case ProgramChange, Aftertouch:
		return 1
	case NoteOff, NoteOn, PolyAftertouch, ControlChange, PitchBend:
		return 2
	}
	return 0
}

// -------------------- Parser --------------------

// EventHandler receives one completed message per call. args holds
// argCount() meaningful bytes; the rest is zero.
type EventHandler func(event EventType, channel uint8, args [2]byte)

// Parser reconstructs MIDI messages from an unframed serial byte stream,
// one byte at a time. It never reports an error: a glitchy live stream is
// resynchronized by discarding whatever cannot be interpreted, because a
// dropped byte must not stall drum triggering.
//
// Owned by a single goroutine; feed it from one context only.
type Parser struct {
	event    EventType
	channel  uint8
	args     [2]byte
	argCount int
	handler  EventHandler
}

// NewParser returns a parser that delivers completed messages to handler.
func NewParser(handler EventHandler) *Parser {
	if handler == nil {
		handler = func(EventType, uint8, [2]byte) {}
	}
	return &Parser{event: UnknownEvent, handler: handler}
}

// HandleByte consumes one byte from the stream and dispatches at most one
// completed message.
//
// A status byte (high bit set) always begins a new message, even mid-way
// through a previous one; the partial message is silently dropped so the
// parser re-locks onto the stream. A data byte with no active message is a
// stray and is dropped the same way.
func (p *Parser) HandleByte(b byte) {
	if b&0x80 != 0 {
		if p.event != UnknownEvent && p.argCount < p.event.argCount() {
			logger.Debug("midi parse: partial message discarded", "event", p.event, "args_had", p.argCount)
		}
		p.event = decodeStatus(b)
		p.channel = b & 0x0F
		p.argCount = 0
		p.args = [2]byte{}
		if p.event == UnknownEvent {
			logger.Debug("midi parse: unsupported status ignored", "status", b)
		}
		p.checkComplete()
		return
	}

	if p.event == UnknownEvent {
		logger.Debug("midi parse: stray data byte discarded", "byte", b)
		return
	}
	if p.argCount < len(p.args) {
		p.args[p.argCount] = b
	}
	p.argCount++
	p.checkComplete()
}

// decodeStatus maps the type nibble of a status byte to an EventType.
// System messages (0xF0 and up) carry no channel and variable payloads;
// they decode to UnknownEvent so their data bytes fall through harmlessly.
func decodeStatus(b byte) EventType {
	e := EventType((b & 0x70) >> 4)
	if e > PitchBend {
		return UnknownEvent
	}
	return e
}

func (p *Parser) checkComplete() {
	if p.event == UnknownEvent {
		return
	}
	if p.argCount != p.event.argCount() {
		return
	}
	event, channel, args := p.event, p.channel, p.args
	// Reset before dispatching: each message is delimited strictly, so a
	// following data byte needs a fresh status byte first.
	p.event = UnknownEvent
	p.argCount = 0
	p.handler(event, channel, args)
}
