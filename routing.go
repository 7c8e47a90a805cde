package main

import "fmt"

// -------------------- Voices --------------------

const (
	VoiceKick = iota
	VoiceSnare
	VoiceHiTom
	VoiceClosedHat
	VoiceOpenHat
	NumVoices
)

var voiceNames = [NumVoices]string{"kick", "snare", "hi-tom", "closed-hat", "open-hat"}

// noVoice marks a pitch class with no drum assigned.
const noVoice = -1

// pitchClassVoice maps note % 12 to a voice. Each drum answers to a pair of
// adjacent pitch classes so a whole octave of any keyboard covers the kit;
// E (4) and B (11) are deliberately left silent.
var pitchClassVoice = [12]int{
	0:  VoiceClosedHat,
	1:  VoiceClosedHat,
	2:  VoiceOpenHat,
	3:  VoiceOpenHat,
	4:  noVoice,
	5:  VoiceKick,
	6:  VoiceKick,
	7:  VoiceSnare,
	8:  VoiceSnare,
	9:  VoiceHiTom,
	10: VoiceHiTom,
	11: noVoice,
}

// -------------------- Pitch helpers --------------------

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

func pitchName(pitch int) string {
	if pitch < 0 {
		return fmt.Sprintf("?\"%d\"", pitch)
	}
	return fmt.Sprintf("%s%d", noteNames[pitch%12], (pitch/12)-1)
}

// -------------------- NoteRouter --------------------

// NoteRouter turns completed MIDI messages into pulse triggers. Only
// note-on messages on the configured channel act; everything else,
// note-offs included, is inert, because pulses are fixed-length and
// self-terminating rather than gated by note release.
type NoteRouter struct {
	sched   *Scheduler
	channel uint8
}

func NewNoteRouter(sched *Scheduler, channel uint8) *NoteRouter {
	return &NoteRouter{sched: sched, channel: channel}
}

// Dispatch is the parser's EventHandler. There is no error path: an
// unmapped or filtered message simply does nothing.
func (r *NoteRouter) Dispatch(event EventType, channel uint8, args [2]byte) {
	if event != NoteOn || channel != r.channel {
		logger.Debug("router: message ignored", "event", event, "channel", channel)
		return
	}
	note := int(args[0])
	voice := pitchClassVoice[note%12]
	if voice == noVoice {
		logger.Debug("router: unmapped pitch class", "note", pitchName(note), "pitch_class", note%12)
		return
	}
	logger.Info("trigger", "voice", voiceNames[voice], "note", pitchName(note), "velocity", args[1])
	r.sched.Trig(voice)
}
