package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// -------------------- Logger --------------------

// logger is the package-wide structured logger. Safe to use before initLogger
// is called; defaults to slog.Default().
var logger = slog.Default()

// initLogger configures the shared slog logger and calls slog.SetDefault so
// the stdlib log package also routes through the same handler.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug, // include file:line in debug mode
	})
	logger = slog.New(h)
	slog.SetDefault(logger) // stdlib log.* now routes through slog
}

// -------------------- Tunables --------------------

// TickPeriodUS is the pulse scheduler period. Every pulse duration is
// quantized to this grid.
const TickPeriodUS = 50

// MIDIReadTimeoutMS bounds each poll of the DIN serial receiver.
const MIDIReadTimeoutMS = 50

// voiceDurationUS is how long each voice's trigger output stays driven,
// fixed at startup. Matched to what each analog voice circuit expects on
// its trigger input.
var voiceDurationUS = [NumVoices]int{
	VoiceKick:      500,
	VoiceSnare:     500,
	VoiceHiTom:     250,
	VoiceClosedHat: 8000,
	VoiceOpenHat:   250,
}

// -------------------- Main --------------------

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (adds source location)")
	serialDev := flag.String("serial", "/dev/ttyACM0", "drive-board serial port")
	baud := flag.Int("baud", 500000, "drive-board baud rate")
	midiDev := flag.String("midi-serial", "", "DIN MIDI serial input device (empty: watch system MIDI ports)")
	midiChan := flag.Int("midi-channel", 0, "MIDI channel to respond to (0-15)")
	flag.Parse()

	initLogger(*debug)
	logger.Info("midi-trigger starting",
		"serial", *serialDev,
		"baud", *baud,
		"midi_serial", *midiDev,
		"midi_channel", *midiChan,
		"debug", *debug,
		"tick_us", TickPeriodUS,
		"voices", NumVoices,
	)

	sp := OpenSerial(*serialDev, *baud)
	defer sp.Close()

	tick := TickPeriodUS * time.Microsecond
	bank := NewPinBank(sp)
	channels := make([]*PulseChannel, NumVoices)
	for i := range channels {
		d := time.Duration(voiceDurationUS[i]) * time.Microsecond
		channels[i] = NewPulseChannel(voiceNames[i], bank.Pin(i), d, tick)
		logger.Debug("voice configured", "voice", channels[i].name, "duration_us", voiceDurationUS[i], "ticks", channels[i].total)
	}
	sched := NewScheduler(channels...)
	sched.Begin()

	// Drive-board writes happen on their own goroutine so a slow serial
	// port can never stall the timer context.
	stopSend := make(chan struct{})
	go bank.Run(stopSend)

	// Timer context: one goroutine ticking every channel once per period.
	stopTick := make(chan struct{})
	go sched.Run(tick, stopTick)

	router := NewNoteRouter(sched, uint8(*midiChan))
	parser := NewParser(router.Dispatch)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	if *midiDev != "" {
		runSerialInput(*midiDev, parser, sig)
	} else {
		runWatcherInput(parser, sched, sig)
	}

	// All outputs back to high-impedance before the process goes away.
	close(stopTick)
	sched.ReleaseAll()
	bank.Flush()
	close(stopSend)
	logger.Info("shutdown complete, all triggers released")
}

// runSerialInput is the poll loop over a raw DIN MIDI receiver: one
// bounded read per iteration, each byte straight into the parser.
func runSerialInput(dev string, parser *Parser, sig <-chan os.Signal) {
	src, err := OpenMIDISource(dev, MIDIReadTimeoutMS*time.Millisecond)
	if err != nil {
		logger.Error("failed to open MIDI serial input", "device", dev, "err", err)
		os.Exit(1)
	}
	defer src.Close()

	logger.Info("running – polling DIN MIDI input", "device", dev)
	for {
		select {
		case s := <-sig:
			logger.Info("signal received", "signal", s.String())
			return
		default:
		}
		if b, ok := src.ReadByte(); ok {
			parser.HandleByte(b)
		}
	}
}

// runWatcherInput connects to a system MIDI port via the hot-plug watcher
// and replays every message's raw bytes through the parser.
func runWatcherInput(parser *Parser, sched *Scheduler, sig <-chan os.Signal) {
	onBytes := func(data []byte) {
		for _, b := range data {
			parser.HandleByte(b)
		}
	}
	onDisconnect := func() {
		logger.Warn("midi: disconnect – releasing all triggers")
		sched.ReleaseAll()
	}

	watcher, err := NewMIDIWatcher(onBytes, onDisconnect)
	if err != nil {
		logger.Error("midi watcher init failed", "err", err)
		os.Exit(1)
	}
	defer watcher.Close()

	logger.Info("running – waiting for MIDI device")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case s := <-sig:
			logger.Info("signal received", "signal", s.String())
			return
		case <-ticker.C:
			watcher.Tick()
		}
	}
}
