// Package sim simulates a measurement bench: a two channel sine generator and a
// four channel oscilloscope wired around a device under test. Both instruments
// speak the same text protocol as the real ones, either in process or over TCP.
package sim

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/cmplx"
	"strings"
	"sync"
)

// BandwidthLimit is the corner of the scope input filter enabled by BWL ON
const BandwidthLimit = 20e6

// Source is what a scope channel is probing
type Source int

const (
	SourceNone Source = iota
	SourceStimulus
	SourceResponse
)

type genChannel struct {
	freq   float64
	vpp    float64
	offset float64
	phase  float64
	output bool
}

type scopeChannel struct {
	trace   bool
	vdiv    float64
	offset  float64
	atten   float64
	dc      bool
	bwl     bool
	invert  bool
	source  Source
	trigger float64
	falling bool
	skew    float64
}

// WithLogger sets the logger for the bench
func WithLogger(logger *slog.Logger) func(*Bench) {
	return func(b *Bench) {
		b.logger = logger.With(slog.String("bench", "sim"))
	}
}

// WithDUT sets the device under test
func WithDUT(d DUT) func(*Bench) {
	return func(b *Bench) {
		b.dut = d
	}
}

// WithStimulus selects the generator channel (1 or 2) feeding the device under test
func WithStimulus(ch int) func(*Bench) {
	return func(b *Bench) {
		if ch == 1 || ch == 2 {
			b.stimulus = ch - 1
		}
	}
}

// WithProbe connects scope channel ch (1..4) to src
func WithProbe(ch int, src Source) func(*Bench) {
	return func(b *Bench) {
		if ch >= 1 && ch <= 4 {
			b.scope[ch-1].source = src
		}
	}
}

// Bench holds the state of both simulated instruments. It is safe for concurrent use.
type Bench struct {
	mu sync.Mutex

	gen      [2]genChannel
	scope    [4]scopeChannel
	tdiv     float64
	delay    float64
	trigMode string

	dut      DUT
	stimulus int

	logger *slog.Logger
}

// NewBench creates a bench with a 10 kHz Butterworth low-pass under test, the
// stimulus on generator channel 1 probed by C1 and the response probed by C2.
func NewBench(options ...func(*Bench)) *Bench {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	b := Bench{
		tdiv:     1e-3,
		trigMode: "AUTO",
		dut:      Lowpass(10_000, 1/math.Sqrt2),
		logger:   logger,
	}
	for i := range b.gen {
		b.gen[i] = genChannel{freq: 1000, vpp: 1}
	}
	for i := range b.scope {
		b.scope[i] = scopeChannel{trace: i < 2, vdiv: 1, atten: 10}
	}
	b.scope[0].source = SourceStimulus
	b.scope[1].source = SourceResponse

	for _, option := range options {
		option(&b)
	}

	return &b
}

// signal is what a probe tip sees: a sine of pp volts peak to peak riding on dc,
// with phase in radians relative to the stimulus
type signal struct {
	pp    float64
	dc    float64
	phase float64
}

func (b *Bench) frequency() float64 {
	return b.gen[b.stimulus].freq
}

func (b *Bench) signalAt(ch int) signal {
	g := b.gen[b.stimulus]
	sc := b.scope[ch]
	if !g.output {
		return signal{}
	}

	var s signal
	switch sc.source {
	case SourceStimulus:
		s = signal{pp: g.vpp, dc: g.offset}
	case SourceResponse:
		h := b.dut.Response(g.freq)
		s = signal{pp: g.vpp * cmplx.Abs(h), dc: g.offset * real(b.dut.Response(0)), phase: cmplx.Phase(h)}
	default:
		return signal{}
	}

	if !sc.dc {
		s.dc = 0
	}
	if sc.bwl {
		// 20 MHz single pole
		h := 1 / complex(1, g.freq/BandwidthLimit)
		s.pp *= cmplx.Abs(h)
		s.phase += cmplx.Phase(h)
	}
	if sc.invert {
		s.dc = -s.dc
		s.phase += math.Pi
	}
	return s
}

// visible clips a signal to the screen window of channel ch
func (b *Bench) visible(ch int) (top, base float64, ok bool) {
	sc := b.scope[ch]
	s := b.signalAt(ch)
	if !sc.trace || s.pp <= 0 {
		return 0, 0, false
	}

	screen := sc.vdiv * 8
	hi := screen/2 - sc.offset
	lo := -screen/2 - sc.offset

	top = math.Min(s.dc+s.pp/2, hi)
	base = math.Max(s.dc-s.pp/2, lo)
	if top <= base {
		return 0, 0, false
	}
	return top, base, true
}

func (b *Bench) measure(ch int, param string) (float64, string, bool) {
	top, base, ok := b.visible(ch)
	if !ok {
		return 0, "", false
	}
	s := b.signalAt(ch)
	f := b.frequency()

	switch param {
	case "PKPK", "AMPL":
		return top - base, "V", true
	case "MAX", "TOP":
		return top, "V", true
	case "MIN", "BASE":
		return base, "V", true
	case "MEAN", "CMEAN":
		return s.dc, "V", true
	case "RMS":
		a := (top - base) / 2
		return math.Sqrt(s.dc*s.dc + a*a/2), "V", true
	case "CRMS":
		return (top - base) / 2 / math.Sqrt2, "V", true
	case "FREQ":
		return f, "Hz", true
	case "PER":
		return 1 / f, "S", true
	case "DUTY", "NDUTY":
		return 50, "%", true
	default:
		return 0, "", false
	}
}

func (b *Bench) measureDelay(ch1, ch2 int, param string) (float64, string, bool) {
	if _, _, ok := b.visible(ch1); !ok {
		return 0, "", false
	}
	if _, _, ok := b.visible(ch2); !ok {
		return 0, "", false
	}

	diff := b.signalAt(ch2).phase - b.signalAt(ch1).phase
	diff = math.Remainder(diff, 2*math.Pi) // [-pi, pi]

	switch param {
	case "PHA":
		return diff * 180 / math.Pi, "degree", true
	case "FRR", "FFF", "FRF", "FFR", "LRR", "LRF", "LFR", "LFF", "SKEW":
		f := b.frequency()
		period := 1 / f
		delay := -diff / (2 * math.Pi * f)
		if delay < 0 {
			delay += period
		}
		switch param {
		case "FRF", "FFR":
			delay = math.Mod(delay+period/2, period)
		}
		return delay, "S", true
	default:
		return 0, "", false
	}
}

func formatValue(v float64, unit string) string {
	return fmt.Sprintf("%.6E%s", v, unit)
}

func (b *Bench) logUnknown(kind Kind, cmd string) {
	b.logger.Debug("ignoring command", slog.String("instrument", kind.String()), slog.String("cmd", strings.TrimSpace(cmd)))
}
