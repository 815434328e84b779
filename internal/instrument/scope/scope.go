// Package scope drives a Siglent SDS1000X-E class oscilloscope over its text protocol.
package scope

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/roman-kulish/frequency-response/internal/instrument"
)

var (
	// ErrBadResponse is returned when a query response cannot be parsed
	ErrBadResponse = errors.New("unexpected response")

	// ErrNoResult is returned when the oscilloscope has no value for a measurement ("****")
	ErrNoResult = errors.New("no measurement result")

	// ErrInvalidChannel is returned for channels outside 1..4
	ErrInvalidChannel = errors.New("invalid channel")

	// ErrOutOfRange is returned when a setting is outside what the instrument accepts
	ErrOutOfRange = errors.New("value out of range")
)

// Channel is an oscilloscope input, 1 to 4
type Channel int

const (
	CH1 Channel = iota + 1
	CH2
	CH3
	CH4
)

func (c Channel) String() string {
	return "C" + strconv.Itoa(int(c))
}

// Valid reports whether c names a physical input
func (c Channel) Valid() bool {
	return c >= CH1 && c <= CH4
}

type Coupling int

const (
	CouplingAC Coupling = iota
	CouplingDC
)

func (c Coupling) String() string {
	if c == CouplingDC {
		return "dc"
	}
	return "ac"
}

type Edge int

const (
	EdgeRising Edge = iota
	EdgeFalling
)

func (e Edge) String() string {
	if e == EdgeFalling {
		return "falling"
	}
	return "rising"
}

type TriggerMode int

const (
	TriggerAuto TriggerMode = iota
	TriggerNormal
	TriggerSingle
	TriggerStop
)

// Scale describes the vertical window of a channel as read back from the instrument
type Scale struct {
	VoltsPerDiv float64
	Offset      float64
	PeakToPeak  float64 // full screen height in volts
	Max         float64
	Min         float64
}

func newScale(vdiv, offset float64) Scale {
	pp := vdiv * VerticalDivisions
	return Scale{
		VoltsPerDiv: vdiv,
		Offset:      offset,
		PeakToPeak:  pp,
		Max:         pp/2 - offset,
		Min:         -pp/2 - offset,
	}
}

var (
	attnRe = regexp.MustCompile(`(?i)^C[1-4]:ATT[A-Z]* ([0-9.E+-]+)\s*$`)
	vdivRe = regexp.MustCompile(`(?i)^C[1-4]:V[A-Z_]+ ([+\-.0-9E]+)(?:V|A)\s*$`)
	ofstRe = regexp.MustCompile(`(?i)^C[1-4]:O[A-Z]+ ([+\-.0-9E]+)(?:V|A)\s*$`)
)

// WithLogger sets the logger for the oscilloscope
func WithLogger(logger *slog.Logger) func(*Scope) {
	return func(s *Scope) {
		s.logger = logger.With(slog.String("instrument", "oscilloscope"))
	}
}

// Scope translates channel, timebase, trigger and measurement intents into
// oscilloscope commands. It does not retry failed transactions.
type Scope struct {
	t      instrument.Transport
	logger *slog.Logger
}

// New creates an oscilloscope controller on top of t with a discard logger
func New(t instrument.Transport, options ...func(*Scope)) *Scope {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	s := Scope{
		t:      t,
		logger: logger,
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Attach connects to the oscilloscope and puts it in a known default state
func (s *Scope) Attach(addr string) error {
	if err := s.t.Attach(addr); err != nil {
		return fmt.Errorf("attaching oscilloscope: %w", err)
	}

	if err := s.Setup(); err != nil {
		_ = s.t.Detach()
		return fmt.Errorf("setting up oscilloscope: %w", err)
	}

	s.logger.Info("oscilloscope attached", slog.String("address", addr))
	return nil
}

func (s *Scope) Detach() error {
	return s.t.Detach()
}

// Identify returns the *IDN? string
func (s *Scope) Identify() (string, error) {
	resp, err := s.t.Query("*IDN?")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp), nil
}

// Setup resets acquisition, display and all four channels to defaults:
// 1 ms/div, 1 V/div, DC, 10x, full bandwidth, channels 3 and 4 hidden,
// rising edge trigger on CH1 at 0 V, auto trigger mode.
func (s *Scope) Setup() error {
	for _, cmd := range []string{
		"COMM_HEADER SHORT",
		"ACQUIRE_WAY SAMPLING",
		"MEMORY_SIZE 14M",
		"SINXX_SAMPLE ON",
		"XY_DISPLAY OFF",
		"DTJN OFF",
		"PESU OFF",
		"MENU OFF",
		"CRMS OFF",
		"HSMD OFF",
		"DCST OFF",
		"DI:SWITCH OFF",
		"MATH:TRACE OFF",
		"MEASURE_CLEAR",
		"REF_CLOSE",
	} {
		if err := s.t.Write(cmd); err != nil {
			return err
		}
	}

	zero := 0.0
	if err := s.SetTimebase(T1ms, &zero); err != nil {
		return err
	}

	vdiv := V1V
	coupling := CouplingDC
	atten := 10.0
	off := false
	for ch := CH1; ch <= CH4; ch++ {
		err := s.SetChannel(ch, ChannelSettings{
			Enabled:        ch <= CH2,
			VoltsPerDiv:    &vdiv,
			Offset:         &zero,
			Coupling:       &coupling,
			BandwidthLimit: &off,
			Attenuation:    &atten,
			Invert:         &off,
		})
		if err != nil {
			return err
		}
		if err = s.t.Write(ch.String() + ":UNIT V"); err != nil {
			return err
		}
		if err = s.SetSkew(ch, 0); err != nil {
			return err
		}
	}

	if err := s.SetEdgeTrigger(CH1, EdgeRising, 0, CouplingDC, nil); err != nil {
		return err
	}
	return s.SetTriggerMode(TriggerAuto)
}

func (s *Scope) write(ch Channel, format string, args ...any) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}
	return s.t.Write(ch.String() + ":" + fmt.Sprintf(format, args...))
}

func (s *Scope) queryFloat(cmd string, re *regexp.Regexp) (float64, error) {
	resp, err := s.t.Query(cmd)
	if err != nil {
		return 0, err
	}

	m := re.FindStringSubmatch(resp)
	if m == nil {
		return 0, fmt.Errorf("%w to %q: %q", ErrBadResponse, cmd, resp)
	}

	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w to %q: %w", ErrBadResponse, cmd, err)
	}
	return v, nil
}

// formatFloat renders values the way the instrument parser accepts them
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
