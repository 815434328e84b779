// Package generator drives a Rigol DG1000Z class two channel sine generator.
package generator

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/roman-kulish/frequency-response/internal/instrument"
)

var (
	// ErrInvalidChannel is returned for channels other than 1 and 2
	ErrInvalidChannel = errors.New("invalid generator channel")

	// ErrInvalidValue is returned for non finite settings
	ErrInvalidValue = errors.New("invalid value")
)

// Channel is a generator output, 1 or 2
type Channel int

const (
	CH1 Channel = iota + 1
	CH2
)

func (c Channel) String() string {
	return strconv.Itoa(int(c))
}

func (c Channel) Valid() bool {
	return c == CH1 || c == CH2
}

// Settings are applied together by SetChannel. Nil fields are left unchanged.
type Settings struct {
	Frequency *float64 // Hz
	Vpp       *float64 // peak to peak amplitude, V
	Offset    *float64 // DC offset, V
	Phase     *float64 // degrees
}

// WithLogger sets the logger for the generator
func WithLogger(logger *slog.Logger) func(*Generator) {
	return func(g *Generator) {
		g.logger = logger.With(slog.String("instrument", "generator"))
	}
}

// Generator translates stimulus intents into generator commands
type Generator struct {
	t      instrument.Transport
	logger *slog.Logger
}

// New creates a generator controller on top of t with a discard logger
func New(t instrument.Transport, options ...func(*Generator)) *Generator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	g := Generator{
		t:      t,
		logger: logger,
	}

	for _, option := range options {
		option(&g)
	}

	return &g
}

// Attach connects to the generator and loads the default sine setup on both channels
func (g *Generator) Attach(addr string) error {
	if err := g.t.Attach(addr); err != nil {
		return fmt.Errorf("attaching generator: %w", err)
	}

	if err := g.Setup(); err != nil {
		_ = g.t.Detach()
		return fmt.Errorf("setting up generator: %w", err)
	}

	g.logger.Info("generator attached", slog.String("address", addr))
	return nil
}

func (g *Generator) Detach() error {
	return g.t.Detach()
}

// Identify returns the *IDN? string
func (g *Generator) Identify() (string, error) {
	resp, err := g.t.Query("*IDN?")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp), nil
}

// Setup loads 1 kHz, 1 Vpp sines on both channels, channel 2 in quadrature
func (g *Generator) Setup() error {
	if err := g.t.Write(":SOUR1:APPL:SIN 1000,1,0,0"); err != nil {
		return err
	}
	return g.t.Write(":SOUR2:APPL:SIN 1000,1,0,90")
}

func (g *Generator) SetChannel(ch Channel, s Settings) error {
	if s.Frequency != nil {
		if err := g.SetFrequency(ch, *s.Frequency); err != nil {
			return err
		}
	}
	if s.Vpp != nil {
		if err := g.SetVpp(ch, *s.Vpp); err != nil {
			return err
		}
	}
	if s.Offset != nil {
		if err := g.SetOffset(ch, *s.Offset); err != nil {
			return err
		}
	}
	if s.Phase != nil {
		if err := g.SetPhase(ch, *s.Phase); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) SetFrequency(ch Channel, hz float64) error {
	if hz <= 0 {
		return fmt.Errorf("%w: frequency %g Hz", ErrInvalidValue, hz)
	}
	return g.source(ch, "FREQ", hz)
}

func (g *Generator) SetVpp(ch Channel, vpp float64) error {
	return g.source(ch, "VOLT", vpp)
}

func (g *Generator) SetOffset(ch Channel, offset float64) error {
	return g.source(ch, "VOLT:OFFS", offset)
}

// SetPhase sets the start phase, wrapped into [0, 360) degrees
func (g *Generator) SetPhase(ch Channel, degrees float64) error {
	return g.source(ch, "PHAS", WrapPhase(degrees))
}

// Align re-synchronises the phase of both outputs
func (g *Generator) Align(ch Channel) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}
	return g.t.Write(":SOUR" + ch.String() + ":PHAS:SYNC")
}

func (g *Generator) SetOutput(ch Channel, on bool) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}

	state := "OFF"
	if on {
		state = "ON"
	}
	return g.t.Write(":OUTP" + ch.String() + " " + state)
}

func (g *Generator) source(ch Channel, what string, v float64) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s %g", ErrInvalidValue, what, v)
	}
	return g.t.Write(":SOUR" + ch.String() + ":" + what + " " + strconv.FormatFloat(v, 'g', -1, 64))
}

// WrapPhase maps any angle in degrees into [0, 360)
func WrapPhase(degrees float64) float64 {
	wrapped := degrees - 360*math.Floor(degrees/360)
	if wrapped >= 360 {
		wrapped = 0
	}
	return wrapped
}
