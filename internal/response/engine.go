// Package response measures the frequency response of a circuit by sweeping a
// sine stimulus and reading the input and output of the circuit on an oscilloscope.
package response

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/algo-dsp/dsp/core"

	"github.com/roman-kulish/frequency-response/internal/instrument"
	"github.com/roman-kulish/frequency-response/internal/instrument/generator"
	"github.com/roman-kulish/frequency-response/internal/instrument/scope"
)

const (
	// MeasurementCycles is the number of stimulus periods captured on screen
	MeasurementCycles = 4

	// FrequencyFudge absorbs rounding when testing the last frequency against stop
	FrequencyFudge = 1.001
)

// Oscilloscope is the part of scope.Scope the engine drives
type Oscilloscope interface {
	Attach(addr string) error
	Detach() error
	SetChannelEnable(ch scope.Channel, enabled bool) error
	SetAttenuation(ch scope.Channel, atten float64) error
	SetVoltsExact(ch scope.Channel, vdiv float64, offset *float64) error
	SetCoupling(ch scope.Channel, c scope.Coupling) error
	SetBandwidthLimit(ch scope.Channel, limited bool) error
	SetTriggerMode(mode scope.TriggerMode) error
	SetEdgeTrigger(ch scope.Channel, edge scope.Edge, level float64, coupling scope.Coupling, holdoff *time.Duration) error
	SetTimebaseFor(capture float64) (float64, error)
	AdjustVolts(ch scope.Channel, steps int) (int, scope.Scale, error)
	Measure(ch scope.Channel, p scope.Param) (float64, error)
	MeasureDelay(ch1, ch2 scope.Channel, p scope.DelayParam) (float64, error)
}

// Generator is the part of generator.Generator the engine drives
type Generator interface {
	Attach(addr string) error
	Detach() error
	SetChannel(ch generator.Channel, s generator.Settings) error
	SetFrequency(ch generator.Channel, hz float64) error
	SetOutput(ch generator.Channel, on bool) error
}

// Dialer returns fresh transports for the oscilloscope and the generator
type Dialer func() (sc, gen instrument.Transport)

// TCPDialer dials both instruments over TCP
func TCPDialer(options ...func(*instrument.TCPTransport)) Dialer {
	return func() (instrument.Transport, instrument.Transport) {
		return instrument.NewTCPTransport(options...), instrument.NewTCPTransport(options...)
	}
}

type State int

const (
	StateUninitialized State = iota
	StateIdle
	StateSweeping
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateIdle:
		return "idle"
	case StateSweeping:
		return "sweeping"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// WithLogger sets the logger for the engine and the instruments it creates
func WithLogger(logger *slog.Logger) func(*Engine) {
	return func(e *Engine) {
		e.logger = logger.With(slog.String("component", "response"))
	}
}

// WithDialer sets how the engine obtains instrument transports
func WithDialer(dial Dialer) func(*Engine) {
	return func(e *Engine) {
		e.dial = dial
	}
}

// WithInstruments makes the engine drive the given controllers instead of dialing its own
func WithInstruments(o Oscilloscope, g Generator) func(*Engine) {
	return func(e *Engine) {
		e.scope = o
		e.gen = g
	}
}

// WithSleep replaces time.Sleep for the settle delay
func WithSleep(sleep func(time.Duration)) func(*Engine) {
	return func(e *Engine) {
		e.sleep = sleep
	}
}

// WithAmplitudeParam selects the scope parameter read as the channel amplitude, AMPL by default
func WithAmplitudeParam(p scope.Param) func(*Engine) {
	return func(e *Engine) {
		e.amplitude = p
	}
}

// Engine runs a frequency sweep. It is not safe for concurrent use and owns
// both instruments while initialized.
type Engine struct {
	dial      Dialer
	scope     Oscilloscope
	gen       Generator
	sleep     func(time.Duration)
	amplitude scope.Param
	logger    *slog.Logger

	state   State
	cfg     Config
	trigger scope.Channel
	freq    float64
	scales  [2]scope.Scale // input, output
	series  Series
}

func NewEngine(options ...func(*Engine)) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	e := Engine{
		dial:      TCPDialer(),
		sleep:     time.Sleep,
		amplitude: scope.ParamAMPL,
		logger:    logger,
	}

	for _, option := range options {
		option(&e)
	}

	if e.scope == nil || e.gen == nil {
		st, gt := e.dial()
		e.scope = scope.New(st, scope.WithLogger(e.logger))
		e.gen = generator.New(gt, generator.WithLogger(e.logger))
	}

	return &e
}

// State returns where the engine is in its lifecycle
func (e *Engine) State() State {
	return e.state
}

// Frequency returns the frequency the next Step measures at
func (e *Engine) Frequency() float64 {
	return e.freq
}

// Series returns a copy of the records measured so far
func (e *Engine) Series() *Series {
	return e.series.Clone()
}

// Init validates cfg, binds both instruments and configures them for the sweep.
// Nothing is sent to an instrument unless cfg is valid. The generator is bound
// first; when the oscilloscope cannot be bound the generator is released again.
func (e *Engine) Init(addrs Addresses, cfg Config) error {
	if e.state != StateUninitialized {
		return ErrAlreadyInitialized
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	trigger := cfg.Trigger.Channel
	switch trigger {
	case TriggerInput:
		trigger = cfg.Input.Channel
	case TriggerOutput:
		trigger = cfg.Output.Channel
	}

	if err := e.gen.Attach(addrs.Generator); err != nil {
		return fmt.Errorf("%w: %w", ErrStimulusUnreachable, err)
	}
	if err := e.configureGenerator(cfg); err != nil {
		_ = e.gen.Detach()
		return fmt.Errorf("%w: %w", ErrStimulusUnreachable, err)
	}

	if err := e.scope.Attach(addrs.Scope); err != nil {
		_ = e.gen.Detach()
		return fmt.Errorf("%w: %w", ErrScopeUnreachable, err)
	}
	if err := e.configureScope(cfg, trigger); err != nil {
		_ = e.scope.Detach()
		_ = e.gen.Detach()
		return fmt.Errorf("%w: %w", ErrScopeUnreachable, err)
	}

	e.cfg = cfg
	e.trigger = trigger

	if err := e.readScales(); err != nil {
		_ = e.scope.Detach()
		_ = e.gen.Detach()
		return fmt.Errorf("%w: %w", ErrScopeUnreachable, err)
	}

	e.freq = cfg.Sweep.Start
	e.series.Reset()
	e.state = StateIdle

	e.logger.Info("sweep initialized",
		slog.Float64("start", cfg.Sweep.Start),
		slog.Float64("stop", cfg.Sweep.Stop),
		slog.String("mode", cfg.Sweep.Mode.String()),
		slog.Int("points", cfg.Sweep.Points),
		slog.String("trigger", trigger.String()))

	// the first reading after reconfiguring is unreliable
	if _, err := e.measureAt(cfg.Sweep.Start); err != nil {
		e.logger.Warn("throwaway measurement failed", slog.Any("error", err))

		if err = e.readScales(); err != nil {
			e.logger.Warn("reading scales failed", slog.Any("error", err))
		}
	}

	return nil
}

func (e *Engine) configureGenerator(cfg Config) error {
	ch := cfg.Stimulus.Channel
	vpp := cfg.Stimulus.Vpp()
	phase := 0.0

	err := e.gen.SetChannel(ch, generator.Settings{
		Frequency: &cfg.Sweep.Start,
		Vpp:       &vpp,
		Offset:    &cfg.Stimulus.Offset,
		Phase:     &phase,
	})
	if err != nil {
		return fmt.Errorf("configuring stimulus: %w", err)
	}

	if err = e.gen.SetOutput(ch, true); err != nil {
		return fmt.Errorf("enabling stimulus output: %w", err)
	}
	return nil
}

func (e *Engine) configureScope(cfg Config, trigger scope.Channel) error {
	zero := 0.0

	for _, c := range []ChannelConfig{cfg.Input, cfg.Output} {
		if err := e.scope.SetChannelEnable(c.Channel, true); err != nil {
			return fmt.Errorf("enabling %s: %w", c.Channel, err)
		}
		if err := e.scope.SetAttenuation(c.Channel, c.Attenuation); err != nil {
			return fmt.Errorf("setting %s attenuation: %w", c.Channel, err)
		}
		if err := e.scope.SetVoltsExact(c.Channel, 1.0, &zero); err != nil {
			return fmt.Errorf("setting %s volts/div: %w", c.Channel, err)
		}
		if err := e.scope.SetCoupling(c.Channel, c.Coupling); err != nil {
			return fmt.Errorf("setting %s coupling: %w", c.Channel, err)
		}
		if err := e.scope.SetBandwidthLimit(c.Channel, c.BandwidthLimit); err != nil {
			return fmt.Errorf("setting %s bandwidth limit: %w", c.Channel, err)
		}
	}

	if err := e.scope.SetTriggerMode(scope.TriggerAuto); err != nil {
		return fmt.Errorf("setting trigger mode: %w", err)
	}
	if err := e.scope.SetEdgeTrigger(trigger, cfg.Trigger.Edge, cfg.Trigger.Level, cfg.Trigger.Coupling, nil); err != nil {
		return fmt.Errorf("setting edge trigger: %w", err)
	}
	return nil
}

// Step measures at the current frequency, records the result and moves to the
// next frequency. It reports true on the call that finishes the sweep. A failed
// measurement records nothing and leaves the frequency unchanged, so Step may
// be retried.
func (e *Engine) Step() (Record, bool, error) {
	switch e.state {
	case StateUninitialized:
		return Record{}, false, ErrNotInitialized
	case StateCompleted:
		return Record{}, false, ErrAlreadyComplete
	}

	// a failed autoscale may have changed V/div without reading it back
	if e.state == StateFailed {
		if err := e.readScales(); err != nil {
			return Record{}, false, fmt.Errorf("%w: at %g Hz: %w", ErrInstrumentIO, e.freq, err)
		}
	}

	e.state = StateSweeping

	rec, err := e.measureAt(e.freq)
	if err != nil {
		e.state = StateFailed
		return Record{}, false, fmt.Errorf("%w: at %g Hz: %w", ErrInstrumentIO, e.freq, err)
	}
	e.series.Append(rec)

	if e.advance() {
		e.state = StateCompleted
		e.logger.Info("sweep complete", slog.Int("records", e.series.Len()))
		return rec, true, nil
	}
	return rec, false, nil
}

// readScales reads back the current scale of the input and output channels
func (e *Engine) readScales() error {
	for i, ch := range []scope.Channel{e.cfg.Input.Channel, e.cfg.Output.Channel} {
		_, scale, err := e.scope.AdjustVolts(ch, 0)
		if err != nil {
			return fmt.Errorf("reading %s scale: %w", ch, err)
		}
		e.scales[i] = scale
	}
	return nil
}

// advance moves to the next frequency and reports whether the sweep is done
func (e *Engine) advance() bool {
	sw := e.cfg.Sweep

	switch sw.Mode {
	case SweepLog:
		e.freq *= math.Pow(10, 1/float64(sw.Points))
	case SweepLinear:
		e.freq += (sw.Stop - sw.Start) / float64(sw.Points-1)
	default:
		return true
	}
	return e.freq > sw.Stop*FrequencyFudge
}

// RunFull restarts the sweep at the start frequency, discarding earlier
// records, and steps until it completes, fails or ctx is done. ctx is only
// checked between steps.
func (e *Engine) RunFull(ctx context.Context) error {
	if e.state == StateUninitialized {
		return ErrNotInitialized
	}

	e.freq = e.cfg.Sweep.Start
	e.series.Reset()
	e.state = StateIdle

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sweep interrupted at %g Hz: %w", e.freq, err)
		}

		_, done, err := e.Step()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// Close releases both instruments and forgets the sweep. Closing an engine
// that is not initialized does nothing.
func (e *Engine) Close() error {
	if e.state == StateUninitialized {
		return nil
	}

	err := errors.Join(e.scope.Detach(), e.gen.Detach())

	e.series.Reset()
	e.cfg = Config{}
	e.trigger = 0
	e.freq = 0
	e.scales = [2]scope.Scale{}
	e.state = StateUninitialized

	if err != nil {
		return fmt.Errorf("detaching instruments: %w", err)
	}
	return nil
}

// measureAt retunes to f, lets the circuit settle, autoscales both channels and
// takes the gain and phase or delay reading
func (e *Engine) measureAt(f float64) (Record, error) {
	capture, err := e.scope.SetTimebaseFor(MeasurementCycles / f)
	if err != nil {
		return Record{}, fmt.Errorf("setting timebase: %w", err)
	}

	if err = e.gen.SetFrequency(e.cfg.Stimulus.Channel, f); err != nil {
		return Record{}, fmt.Errorf("setting stimulus frequency: %w", err)
	}

	if dwell := e.cfg.Dwell.For(capture); dwell > 0 {
		e.sleep(dwell)
	}

	in, out, err := e.autoscale()
	if err != nil {
		return Record{}, err
	}

	param := e.delayParam()
	t, err := e.scope.MeasureDelay(e.cfg.Input.Channel, e.cfg.Output.Channel, param)
	if err != nil {
		return Record{}, fmt.Errorf("measuring %s: %w", param, err)
	}

	factor := e.cfg.Measurement.Voltage.factor()
	in *= factor
	out *= factor

	rec := Record{
		Frequency: f,
		Input:     in,
		Output:    out,
		GainDB:    core.LinearToDB(math.Abs(out / in)),
		Time:      t,
		Unit:      e.cfg.Measurement.Time,
	}

	e.logger.Debug("measured",
		slog.Float64("frequency", rec.Frequency),
		slog.Float64("input", rec.Input),
		slog.Float64("output", rec.Output),
		slog.Float64("gain_db", rec.GainDB),
		slog.Float64(rec.Unit.String(), rec.Time))

	return rec, nil
}

func (e *Engine) delayParam() scope.DelayParam {
	if e.cfg.Measurement.Time == MetricPhase {
		return scope.DelayPHA
	}
	if e.cfg.Trigger.Edge == scope.EdgeFalling {
		return scope.DelayFFF
	}
	return scope.DelayFRR
}
