package response

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/roman-kulish/frequency-response/internal/instrument/generator"
	"github.com/roman-kulish/frequency-response/internal/instrument/scope"
)

type SweepMode int

const (
	SweepLog SweepMode = iota
	SweepLinear
)

func (m SweepMode) String() string {
	switch m {
	case SweepLog:
		return "log"
	case SweepLinear:
		return "linear"
	}
	return fmt.Sprintf("SweepMode(%d)", int(m))
}

// ParseSweepMode accepts "log" and "linear" (or "lin")
func ParseSweepMode(s string) (SweepMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "log", "":
		return SweepLog, nil
	case "linear", "lin":
		return SweepLinear, nil
	}
	return 0, fmt.Errorf("unknown sweep mode %q", s)
}

// VoltageType is the amplitude convention used for stimulus and readings
type VoltageType int

const (
	VoltagePeakToPeak VoltageType = iota
	VoltagePeak
)

func (v VoltageType) String() string {
	if v == VoltagePeak {
		return "Vpk"
	}
	return "Vpp"
}

func ParseVoltageType(s string) (VoltageType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vpp", "":
		return VoltagePeakToPeak, nil
	case "vpk", "vp":
		return VoltagePeak, nil
	}
	return 0, fmt.Errorf("unknown voltage type %q", s)
}

// factor converts an AMPL reading into this convention
func (v VoltageType) factor() float64 {
	if v == VoltagePeak {
		return 0.5
	}
	return 1
}

// TimeMetric selects whether the time column of a record is a phase or a delay
type TimeMetric int

const (
	MetricPhase TimeMetric = iota
	MetricDelay
)

func (m TimeMetric) String() string {
	if m == MetricDelay {
		return "delay"
	}
	return "phase"
}

// Unit is the unit of the time column
func (m TimeMetric) Unit() string {
	if m == MetricDelay {
		return "s"
	}
	return "deg"
}

func ParseTimeMetric(s string) (TimeMetric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "phase", "":
		return MetricPhase, nil
	case "delay":
		return MetricDelay, nil
	}
	return 0, fmt.Errorf("unknown time metric %q", s)
}

const (
	// TriggerInput resolves to the input channel during Init
	TriggerInput scope.Channel = -1

	// TriggerOutput resolves to the output channel during Init
	TriggerOutput scope.Channel = -2
)

// SweepConfig describes the frequencies visited. Points is points per decade for
// a log sweep and the total number of points for a linear one.
type SweepConfig struct {
	Start  float64
	Stop   float64
	Mode   SweepMode
	Points int
}

func (c SweepConfig) Validate() error {
	if !finite(c.Start) || !finite(c.Stop) || c.Start <= 0 || c.Stop <= 0 {
		return fmt.Errorf("%w: start %g Hz, stop %g Hz", ErrInvalidFrequency, c.Start, c.Stop)
	}
	if c.Stop <= c.Start {
		return fmt.Errorf("%w: stop %g Hz is not above start %g Hz", ErrInvalidFrequency, c.Stop, c.Start)
	}

	switch c.Mode {
	case SweepLog:
		if c.Points < 1 {
			return fmt.Errorf("%w: %d points per decade", ErrInvalidFrequency, c.Points)
		}
	case SweepLinear:
		if c.Points < 2 {
			return fmt.Errorf("%w: %d points in a linear sweep", ErrInvalidFrequency, c.Points)
		}
	}
	return nil
}

type StimulusConfig struct {
	Channel       generator.Channel
	Amplitude     float64
	AmplitudeType VoltageType
	Offset        float64
}

func (c StimulusConfig) Validate() error {
	if !c.Channel.Valid() {
		return fmt.Errorf("%w: generator channel %d", ErrInvalidStimulus, c.Channel)
	}
	if !finite(c.Amplitude) || c.Amplitude <= 0 {
		return fmt.Errorf("%w: amplitude %g", ErrInvalidStimulus, c.Amplitude)
	}
	if !finite(c.Offset) {
		return fmt.Errorf("%w: offset %g", ErrInvalidStimulus, c.Offset)
	}
	return nil
}

// Vpp returns the amplitude as peak to peak volts
func (c StimulusConfig) Vpp() float64 {
	if c.AmplitudeType == VoltagePeak {
		return 2 * c.Amplitude
	}
	return c.Amplitude
}

type ChannelConfig struct {
	Channel        scope.Channel
	Coupling       scope.Coupling
	Attenuation    float64
	BandwidthLimit bool
}

func (c ChannelConfig) Validate() error {
	if !c.Channel.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, c.Channel)
	}
	if c.Attenuation != 1 && c.Attenuation != 10 {
		return fmt.Errorf("%w: %s attenuation %gx", ErrInvalidChannel, c.Channel, c.Attenuation)
	}
	return nil
}

// TriggerConfig sets up an edge trigger. Level is referenced to a 1x probe.
type TriggerConfig struct {
	Channel  scope.Channel
	Edge     scope.Edge
	Coupling scope.Coupling
	Level    float64
}

func (c TriggerConfig) Validate() error {
	if !finite(c.Level) {
		return fmt.Errorf("%w: level %g", ErrInvalidTrigger, c.Level)
	}
	if c.Channel != TriggerInput && c.Channel != TriggerOutput && !c.Channel.Valid() {
		return fmt.Errorf("%w: channel %d", ErrInvalidTrigger, c.Channel)
	}
	return nil
}

type MeasurementConfig struct {
	Voltage VoltageType
	Time    TimeMetric
}

// DwellConfig sets the settle time after retuning: StableScreens captures, but never less than MinDwell
type DwellConfig struct {
	StableScreens float64
	MinDwell      time.Duration
}

var (
	DwellFast = DwellConfig{StableScreens: 1.5, MinDwell: 250 * time.Millisecond}
	DwellMid  = DwellConfig{StableScreens: 2.0, MinDwell: 500 * time.Millisecond}
	DwellSlow = DwellConfig{StableScreens: 2.5, MinDwell: time.Second}
)

// ParseDwell returns a named preset: fast, mid or slow
func ParseDwell(s string) (DwellConfig, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast":
		return DwellFast, nil
	case "mid", "":
		return DwellMid, nil
	case "slow":
		return DwellSlow, nil
	}
	return DwellConfig{}, fmt.Errorf("unknown dwell preset %q", s)
}

// For returns the settle time after retuning to a capture window of capture seconds
func (c DwellConfig) For(capture float64) time.Duration {
	d := time.Duration(c.StableScreens * capture * float64(time.Second))
	return max(d, c.MinDwell)
}

// Config is everything Init needs besides the instrument addresses
type Config struct {
	Sweep       SweepConfig
	Stimulus    StimulusConfig
	Input       ChannelConfig
	Output      ChannelConfig
	Trigger     TriggerConfig
	Measurement MeasurementConfig
	Dwell       DwellConfig
}

// Validate checks frequency, then stimulus, then trigger, then channels and
// returns the first problem found.
func (c Config) Validate() error {
	if err := c.Sweep.Validate(); err != nil {
		return err
	}
	if err := c.Stimulus.Validate(); err != nil {
		return err
	}
	if err := c.Trigger.Validate(); err != nil {
		return err
	}
	if err := c.Input.Validate(); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if c.Input.Channel == c.Output.Channel {
		return fmt.Errorf("%w: input and output both on %s", ErrInvalidChannel, c.Input.Channel)
	}
	return nil
}

// Addresses are the host:port of both instruments
type Addresses struct {
	Scope     string
	Generator string
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
