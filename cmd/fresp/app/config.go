package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/frequency-response/internal/instrument/generator"
	"github.com/roman-kulish/frequency-response/internal/instrument/scope"
	"github.com/roman-kulish/frequency-response/internal/response"
)

const (
	DefaultScopeAddress     = "192.168.0.197:5025"
	DefaultGeneratorAddress = "192.168.0.198:5555"
	DefaultTimeout          = 5 * time.Second
)

var validUnits = map[string]struct{}{
	"":   {},
	"Hz": {},
	"V":  {},
	"s":  {},
}

// Quantity is a number that may carry an SI prefix and unit, e.g. 10k, 100kHz or 200mV
type Quantity float64

func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return Quantity(v), nil
	}

	v, unit, err := humanize.ParseSI(s)
	if err != nil {
		return 0, fmt.Errorf("app.Quantity: failed to parse %q: %w", s, err)
	}
	if _, ok := validUnits[unit]; !ok {
		return 0, fmt.Errorf("app.Quantity: unknown unit %q in %q", unit, s)
	}
	return Quantity(v), nil
}

func (q *Quantity) UnmarshalYAML(value *yaml.Node) error {
	v, err := ParseQuantity(value.Value)
	if err != nil {
		return err
	}

	*q = v
	return nil
}

func (q Quantity) MarshalYAML() (interface{}, error) {
	return q.String(), nil
}

func (q Quantity) String() string {
	return humanize.SIWithDigits(float64(q), 3, "")
}

// Duration is a time.Duration written as a Go duration string, e.g. 5s
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config represents the sweep configuration file
type Config struct {
	Settings    Settings          `yaml:"settings" json:"settings"`
	Instruments InstrumentsConfig `yaml:"instruments" json:"instruments"`
	Sweep       SweepConfig       `yaml:"sweep" json:"sweep"`
	Stimulus    StimulusConfig    `yaml:"stimulus" json:"stimulus"`
	Input       ChannelConfig     `yaml:"input" json:"input"`
	Output      ChannelConfig     `yaml:"output" json:"output"`
	Trigger     TriggerConfig     `yaml:"trigger" json:"trigger"`
	Measurement MeasurementConfig `yaml:"measurement" json:"measurement"`
	Dwell       string            `yaml:"dwell" json:"dwell"`
	Report      ReportConfig      `yaml:"report" json:"report"`
	Storage     StorageConfig     `yaml:"storage" json:"storage"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel" json:"logLevel"`
}

// InstrumentsConfig replaces a registry of instrument addresses
type InstrumentsConfig struct {
	Oscilloscope string   `yaml:"oscilloscope" json:"oscilloscope"`
	Generator    string   `yaml:"generator" json:"generator"`
	Timeout      Duration `yaml:"timeout" json:"timeout"`
}

type SweepConfig struct {
	Start  Quantity `yaml:"start" json:"start"`
	Stop   Quantity `yaml:"stop" json:"stop"`
	Mode   string   `yaml:"mode" json:"mode"`
	Points int      `yaml:"points" json:"points"` // per decade for log sweeps
}

type StimulusConfig struct {
	Channel   string   `yaml:"channel" json:"channel"` // 1, 2, S1 or S2
	Amplitude Quantity `yaml:"amplitude" json:"amplitude"`
	Type      string   `yaml:"type" json:"type"` // Vpp or Vpk
	Offset    Quantity `yaml:"offset" json:"offset"`
}

type ChannelConfig struct {
	Channel        string `yaml:"channel" json:"channel"` // 1-4, C1-C4 or CH1-CH4
	Coupling       string `yaml:"coupling" json:"coupling"`
	Probe          int    `yaml:"probe" json:"probe"` // 1 or 10
	BandwidthLimit bool   `yaml:"bandwidthLimit" json:"bandwidthLimit"`
}

type TriggerConfig struct {
	Source   string   `yaml:"source" json:"source"` // in, out or a scope channel
	Edge     string   `yaml:"edge" json:"edge"`
	Coupling string   `yaml:"coupling" json:"coupling"`
	Level    Quantity `yaml:"level" json:"level"`
}

type MeasurementConfig struct {
	Voltage string `yaml:"voltage" json:"voltage"`
	Time    string `yaml:"time" json:"time"`
}

type ReportConfig struct {
	File  string `yaml:"file" json:"file"`
	Quiet bool   `yaml:"quiet" json:"quiet"`
	Chart string `yaml:"chart" json:"chart"` // .png, .svg or .pdf
}

type StorageConfig struct {
	Database     string `yaml:"database" json:"database"` // empty disables storage
	MaxBatchSize int    `yaml:"maxBatchSize" json:"maxBatchSize"`
}

// NewConfig returns the default sweep: 1 kHz to 100 kHz, 10 points per decade,
// a 1 Vpp stimulus on generator channel 1, input on C1 and output on C2 through
// 10x probes, triggered on the input.
func NewConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: "info"},
		Instruments: InstrumentsConfig{
			Oscilloscope: DefaultScopeAddress,
			Generator:    DefaultGeneratorAddress,
			Timeout:      Duration(DefaultTimeout),
		},
		Sweep:    SweepConfig{Start: 1e3, Stop: 100e3, Mode: "log", Points: 10},
		Stimulus: StimulusConfig{Channel: "1", Amplitude: 1, Type: "Vpp"},
		Input:    ChannelConfig{Channel: "1", Coupling: "ac", Probe: 10, BandwidthLimit: true},
		Output:   ChannelConfig{Channel: "2", Coupling: "ac", Probe: 10, BandwidthLimit: true},
		Trigger:  TriggerConfig{Source: "in", Edge: "rising", Coupling: "ac"},
		Measurement: MeasurementConfig{
			Voltage: "Vpp",
			Time:    "phase",
		},
		Dwell:   "mid",
		Storage: StorageConfig{MaxBatchSize: maxBatchSize},
	}
}

// LoadConfig reads the YAML file at path over the defaults and validates the result
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	c := NewConfig()
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err = c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the parts of the file the engine does not: names, addresses
// and outputs. Numeric ranges are left to the engine so the result codes match.
func (c *Config) Validate() error {
	if _, err := parseLogLevel(c.Settings.LogLevel); err != nil {
		return err
	}
	if c.Instruments.Oscilloscope == "" {
		return errors.New("oscilloscope address is required")
	}
	if c.Instruments.Generator == "" {
		return errors.New("generator address is required")
	}
	if c.Instruments.Timeout < 0 {
		return fmt.Errorf("negative instrument timeout %s", time.Duration(c.Instruments.Timeout))
	}
	if c.Storage.MaxBatchSize < 1 {
		return fmt.Errorf("invalid storage batch size %d", c.Storage.MaxBatchSize)
	}

	_, err := c.Engine()
	return err
}

// Addresses returns the instrument addresses for the engine
func (c *Config) Addresses() response.Addresses {
	return response.Addresses{
		Scope:     c.Instruments.Oscilloscope,
		Generator: c.Instruments.Generator,
	}
}

// Engine converts the file into the engine configuration
func (c *Config) Engine() (response.Config, error) {
	var (
		cfg response.Config
		err error
	)

	if cfg.Sweep.Mode, err = response.ParseSweepMode(c.Sweep.Mode); err != nil {
		return cfg, fmt.Errorf("sweep: %w", err)
	}
	cfg.Sweep.Start = float64(c.Sweep.Start)
	cfg.Sweep.Stop = float64(c.Sweep.Stop)
	cfg.Sweep.Points = c.Sweep.Points

	if cfg.Stimulus.Channel, err = parseGeneratorChannel(c.Stimulus.Channel); err != nil {
		return cfg, fmt.Errorf("stimulus: %w", err)
	}
	if cfg.Stimulus.AmplitudeType, err = response.ParseVoltageType(c.Stimulus.Type); err != nil {
		return cfg, fmt.Errorf("stimulus: %w", err)
	}
	cfg.Stimulus.Amplitude = float64(c.Stimulus.Amplitude)
	cfg.Stimulus.Offset = float64(c.Stimulus.Offset)

	if cfg.Input, err = c.Input.engine(); err != nil {
		return cfg, fmt.Errorf("input: %w", err)
	}
	if cfg.Output, err = c.Output.engine(); err != nil {
		return cfg, fmt.Errorf("output: %w", err)
	}

	if cfg.Trigger.Channel, err = parseTriggerSource(c.Trigger.Source); err != nil {
		return cfg, fmt.Errorf("trigger: %w", err)
	}
	if cfg.Trigger.Edge, err = parseEdge(c.Trigger.Edge); err != nil {
		return cfg, fmt.Errorf("trigger: %w", err)
	}
	if cfg.Trigger.Coupling, err = parseCoupling(c.Trigger.Coupling); err != nil {
		return cfg, fmt.Errorf("trigger: %w", err)
	}
	cfg.Trigger.Level = float64(c.Trigger.Level)

	if cfg.Measurement.Voltage, err = response.ParseVoltageType(c.Measurement.Voltage); err != nil {
		return cfg, fmt.Errorf("measurement: %w", err)
	}
	if cfg.Measurement.Time, err = response.ParseTimeMetric(c.Measurement.Time); err != nil {
		return cfg, fmt.Errorf("measurement: %w", err)
	}

	if cfg.Dwell, err = response.ParseDwell(c.Dwell); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c ChannelConfig) engine() (response.ChannelConfig, error) {
	ch, err := parseScopeChannel(c.Channel)
	if err != nil {
		return response.ChannelConfig{}, err
	}
	coupling, err := parseCoupling(c.Coupling)
	if err != nil {
		return response.ChannelConfig{}, err
	}

	return response.ChannelConfig{
		Channel:        ch,
		Coupling:       coupling,
		Attenuation:    float64(c.Probe),
		BandwidthLimit: c.BandwidthLimit,
	}, nil
}

func parseChannelNumber(s string, prefixes ...string) (int, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(v, p); ok {
			v = rest
			break
		}
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid channel %q", s)
	}
	return n, nil
}

func parseScopeChannel(s string) (scope.Channel, error) {
	n, err := parseChannelNumber(s, "CH", "C")
	if err != nil {
		return 0, err
	}
	return scope.Channel(n), nil
}

func parseGeneratorChannel(s string) (generator.Channel, error) {
	n, err := parseChannelNumber(s, "CH", "S")
	if err != nil {
		return 0, err
	}
	return generator.Channel(n), nil
}

func parseTriggerSource(s string) (scope.Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in", "input", "":
		return response.TriggerInput, nil
	case "out", "output":
		return response.TriggerOutput, nil
	}
	return parseScopeChannel(s)
}

func parseCoupling(s string) (scope.Coupling, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ac", "":
		return scope.CouplingAC, nil
	case "dc":
		return scope.CouplingDC, nil
	}
	return 0, fmt.Errorf("unknown coupling %q", s)
}

func parseEdge(s string) (scope.Edge, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rising", "":
		return scope.EdgeRising, nil
	case "falling":
		return scope.EdgeFalling, nil
	}
	return 0, fmt.Errorf("unknown edge %q", s)
}
