package response

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/roman-kulish/frequency-response/internal/instrument/generator"
	"github.com/roman-kulish/frequency-response/internal/instrument/scope"
)

var errFake = errors.New("fake failure")

// fakeScope never clamps: every requested step doubles or halves V/div
type fakeScope struct {
	vdiv      map[scope.Channel]float64
	signal    map[scope.Channel]float64 // true peak to peak of each trace
	pkpk      func(ch scope.Channel, screen float64, adjusts int) float64
	adjusts   map[scope.Channel][]int
	calls     []string
	delay     float64
	attached  bool
	attachErr error
	setupErr  error
	measErr   error

	readBackErr error // fails the read-back of the next V/div change once
}

func newFakeScope(in, out float64) *fakeScope {
	return &fakeScope{
		vdiv:    map[scope.Channel]float64{},
		signal:  map[scope.Channel]float64{scope.CH1: in, scope.CH2: out},
		adjusts: map[scope.Channel][]int{},
		delay:   -45,
	}
}

func (f *fakeScope) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeScope) Attach(addr string) error {
	f.record("attach %s", addr)
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached = true
	return nil
}

func (f *fakeScope) Detach() error {
	f.record("detach")
	f.attached = false
	return nil
}

func (f *fakeScope) SetChannelEnable(ch scope.Channel, enabled bool) error {
	f.record("%s enable %t", ch, enabled)
	return f.setupErr
}

func (f *fakeScope) SetAttenuation(ch scope.Channel, atten float64) error {
	f.record("%s atten %g", ch, atten)
	return nil
}

func (f *fakeScope) SetVoltsExact(ch scope.Channel, vdiv float64, _ *float64) error {
	f.record("%s vdiv %g", ch, vdiv)
	f.vdiv[ch] = vdiv
	return nil
}

func (f *fakeScope) SetCoupling(ch scope.Channel, c scope.Coupling) error {
	f.record("%s coupling %s", ch, c)
	return nil
}

func (f *fakeScope) SetBandwidthLimit(ch scope.Channel, limited bool) error {
	f.record("%s bwl %t", ch, limited)
	return nil
}

func (f *fakeScope) SetTriggerMode(scope.TriggerMode) error {
	f.record("trigger mode")
	return nil
}

func (f *fakeScope) SetEdgeTrigger(ch scope.Channel, edge scope.Edge, level float64, _ scope.Coupling, _ *time.Duration) error {
	f.record("trigger %s %s %g", ch, edge, level)
	return nil
}

func (f *fakeScope) SetTimebaseFor(capture float64) (float64, error) {
	return capture, nil
}

func (f *fakeScope) AdjustVolts(ch scope.Channel, steps int) (int, scope.Scale, error) {
	if steps != 0 {
		f.adjusts[ch] = append(f.adjusts[ch], steps)
		f.vdiv[ch] *= math.Pow(2, float64(steps))

		if err := f.readBackErr; err != nil {
			f.readBackErr = nil
			return 0, scope.Scale{}, err
		}
	}
	v := f.vdiv[ch]
	return steps, scope.Scale{VoltsPerDiv: v, PeakToPeak: v * scope.VerticalDivisions}, nil
}

func (f *fakeScope) Measure(ch scope.Channel, _ scope.Param) (float64, error) {
	if f.measErr != nil {
		return 0, f.measErr
	}

	screen := f.vdiv[ch] * scope.VerticalDivisions
	if f.pkpk != nil {
		return f.pkpk(ch, screen, len(f.adjusts[ch])), nil
	}
	return min(f.signal[ch], screen), nil
}

func (f *fakeScope) MeasureDelay(_, _ scope.Channel, _ scope.DelayParam) (float64, error) {
	if f.measErr != nil {
		return 0, f.measErr
	}
	return f.delay, nil
}

type fakeGenerator struct {
	freqs     []float64
	output    bool
	attached  bool
	detached  bool
	attachErr error
}

func (g *fakeGenerator) Attach(string) error {
	if g.attachErr != nil {
		return g.attachErr
	}
	g.attached = true
	return nil
}

func (g *fakeGenerator) Detach() error {
	g.attached = false
	g.detached = true
	return nil
}

func (g *fakeGenerator) SetChannel(_ generator.Channel, s generator.Settings) error {
	if s.Frequency != nil {
		g.freqs = append(g.freqs, *s.Frequency)
	}
	return nil
}

func (g *fakeGenerator) SetFrequency(_ generator.Channel, hz float64) error {
	g.freqs = append(g.freqs, hz)
	return nil
}

func (g *fakeGenerator) SetOutput(_ generator.Channel, on bool) error {
	g.output = on
	return nil
}

var testAddresses = Addresses{Scope: "192.168.0.197:5025", Generator: "192.168.0.198:5555"}

func testConfig() Config {
	return Config{
		Sweep:       SweepConfig{Start: 1000, Stop: 10000, Mode: SweepLog, Points: 10},
		Stimulus:    StimulusConfig{Channel: generator.CH1, Amplitude: 1, AmplitudeType: VoltagePeakToPeak},
		Input:       ChannelConfig{Channel: scope.CH1, Coupling: scope.CouplingAC, Attenuation: 10, BandwidthLimit: true},
		Output:      ChannelConfig{Channel: scope.CH2, Coupling: scope.CouplingAC, Attenuation: 10, BandwidthLimit: true},
		Trigger:     TriggerConfig{Channel: TriggerInput, Edge: scope.EdgeRising, Coupling: scope.CouplingAC},
		Measurement: MeasurementConfig{Voltage: VoltagePeakToPeak, Time: MetricPhase},
		Dwell:       DwellMid,
	}
}

func newTestEngine(sc *fakeScope, gen *fakeGenerator, sleeps *[]time.Duration) *Engine {
	return NewEngine(
		WithInstruments(sc, gen),
		WithSleep(func(d time.Duration) {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
		}),
	)
}
