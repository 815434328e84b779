package sim_test

import (
	"context"
	"errors"
	"math"
	"net"
	"testing"

	"github.com/roman-kulish/frequency-response/internal/instrument"
	"github.com/roman-kulish/frequency-response/internal/instrument/generator"
	"github.com/roman-kulish/frequency-response/internal/instrument/scope"
	"github.com/roman-kulish/frequency-response/internal/instrument/sim"
)

func attach(t *testing.T, bench *sim.Bench, hz float64) (*scope.Scope, *generator.Generator) {
	t.Helper()

	gen := generator.New(bench.Generator())
	if err := gen.Attach("127.0.0.1:5555"); err != nil {
		t.Fatalf("attaching generator: %v", err)
	}
	vpp, offset := 1.0, 0.0
	if err := gen.SetChannel(generator.CH1, generator.Settings{Frequency: &hz, Vpp: &vpp, Offset: &offset}); err != nil {
		t.Fatalf("setting generator: %v", err)
	}
	if err := gen.SetOutput(generator.CH1, true); err != nil {
		t.Fatalf("enabling output: %v", err)
	}

	sc := scope.New(bench.Scope())
	if err := sc.Attach("127.0.0.1:5025"); err != nil {
		t.Fatalf("attaching scope: %v", err)
	}
	return sc, gen
}

func TestDUT(t *testing.T) {
	testCases := []struct {
		name      string
		dut       sim.DUT
		hz        float64
		wantMag   float64
		wantPhase float64
	}{
		{"lowpass at cutoff", sim.Lowpass(10_000, 1/math.Sqrt2), 10_000, 1 / math.Sqrt2, -90},
		{"highpass at cutoff", sim.Highpass(10_000, 1/math.Sqrt2), 10_000, 1 / math.Sqrt2, 90},
		{"lowpass passband", sim.Lowpass(10_000, 1/math.Sqrt2), 10, 1, 0},
		{"wire", sim.Wire(), 123_456, 1, 0},
		{"gain", sim.Wire().WithGain(10), 1000, 10, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.dut.Magnitude(tc.hz); math.Abs(got-tc.wantMag) > 1e-3 {
				t.Errorf("expected magnitude %g, got %g", tc.wantMag, got)
			}
			if got := tc.dut.PhaseDegrees(tc.hz); math.Abs(got-tc.wantPhase) > 0.5 {
				t.Errorf("expected phase %g, got %g", tc.wantPhase, got)
			}
		})
	}

	if _, err := sim.NewDUT("comb", 1000, 1); err == nil {
		t.Error("expected an error for an unknown filter")
	}
}

func TestMeasureThroughControllers(t *testing.T) {
	bench := sim.NewBench()
	sc, _ := attach(t, bench, 10_000)

	in, err := sc.Measure(scope.CH1, scope.ParamAMPL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := sc.Measure(scope.CH2, scope.ParamAMPL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(in-1) > 1e-6 {
		t.Errorf("expected input 1 Vpp, got %g", in)
	}
	if math.Abs(out-1/math.Sqrt2) > 1e-3 {
		t.Errorf("expected output %g Vpp, got %g", 1/math.Sqrt2, out)
	}

	pha, err := sc.MeasureDelay(scope.CH1, scope.CH2, scope.DelayPHA)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(pha+90) > 0.5 {
		t.Errorf("expected -90 degrees, got %g", pha)
	}

	// a 90 degree lag at 10 kHz is a quarter period
	frr, err := sc.MeasureDelay(scope.CH1, scope.CH2, scope.DelayFRR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(frr-25e-6) > 0.2e-6 {
		t.Errorf("expected 25us, got %g", frr)
	}

	freq, err := sc.Measure(scope.CH1, scope.ParamFREQ)
	if err != nil || freq != 10_000 {
		t.Errorf("expected 10 kHz, got %g (%v)", freq, err)
	}
}

func TestClipping(t *testing.T) {
	bench := sim.NewBench()
	sc, _ := attach(t, bench, 1000)

	// 1 Vpp on 50 mV/div only shows 400 mV of the trace
	if err := sc.SetVoltsExact(scope.CH1, 0.05, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pkpk, err := sc.Measure(scope.CH1, scope.ParamPKPK)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(pkpk-0.4) > 1e-9 {
		t.Errorf("expected clipped 0.4 V, got %g", pkpk)
	}

	if err = sc.SetChannelEnable(scope.CH1, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err = sc.Measure(scope.CH1, scope.ParamPKPK); !errors.Is(err, scope.ErrNoResult) {
		t.Errorf("expected ErrNoResult for a disabled trace, got %v", err)
	}
	if _, err = sc.Measure(scope.CH3, scope.ParamPKPK); !errors.Is(err, scope.ErrNoResult) {
		t.Errorf("expected ErrNoResult for an unconnected probe, got %v", err)
	}
}

func TestOutputOff(t *testing.T) {
	bench := sim.NewBench()
	sc, gen := attach(t, bench, 1000)

	if err := gen.SetOutput(generator.CH1, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := sc.Measure(scope.CH2, scope.ParamAMPL); !errors.Is(err, scope.ErrNoResult) {
		t.Errorf("expected ErrNoResult with the output off, got %v", err)
	}
}

func TestAdjustVoltsOnBench(t *testing.T) {
	bench := sim.NewBench()
	sc, _ := attach(t, bench, 1000)

	applied, scale, err := sc.AdjustVolts(scope.CH1, -2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied != -2 {
		t.Errorf("expected -2 steps, got %d", applied)
	}
	if scale.VoltsPerDiv >= 1 {
		t.Errorf("expected a smaller volts/div than 1, got %g", scale.VoltsPerDiv)
	}
}

func TestUnreachable(t *testing.T) {
	bench := sim.NewBench()
	port := bench.Scope()
	port.SetUnreachable(true)

	if err := port.Attach("127.0.0.1:5025"); !errors.Is(err, sim.ErrUnreachable) {
		t.Errorf("expected ErrUnreachable, got %v", err)
	}
	if err := port.Write("TRMD AUTO"); !errors.Is(err, instrument.ErrNotAttached) {
		t.Errorf("expected ErrNotAttached, got %v", err)
	}
	if err := port.Attach("no port"); !errors.Is(err, instrument.ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestGeneratorQueries(t *testing.T) {
	bench := sim.NewBench()
	_, _ = attach(t, bench, 2500)

	reply, err := bench.Exec(sim.KindGenerator, ":SOUR1:FREQ?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "2.500000E+03\n" {
		t.Errorf("unexpected reply %q", reply)
	}
	if reply, _ = bench.Exec(sim.KindGenerator, ":OUTP1?"); reply != "ON\n" {
		t.Errorf("unexpected reply %q", reply)
	}
	if _, err = bench.Exec(sim.KindGenerator, ":SOUR3:FREQ 10"); !errors.Is(err, sim.ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestServe(t *testing.T) {
	bench := sim.NewBench()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- bench.Serve(ctx, ln, sim.KindScope)
	}()

	tr := instrument.NewTCPTransport()
	if err = tr.Attach(ln.Addr().String()); err != nil {
		t.Fatalf("attaching: %v", err)
	}

	sc := scope.New(tr)
	if err = sc.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	atten, err := sc.Attenuation(scope.CH2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atten != 10 {
		t.Errorf("expected 10x, got %g", atten)
	}
	id, err := sc.Identify()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Error("expected an identity")
	}

	_ = tr.Detach()
	cancel()
	if err = <-done; err != nil {
		t.Errorf("unexpected serve error: %v", err)
	}
}
