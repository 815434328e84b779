package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/roman-kulish/frequency-response/internal/instrument/sim"
)

// SimulateConfig describes the simulated bench served over TCP
type SimulateConfig struct {
	ScopeAddress     string
	GeneratorAddress string
	Filter           string // lowpass, highpass, bandpass, notch or wire
	Frequency        Quantity
	Q                float64
	Gain             float64
}

func (c SimulateConfig) Validate() error {
	if c.ScopeAddress == "" || c.GeneratorAddress == "" {
		return errors.New("both listen addresses are required")
	}
	if c.Frequency <= 0 {
		return fmt.Errorf("invalid filter frequency %s", c.Frequency)
	}
	if c.Q <= 0 {
		return fmt.Errorf("invalid filter Q %g", c.Q)
	}
	return nil
}

// Simulate serves a simulated oscilloscope and generator wired through a
// filter until ctx is cancelled.
func Simulate(ctx context.Context, config SimulateConfig, logger *slog.Logger) error {
	if err := config.Validate(); err != nil {
		return err
	}

	dut, err := sim.NewDUT(config.Filter, float64(config.Frequency), config.Q)
	if err != nil {
		return err
	}
	if config.Gain != 0 {
		dut = dut.WithGain(config.Gain)
	}

	bench := sim.NewBench(sim.WithLogger(logger), sim.WithDUT(dut))

	listeners := []struct {
		addr string
		kind sim.Kind
	}{
		{config.ScopeAddress, sim.KindScope},
		{config.GeneratorAddress, sim.KindGenerator},
	}

	var lc net.ListenConfig
	var opened []net.Listener
	for _, l := range listeners {
		ln, err := lc.Listen(ctx, "tcp", l.addr)
		if err != nil {
			for _, o := range opened {
				_ = o.Close()
			}
			return fmt.Errorf("listening for the %s on %s: %w", l.kind, l.addr, err)
		}
		opened = append(opened, ln)
	}

	logger.Info("simulated bench ready",
		slog.String("filter", config.Filter),
		slog.String("frequency", humanHz(float64(config.Frequency))),
		slog.Float64("q", config.Q))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, len(listeners))
	for i, ln := range opened {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := bench.Serve(ctx, ln, listeners[i].kind); err != nil {
				errs[i] = fmt.Errorf("serving the %s: %w", listeners[i].kind, err)
				cancel() // signal the other server about fatal
			}
		}()
	}

	wg.Wait()
	return errors.Join(errs...)
}
