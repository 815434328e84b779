package response

import (
	"fmt"
	"log/slog"

	"github.com/roman-kulish/frequency-response/internal/instrument/scope"
)

// Target window for the peak to peak reading, as fractions of the full screen
const (
	SeekMax    = 1.0
	SeekMid    = 0.39
	SeekMin    = 0.2
	SeekMargin = 0.0275
)

const (
	// HuntingLimit is the number of direction flips after which the current scale is accepted
	HuntingLimit = 3

	// MaxAutoscalePasses bounds the loop for scopes that never settle nor flip
	MaxAutoscalePasses = 16
)

// classify returns the V/div step a channel needs: +1 for a larger V/div when the
// trace nearly fills the screen, -2 or -1 for a smaller one when it is too small
func classify(pkpk, screen float64) int {
	switch {
	case pkpk > (SeekMax-SeekMargin)*screen:
		return +1
	case pkpk < (SeekMin-SeekMargin)*screen:
		return -2
	case pkpk < (SeekMid-SeekMargin)*screen:
		return -1
	default:
		return 0
	}
}

// autoscale adjusts the input and output V/div until both traces sit in the
// target window, or the adjustment starts hunting between two steps. It returns
// the amplitude readings of the final pass.
func (e *Engine) autoscale() (in, out float64, err error) {
	channels := [2]scope.Channel{e.cfg.Input.Channel, e.cfg.Output.Channel}

	var (
		values  [2]float64
		last    [2]int
		hunting int
	)

	for pass := 1; pass <= MaxAutoscalePasses; pass++ {
		var applied [2]int

		for i, ch := range channels {
			v, pkpk, err := e.read(ch)
			if err != nil {
				return 0, 0, err
			}
			values[i] = v

			step := classify(pkpk, e.scales[i].PeakToPeak)
			if step == 0 {
				continue
			}

			n, scale, err := e.scope.AdjustVolts(ch, step)
			if err != nil {
				return 0, 0, fmt.Errorf("adjusting %s volts/div: %w", ch, err)
			}
			applied[i] = n
			e.scales[i] = scale
		}

		if last[0]*applied[0] < 0 || last[1]*applied[1] < 0 {
			hunting++
		}
		last = applied

		if applied == [2]int{} || hunting >= HuntingLimit {
			e.logger.Debug("autoscale settled",
				slog.Int("passes", pass),
				slog.Int("hunting", hunting),
				slog.Float64("input_vdiv", e.scales[0].VoltsPerDiv),
				slog.Float64("output_vdiv", e.scales[1].VoltsPerDiv))
			return values[0], values[1], nil
		}
	}

	e.logger.Warn("autoscale did not settle, accepting current scale",
		slog.Int("passes", MaxAutoscalePasses),
		slog.Float64("input_vdiv", e.scales[0].VoltsPerDiv),
		slog.Float64("output_vdiv", e.scales[1].VoltsPerDiv))
	return values[0], values[1], nil
}

// read returns the amplitude reading and the peak to peak reading of ch
func (e *Engine) read(ch scope.Channel) (amplitude, pkpk float64, err error) {
	amplitude, err = e.scope.Measure(ch, e.amplitude)
	if err != nil {
		return 0, 0, fmt.Errorf("measuring %s %s: %w", ch, e.amplitude, err)
	}
	if e.amplitude == scope.ParamPKPK {
		return amplitude, amplitude, nil
	}

	pkpk, err = e.scope.Measure(ch, scope.ParamPKPK)
	if err != nil {
		return 0, 0, fmt.Errorf("measuring %s %s: %w", ch, scope.ParamPKPK, err)
	}
	return amplitude, pkpk, nil
}
