package scope

import (
	"fmt"
	"math"
)

// SetTimebase selects a named time/division and, when delay is given, the horizontal delay
func (s *Scope) SetTimebase(tdiv TimeDiv, delay *float64) error {
	step, ok := lookupTime(tdiv)
	if !ok {
		return fmt.Errorf("%w: time/div %d", ErrOutOfRange, tdiv)
	}

	if err := s.t.Write("TDIV " + step.name); err != nil {
		return err
	}
	if delay != nil {
		return s.SetTimeDelay(*delay)
	}
	return nil
}

// SetTimebaseFor picks the smallest time/division whose full screen covers capture
// seconds and returns the screen width actually achieved.
func (s *Scope) SetTimebaseFor(capture float64) (float64, error) {
	if capture <= 0 || math.IsNaN(capture) {
		return 0, fmt.Errorf("%w: capture %g s", ErrOutOfRange, capture)
	}

	tdiv := TimeDivFor(capture)
	if err := s.SetTimebase(tdiv, nil); err != nil {
		return 0, err
	}
	return tdiv.Seconds() * TimeDivisions, nil
}

func (s *Scope) SetTimeDelay(delay float64) error {
	if math.IsNaN(delay) || math.IsInf(delay, 0) {
		return fmt.Errorf("%w: delay %g s", ErrOutOfRange, delay)
	}
	return s.t.Write("TRDL " + formatFloat(delay))
}
