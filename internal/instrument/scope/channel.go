package scope

import (
	"fmt"
	"log/slog"
	"math"
)

// ChannelSettings applies several channel parameters in one call. Nil fields are left unchanged.
type ChannelSettings struct {
	Enabled        bool
	VoltsPerDiv    *VoltsPerDiv
	Offset         *float64
	Coupling       *Coupling
	BandwidthLimit *bool
	Attenuation    *float64
	Invert         *bool
}

// SetChannel applies s in the order the instrument expects: attenuation before the scale
func (s *Scope) SetChannel(ch Channel, cs ChannelSettings) error {
	if cs.Invert != nil {
		if err := s.SetInvert(ch, *cs.Invert); err != nil {
			return err
		}
	}
	if cs.Attenuation != nil {
		if err := s.SetAttenuation(ch, *cs.Attenuation); err != nil {
			return err
		}
	}
	if cs.BandwidthLimit != nil {
		if err := s.SetBandwidthLimit(ch, *cs.BandwidthLimit); err != nil {
			return err
		}
	}
	if cs.Coupling != nil {
		if err := s.SetCoupling(ch, *cs.Coupling); err != nil {
			return err
		}
	}
	if cs.Offset != nil {
		if err := s.SetOffset(ch, *cs.Offset); err != nil {
			return err
		}
	}
	if cs.VoltsPerDiv != nil {
		if err := s.SetVolts(ch, *cs.VoltsPerDiv, nil); err != nil {
			return err
		}
	}
	return s.SetChannelEnable(ch, cs.Enabled)
}

func (s *Scope) SetChannelEnable(ch Channel, enabled bool) error {
	return s.write(ch, "TRACE %s", onOff(enabled))
}

// SetVolts selects a named scale from the ladder matching the channel attenuation
func (s *Scope) SetVolts(ch Channel, vdiv VoltsPerDiv, offset *float64) error {
	atten, err := s.Attenuation(ch)
	if err != nil {
		return err
	}

	ladder, ok := voltLadder(atten)
	if !ok {
		return fmt.Errorf("%w: attenuation %gx", ErrOutOfRange, atten)
	}

	name := ""
	for _, step := range ladder {
		if step.vdiv == vdiv {
			name = step.name
			break
		}
	}
	if name == "" {
		return fmt.Errorf("%w: volts/div %d not available at %gx", ErrOutOfRange, vdiv, atten)
	}

	if err = s.write(ch, "VDIV %s", name); err != nil {
		return err
	}
	if offset != nil {
		return s.SetOffset(ch, *offset)
	}
	return nil
}

// SetVoltsExact sets an arbitrary volts/division, given at the probe tip
func (s *Scope) SetVoltsExact(ch Channel, vdiv float64, offset *float64) error {
	atten, err := s.Attenuation(ch)
	if err != nil {
		return err
	}

	unscaled := vdiv / atten
	if vdiv <= 0 || math.IsNaN(unscaled) || unscaled < unscaledMinVolts || unscaled > unscaledMaxVolts {
		return fmt.Errorf("%w: %g V/div at %gx", ErrOutOfRange, vdiv, atten)
	}

	if err = s.write(ch, "VDIV %s", formatFloat(vdiv)); err != nil {
		return err
	}
	if offset != nil {
		return s.SetOffset(ch, *offset)
	}
	return nil
}

func (s *Scope) SetOffset(ch Channel, offset float64) error {
	if math.IsNaN(offset) || math.IsInf(offset, 0) {
		return fmt.Errorf("%w: offset %g", ErrOutOfRange, offset)
	}
	return s.write(ch, "OFST %sV", formatFloat(offset))
}

func (s *Scope) SetBandwidthLimit(ch Channel, limited bool) error {
	return s.write(ch, "BWL %s", onOff(limited))
}

func (s *Scope) SetInvert(ch Channel, inverted bool) error {
	return s.write(ch, "INVS %s", onOff(inverted))
}

// SetAttenuation sets the probe attenuation; only 1x and 10x are supported
func (s *Scope) SetAttenuation(ch Channel, atten float64) error {
	if _, ok := voltLadder(atten); !ok {
		return fmt.Errorf("%w: attenuation %gx", ErrOutOfRange, atten)
	}
	return s.write(ch, "ATTN %s", formatFloat(atten))
}

func (s *Scope) SetCoupling(ch Channel, c Coupling) error {
	if c == CouplingDC {
		return s.write(ch, "CPL D1M")
	}
	return s.write(ch, "CPL A1M")
}

// SetUnit selects volts or amps as the vertical unit of ch
func (s *Scope) SetUnit(ch Channel, amps bool) error {
	if amps {
		return s.write(ch, "UNIT A")
	}
	return s.write(ch, "UNIT V")
}

// SetSkew sets the channel deskew in seconds, limited to ±100 ns
func (s *Scope) SetSkew(ch Channel, skew float64) error {
	if math.IsNaN(skew) || skew < -100e-9 || skew > 100e-9 {
		return fmt.Errorf("%w: skew %g s", ErrOutOfRange, skew)
	}
	return s.write(ch, "SKEW %s", formatFloat(skew))
}

// Attenuation reads the probe attenuation of ch
func (s *Scope) Attenuation(ch Channel) (float64, error) {
	if !ch.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}
	return s.queryFloat(ch.String()+":ATTN?", attnRe)
}

// ReadScale reads volts/division and offset of ch
func (s *Scope) ReadScale(ch Channel) (Scale, error) {
	if !ch.Valid() {
		return Scale{}, fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}

	vdiv, err := s.queryFloat(ch.String()+":VDIV?", vdivRe)
	if err != nil {
		return Scale{}, fmt.Errorf("reading volts/div: %w", err)
	}

	offset, err := s.queryFloat(ch.String()+":OFST?", ofstRe)
	if err != nil {
		return Scale{}, fmt.Errorf("reading offset: %w", err)
	}

	return newScale(vdiv, offset), nil
}

// AdjustVolts moves the vertical scale of ch by steps positions on the volts/division
// ladder. Positive steps select larger volts/division. Requests are clamped to
// ±MaxAdjustSteps and to the ends of the ladder. It returns the number of steps
// actually applied and the scale read back afterwards. With an attenuation other
// than 1x or 10x nothing is changed and zero steps are reported.
func (s *Scope) AdjustVolts(ch Channel, steps int) (int, Scale, error) {
	steps = max(-MaxAdjustSteps, min(steps, MaxAdjustSteps))

	scale, err := s.ReadScale(ch)
	if err != nil {
		return 0, Scale{}, err
	}
	if steps == 0 {
		return 0, scale, nil
	}

	atten, err := s.Attenuation(ch)
	if err != nil {
		return 0, scale, err
	}

	ladder, ok := voltLadder(atten)
	if !ok {
		s.logger.Warn("cannot adjust volts/div", slog.String("channel", ch.String()), slog.Float64("attenuation", atten))
		return 0, scale, nil
	}

	idx := nearestStep(ladder, scale.VoltsPerDiv)
	target := max(0, min(idx+steps, len(ladder)-1))
	applied := target - idx
	if applied == 0 {
		return 0, scale, nil
	}

	if err = s.write(ch, "VDIV %s", ladder[target].name); err != nil {
		return 0, scale, err
	}

	if scale, err = s.ReadScale(ch); err != nil {
		return applied, Scale{}, err
	}

	s.logger.Debug("volts/div adjusted",
		slog.String("channel", ch.String()),
		slog.Int("requested", steps),
		slog.Int("applied", applied),
		slog.Float64("vdiv", scale.VoltsPerDiv))

	return applied, scale, nil
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
