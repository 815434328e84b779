package scope

import (
	"fmt"
	"math"
	"time"
)

func (s *Scope) SetTriggerMode(mode TriggerMode) error {
	var name string
	switch mode {
	case TriggerStop:
		name = "STOP"
	case TriggerNormal:
		name = "NORM"
	case TriggerSingle:
		name = "SINGLE"
	default:
		name = "AUTO"
	}
	return s.t.Write("TRMD " + name)
}

// SetEdgeTrigger configures an edge trigger on ch. The level is given at the probe
// tip and divided by the channel attenuation before it is sent. A nil holdoff
// closes the holdoff.
func (s *Scope) SetEdgeTrigger(ch Channel, edge Edge, level float64, coupling Coupling, holdoff *time.Duration) error {
	if math.IsNaN(level) || math.IsInf(level, 0) {
		return fmt.Errorf("%w: trigger level %g", ErrOutOfRange, level)
	}

	atten, err := s.Attenuation(ch)
	if err != nil {
		return fmt.Errorf("reading attenuation: %w", err)
	}
	if atten <= 0 {
		return fmt.Errorf("%w: attenuation %gx", ErrOutOfRange, atten)
	}

	cpl := "AC"
	if coupling == CouplingDC {
		cpl = "DC"
	}

	ht, hv := "OFF", "80NS"
	if holdoff != nil {
		ht = "ON"
		hv = formatFloat(float64(holdoff.Nanoseconds())) + "NS"
	}

	slope := "POS"
	if edge == EdgeFalling {
		slope = "NEG"
	}

	if err = s.t.Write("TRCP " + cpl); err != nil {
		return err
	}
	if err = s.write(ch, "TRLV %sV", formatFloat(level/atten)); err != nil {
		return err
	}
	if err = s.t.Write(fmt.Sprintf("TRSE EDGE, SR, %s, HT, %s, HV, %s", ch, ht, hv)); err != nil {
		return err
	}
	return s.write(ch, "TRSL %s", slope)
}
