package sim

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

// DefaultSampleRate is the rate the device under test is discretised at. It is far
// above any sweep frequency so the bilinear warping stays negligible.
const DefaultSampleRate = 10_000_000

// DUT is a simulated device under test: a single biquad section with a flat gain
type DUT struct {
	coeffs     biquad.Coefficients
	sampleRate float64
	gain       float64
}

// Lowpass is a second order low-pass with corner frequency cutoff (Hz)
func Lowpass(cutoff, q float64) DUT {
	return DUT{coeffs: design.Lowpass(cutoff, q, DefaultSampleRate), sampleRate: DefaultSampleRate, gain: 1}
}

// Highpass is a second order high-pass with corner frequency cutoff (Hz)
func Highpass(cutoff, q float64) DUT {
	return DUT{coeffs: design.Highpass(cutoff, q, DefaultSampleRate), sampleRate: DefaultSampleRate, gain: 1}
}

// Bandpass is a constant skirt gain band-pass centred on center (Hz)
func Bandpass(center, q float64) DUT {
	return DUT{coeffs: design.Bandpass(center, q, DefaultSampleRate), sampleRate: DefaultSampleRate, gain: 1}
}

// Notch rejects center (Hz)
func Notch(center, q float64) DUT {
	return DUT{coeffs: design.Notch(center, q, DefaultSampleRate), sampleRate: DefaultSampleRate, gain: 1}
}

// Wire is a straight connection, unity gain and no phase shift
func Wire() DUT {
	return DUT{coeffs: biquad.Coefficients{B0: 1}, sampleRate: DefaultSampleRate, gain: 1}
}

// NewDUT builds a device from a filter name: lowpass, highpass, bandpass, notch or wire
func NewDUT(kind string, freq, q float64) (DUT, error) {
	switch strings.ToLower(kind) {
	case "lowpass", "":
		return Lowpass(freq, q), nil
	case "highpass":
		return Highpass(freq, q), nil
	case "bandpass":
		return Bandpass(freq, q), nil
	case "notch":
		return Notch(freq, q), nil
	case "wire":
		return Wire(), nil
	default:
		return DUT{}, fmt.Errorf("unknown filter %q", kind)
	}
}

// WithGain returns a copy of d with its response multiplied by g
func (d DUT) WithGain(g float64) DUT {
	d.gain = g
	return d
}

// Response returns the complex transfer function at hz
func (d DUT) Response(hz float64) complex128 {
	if d.sampleRate == 0 {
		return complex(d.gain, 0)
	}
	return complex(d.gain, 0) * d.coeffs.Response(hz, d.sampleRate)
}

// Magnitude returns |H(hz)|
func (d DUT) Magnitude(hz float64) float64 {
	return cmplx.Abs(d.Response(hz))
}

// PhaseDegrees returns the phase of H(hz) in (-180, 180]
func (d DUT) PhaseDegrees(hz float64) float64 {
	return cmplx.Phase(d.Response(hz)) * 180 / math.Pi
}
