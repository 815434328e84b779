package scope

import "math"

const (
	// VerticalDivisions is the number of vertical divisions on screen
	VerticalDivisions = 8

	// TimeDivisions is the number of horizontal divisions on screen
	TimeDivisions = 14

	// MaxAdjustSteps is the largest ladder move accepted by AdjustVolts
	MaxAdjustSteps = 3

	// unscaled volts/division limits at the BNC, before probe attenuation
	unscaledMinVolts = 500e-6
	unscaledMaxVolts = 10.0
)

// VoltsPerDiv is a named vertical scale setting
type VoltsPerDiv int

const (
	V500uV VoltsPerDiv = iota + 1
	V1mV
	V2mV
	V5mV
	V10mV
	V20mV
	V50mV
	V100mV
	V200mV
	V500mV
	V1V
	V2V
	V5V
	V10V
	V20V
	V50V
	V100V
)

type voltStep struct {
	vdiv  VoltsPerDiv
	volts float64
	name  string
}

// 500uV/div only exists at 1x, 100V/div only at 10x
var (
	voltLadder1x = []voltStep{
		{V500uV, 500e-6, "500UV"},
		{V1mV, 1e-3, "1MV"},
		{V2mV, 2e-3, "2MV"},
		{V5mV, 5e-3, "5MV"},
		{V10mV, 10e-3, "10MV"},
		{V20mV, 20e-3, "20MV"},
		{V50mV, 50e-3, "50MV"},
		{V100mV, 100e-3, "100MV"},
		{V200mV, 200e-3, "200MV"},
		{V500mV, 500e-3, "500MV"},
		{V1V, 1, "1V"},
		{V2V, 2, "2V"},
		{V5V, 5, "5V"},
		{V10V, 10, "10V"},
	}

	voltLadder10x = []voltStep{
		{V5mV, 5e-3, "5MV"},
		{V10mV, 10e-3, "10MV"},
		{V20mV, 20e-3, "20MV"},
		{V50mV, 50e-3, "50MV"},
		{V100mV, 100e-3, "100MV"},
		{V200mV, 200e-3, "200MV"},
		{V500mV, 500e-3, "500MV"},
		{V1V, 1, "1V"},
		{V2V, 2, "2V"},
		{V5V, 5, "5V"},
		{V10V, 10, "10V"},
		{V20V, 20, "20V"},
		{V50V, 50, "50V"},
		{V100V, 100, "100V"},
	}
)

// voltLadder returns the ladder for a probe attenuation, false when unsupported
func voltLadder(atten float64) ([]voltStep, bool) {
	switch atten {
	case 1:
		return voltLadder1x, true
	case 10:
		return voltLadder10x, true
	default:
		return nil, false
	}
}

// nearestStep returns the index of the ladder entry closest to volts
func nearestStep(ladder []voltStep, volts float64) int {
	idx := 0
	best := math.Inf(1)
	for i, s := range ladder {
		if d := math.Abs(volts - s.volts); d < best {
			best = d
			idx = i
		}
	}
	return idx
}

// TimeDiv is a named horizontal scale setting
type TimeDiv int

const (
	T1ns TimeDiv = iota + 1
	T2ns
	T5ns
	T10ns
	T20ns
	T50ns
	T100ns
	T200ns
	T500ns
	T1us
	T2us
	T5us
	T10us
	T20us
	T50us
	T100us
	T200us
	T500us
	T1ms
	T2ms
	T5ms
	T10ms
	T20ms
	T50ms
	T100ms
	T200ms
	T500ms
	T1s
	T2s
	T5s
	T10s
	T20s
	T50s
	T100s
)

type timeStep struct {
	tdiv    TimeDiv
	seconds float64
	name    string
}

var timeLadder = []timeStep{
	{T1ns, 1e-9, "1NS"},
	{T2ns, 2e-9, "2NS"},
	{T5ns, 5e-9, "5NS"},
	{T10ns, 10e-9, "10NS"},
	{T20ns, 20e-9, "20NS"},
	{T50ns, 50e-9, "50NS"},
	{T100ns, 100e-9, "100NS"},
	{T200ns, 200e-9, "200NS"},
	{T500ns, 500e-9, "500NS"},
	{T1us, 1e-6, "1US"},
	{T2us, 2e-6, "2US"},
	{T5us, 5e-6, "5US"},
	{T10us, 10e-6, "10US"},
	{T20us, 20e-6, "20US"},
	{T50us, 50e-6, "50US"},
	{T100us, 100e-6, "100US"},
	{T200us, 200e-6, "200US"},
	{T500us, 500e-6, "500US"},
	{T1ms, 1e-3, "1MS"},
	{T2ms, 2e-3, "2MS"},
	{T5ms, 5e-3, "5MS"},
	{T10ms, 10e-3, "10MS"},
	{T20ms, 20e-3, "20MS"},
	{T50ms, 50e-3, "50MS"},
	{T100ms, 100e-3, "100MS"},
	{T200ms, 200e-3, "200MS"},
	{T500ms, 500e-3, "500MS"},
	{T1s, 1, "1S"},
	{T2s, 2, "2S"},
	{T5s, 5, "5S"},
	{T10s, 10, "10S"},
	{T20s, 20, "20S"},
	{T50s, 50, "50S"},
	{T100s, 100, "100S"},
}

// Seconds returns the duration of one division, zero for an unknown setting
func (t TimeDiv) Seconds() float64 {
	if s, ok := lookupTime(t); ok {
		return s.seconds
	}
	return 0
}

func lookupTime(t TimeDiv) (timeStep, bool) {
	for _, s := range timeLadder {
		if s.tdiv == t {
			return s, true
		}
	}
	return timeStep{}, false
}

// TimeDivFor returns the smallest setting whose full screen covers capture seconds.
// Captures longer than the slowest setting get the slowest setting.
func TimeDivFor(capture float64) TimeDiv {
	perDiv := capture / TimeDivisions
	for _, s := range timeLadder[:len(timeLadder)-1] {
		if perDiv <= s.seconds {
			return s.tdiv
		}
	}
	return timeLadder[len(timeLadder)-1].tdiv
}
