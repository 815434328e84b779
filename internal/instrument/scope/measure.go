package scope

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Param is a single channel measurement parameter
type Param string

const (
	ParamPKPK  Param = "PKPK"
	ParamMAX   Param = "MAX"
	ParamMIN   Param = "MIN"
	ParamAMPL  Param = "AMPL"
	ParamTOP   Param = "TOP"
	ParamBASE  Param = "BASE"
	ParamCMEAN Param = "CMEAN"
	ParamMEAN  Param = "MEAN"
	ParamRMS   Param = "RMS"
	ParamCRMS  Param = "CRMS"
	ParamOVSN  Param = "OVSN"
	ParamFPRE  Param = "FPRE"
	ParamOVSP  Param = "OVSP"
	ParamRPRE  Param = "RPRE"
	ParamPER   Param = "PER"
	ParamFREQ  Param = "FREQ"
	ParamPWID  Param = "PWID"
	ParamNWID  Param = "NWID"
	ParamRISE  Param = "RISE"
	ParamFALL  Param = "FALL"
	ParamWID   Param = "WID"
	ParamDUTY  Param = "DUTY"
	ParamNDUTY Param = "NDUTY"
)

// DelayParam is a two channel timing measurement parameter
type DelayParam string

const (
	DelayPHA  DelayParam = "PHA"  // phase, degrees
	DelayFRR  DelayParam = "FRR"  // first rising to first rising edge
	DelayFRF  DelayParam = "FRF"  // first rising to first falling edge
	DelayFFR  DelayParam = "FFR"  // first falling to first rising edge
	DelayFFF  DelayParam = "FFF"  // first falling to first falling edge
	DelayLRR  DelayParam = "LRR"  // first rising to last rising edge
	DelayLRF  DelayParam = "LRF"  // first rising to last falling edge
	DelayLFR  DelayParam = "LFR"  // first falling to last rising edge
	DelayLFF  DelayParam = "LFF"  // first falling to last falling edge
	DelaySKEW DelayParam = "SKEW" // edge skew
)

const noResult = "****"

var pavaRe = regexp.MustCompile(`^C[1-4]:PAVA [A-Z]+,([0-9.E+-]+)[a-zA-Z%]*\s*$`)

// Measure reads a single channel measurement
func (s *Scope) Measure(ch Channel, p Param) (float64, error) {
	if !ch.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}
	return s.measure(fmt.Sprintf("%s:PAVA? %s", ch, p), pavaRe)
}

// MeasureDelay reads a timing measurement of ch2 relative to ch1
func (s *Scope) MeasureDelay(ch1, ch2 Channel, p DelayParam) (float64, error) {
	if !ch1.Valid() || !ch2.Valid() {
		return 0, fmt.Errorf("%w: %d-%d", ErrInvalidChannel, ch1, ch2)
	}

	re := regexp.MustCompile(`^C[1-4]-C[1-4]:MEAD ` + regexp.QuoteMeta(string(p)) + `,([0-9.E+-]+)[a-zA-Z]*\s*$`)
	return s.measure(fmt.Sprintf("%s-%s:MEAD? %s", ch1, ch2, p), re)
}

func (s *Scope) measure(cmd string, re *regexp.Regexp) (float64, error) {
	resp, err := s.t.Query(cmd)
	if err != nil {
		return 0, err
	}

	if strings.Contains(resp, noResult) {
		return 0, fmt.Errorf("%w for %q", ErrNoResult, cmd)
	}

	m := re.FindStringSubmatch(resp)
	if m == nil {
		return 0, fmt.Errorf("%w to %q: %q", ErrBadResponse, cmd, resp)
	}

	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w to %q: %w", ErrBadResponse, cmd, err)
	}
	return v, nil
}
