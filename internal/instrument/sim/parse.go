package sim

import (
	"fmt"
	"strconv"
	"strings"
)

// parseValue reads instrument numbers such as "500UV", "1MS", "0.5V", "1E-3" or "80NS".
// M is milli here, as on the instruments.
func parseValue(s string) (float64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "HZ")
	s = strings.TrimRight(s, "VS")

	mult := 1.0
	if n := len(s); n > 0 {
		switch s[n-1] {
		case 'N':
			mult, s = 1e-9, s[:n-1]
		case 'U':
			mult, s = 1e-6, s[:n-1]
		case 'M':
			mult, s = 1e-3, s[:n-1]
		case 'K':
			mult, s = 1e3, s[:n-1]
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing value %q: %w", s, err)
	}
	return v * mult, nil
}

// parseChannel reads "C1".."C4" and returns the zero based index
func parseChannel(s string) (int, bool) {
	if len(s) != 2 || (s[0] != 'C' && s[0] != 'c') || s[1] < '1' || s[1] > '4' {
		return 0, false
	}
	return int(s[1] - '1'), true
}

func parseOnOff(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "ON")
}
