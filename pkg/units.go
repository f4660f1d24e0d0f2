package dispenser

import (
	"fmt"
	"strconv"
	"strings"
)

var timeUnits = map[string]float64{
	"ps": 1e-3,
	"ns": 1,
	"us": 1e3,
	"ms": 1e6,
	"s":  1e9,
}

// ParseDuration converts a "value*unit" time string (e.g. "64*us") into
// nanoseconds. A bare number is taken as nanoseconds.
func ParseDuration(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	value, unit, found := strings.Cut(s, "*")
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if !found {
		return v, nil
	}
	scale, ok := timeUnits[strings.TrimSpace(unit)]
	if !ok {
		return 0, fmt.Errorf("invalid duration %q: unknown unit %q", s, unit)
	}
	return v * scale, nil
}
