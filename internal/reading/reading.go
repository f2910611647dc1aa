// Package reading decodes raw sensor lines into structured samples.
// This package has NO external dependencies and no side effects —
// a bad line yields ErrMalformed, nothing else.
package reading

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrMalformed reports a line that does not match the sensor wire format.
var ErrMalformed = errors.New("malformed input")

// headerPrefix is the column-header line the firmware prints once at boot.
const headerPrefix = "Dist1"

// Sample is one decoded reading from the dual-sensor unit.
// Immutable once created.
type Sample struct {
	DistA  float64
	CloseA bool
	DistB  float64
	CloseB bool
	Lower  float64
	Upper  float64

	ReceivedAt time.Time
}

// Skippable reports whether the line carries no sample: blank lines and
// the firmware's column header are expected noise, not parse errors.
func Skippable(line string) bool {
	line = strings.TrimSpace(line)
	return line == "" || strings.HasPrefix(line, headerPrefix)
}

// Parse decodes one line of the form "d1,s1,d2,s2,lower,upper".
// Distances must be non-negative finite floats, states are integers read as
// booleans (non-zero = triggered), and the thresholds must be finite with
// lower below upper. Any violation returns an error wrapping ErrMalformed.
func Parse(line string, receivedAt time.Time) (Sample, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 6 {
		return Sample{}, fmt.Errorf("%w: want 6 fields, got %d", ErrMalformed, len(parts))
	}

	distA, err := parseDistance(parts[0])
	if err != nil {
		return Sample{}, fmt.Errorf("%w: dist1 %v", ErrMalformed, err)
	}
	closeA, err := parseState(parts[1])
	if err != nil {
		return Sample{}, fmt.Errorf("%w: state1 %v", ErrMalformed, err)
	}
	distB, err := parseDistance(parts[2])
	if err != nil {
		return Sample{}, fmt.Errorf("%w: dist2 %v", ErrMalformed, err)
	}
	closeB, err := parseState(parts[3])
	if err != nil {
		return Sample{}, fmt.Errorf("%w: state2 %v", ErrMalformed, err)
	}
	lower, err := parseFinite(parts[4])
	if err != nil {
		return Sample{}, fmt.Errorf("%w: lower threshold %v", ErrMalformed, err)
	}
	upper, err := parseFinite(parts[5])
	if err != nil {
		return Sample{}, fmt.Errorf("%w: upper threshold %v", ErrMalformed, err)
	}
	if lower >= upper {
		return Sample{}, fmt.Errorf("%w: thresholds %g >= %g", ErrMalformed, lower, upper)
	}

	return Sample{
		DistA:      distA,
		CloseA:     closeA,
		DistB:      distB,
		CloseB:     closeB,
		Lower:      lower,
		Upper:      upper,
		ReceivedAt: receivedAt,
	}, nil
}

func parseDistance(s string) (float64, error) {
	v, err := parseFinite(s)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative: %g", v)
	}
	return v, nil
}

// parseFinite rejects NaN and the infinities along with non-numbers;
// strconv accepts them, but no comparison downstream means anything for
// a non-finite value.
func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not finite: %q", s)
	}
	return v, nil
}

// parseState accepts the firmware's raw state integers (it sends 50/0,
// older revisions send 1/0) and reads any non-zero value as triggered.
func parseState(s string) (bool, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("not an integer: %q", s)
	}
	return v != 0, nil
}
