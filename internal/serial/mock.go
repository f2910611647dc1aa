package serial

import (
	"fmt"
	"math/rand"
)

// togglePeriod is how many lines pass between chances for a mock sensor to
// change state, and toggleChance the probability it does. Matches the
// cadence of the real shelf: mostly quiet, occasional jar movement.
const (
	togglePeriod = 20
	toggleChance = 0.3
)

// MockSource synthesizes sensor lines in the real wire format. Distances
// stay inside the same envelope the hardware produces: below the lower
// threshold while a sensor is triggered, above the upper threshold while it
// is clear, so downstream alert logic gets exercised end to end.
type MockSource struct {
	lower float64
	upper float64
	rng   *rand.Rand

	counter int
	closeA  bool
	closeB  bool
}

// NewMockSource creates a mock feed with the given hysteresis band and
// random seed. The seed is explicit so tests are reproducible.
func NewMockSource(lower, upper float64, seed int64) *MockSource {
	return &MockSource{
		lower: lower,
		upper: upper,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// ReadLine returns one synthetic line. Never errors.
func (m *MockSource) ReadLine() (string, error) {
	m.counter++
	if m.counter%togglePeriod == 0 {
		if m.rng.Float64() < toggleChance {
			m.closeA = !m.closeA
		}
		if m.rng.Float64() < toggleChance {
			m.closeB = !m.closeB
		}
	}

	return fmt.Sprintf("%.1f,%d,%.1f,%d,%.1f,%.1f",
		m.distance(m.closeA), boolToState(m.closeA),
		m.distance(m.closeB), boolToState(m.closeB),
		m.lower, m.upper), nil
}

// distance picks a value in the envelope for the current state: triggered
// sensors sit 1–8 below the lower threshold, clear ones 5–20 above the
// upper.
func (m *MockSource) distance(close bool) float64 {
	if close {
		return m.lower - (1 + m.rng.Float64()*7)
	}
	return m.upper + (5 + m.rng.Float64()*15)
}

func boolToState(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Close is a no-op; the mock holds no resources.
func (m *MockSource) Close() error {
	return nil
}
