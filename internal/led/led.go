// Package led drives the shelf's alert indicator LED with hardware
// abstraction. The real implementation uses the Linux GPIO character
// device; the fake implementation allows testing without hardware.
package led

// DefaultPin is the BCM pin number of the alert LED.
const DefaultPin = 17

// Setter switches the alert LED.
type Setter interface {
	// Set turns the LED on or off. Setting the current state is a no-op.
	Set(on bool) error

	// Close turns the LED off and releases the line.
	Close() error
}
