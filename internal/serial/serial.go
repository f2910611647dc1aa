// Package serial provides the raw-line ingestion source with hardware
// abstraction. The real implementation reads an attached sensor unit over
// a serial port; the mock implementation synthesizes comparable data so
// the rest of the pipeline runs unchanged without hardware.
package serial

// Default port parameters for the sensor unit (USB CDC Arduino).
const (
	DefaultPort = "/dev/ttyACM0"
	DefaultBaud = 115200
)

// Source yields raw text lines from the sensor feed, pull-based.
type Source interface {
	// ReadLine returns the next line without its trailing newline.
	// A read timeout with no complete line returns ("", nil); the caller
	// treats that as "no new sample" and polls again.
	ReadLine() (string, error)

	// Close releases the underlying device.
	Close() error
}
