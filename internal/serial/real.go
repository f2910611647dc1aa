package serial

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	goserial "go.bug.st/serial"
)

// readTimeout bounds a single port read so a silent or unplugged device
// never stalls the poll loop.
const readTimeout = 200 * time.Millisecond

// RealSource reads lines from an actual serial device. When the device
// disappears mid-run the source drops the port and reopens it on a later
// ReadLine call, so the poll loop degrades to "no new sample" instead of
// halting.
type RealSource struct {
	name string
	baud int

	port    goserial.Port
	pending strings.Builder

	// reopens is written from the poll loop and read by the metrics scraper.
	reopens atomic.Uint64
}

// NewRealSource opens the given serial port. An initial open failure is
// returned so startup can distinguish "no device" from a flaky line, but
// the returned source is still usable: it keeps retrying on each read.
func NewRealSource(name string, baud int) (*RealSource, error) {
	s := &RealSource{name: name, baud: baud}
	if err := s.open(); err != nil {
		return s, err
	}
	return s, nil
}

func (s *RealSource) open() error {
	port, err := goserial.Open(s.name, &goserial.Mode{BaudRate: s.baud})
	if err != nil {
		return fmt.Errorf("open %s: %w", s.name, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return fmt.Errorf("set read timeout: %w", err)
	}
	s.port = port
	return nil
}

// ReadLine returns the next complete line from the device. Partial lines
// are buffered across calls; a timeout with nothing complete yields
// ("", nil).
func (s *RealSource) ReadLine() (string, error) {
	if s.port == nil {
		s.reopens.Add(1)
		if err := s.open(); err != nil {
			return "", err
		}
		log.Printf("serial: reopened %s", s.name)
	}

	buf := make([]byte, 256)
	for {
		n, err := s.port.Read(buf)
		if err != nil {
			// Device gone: drop the port, reopen on a later tick.
			s.port.Close()
			s.port = nil
			return "", fmt.Errorf("read %s: %w", s.name, err)
		}
		if n == 0 {
			// Timeout, no complete line yet.
			return "", nil
		}
		for _, c := range buf[:n] {
			if c == '\n' {
				line := strings.TrimRight(s.pending.String(), "\r")
				s.pending.Reset()
				return line, nil
			}
			s.pending.WriteByte(c)
		}
	}
}

// Reopens returns how many times the port was reopened after a failure.
// Safe to call concurrently with ReadLine.
func (s *RealSource) Reopens() uint64 {
	return s.reopens.Load()
}

// Close releases the port.
func (s *RealSource) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
