//go:build !linux

package led

import "errors"

// RealSetter is not available on non-Linux platforms.
type RealSetter struct{}

// NewRealSetter returns an error on non-Linux platforms.
func NewRealSetter(pin int) (*RealSetter, error) {
	return nil, errors.New("led: not supported on this platform (requires Linux)")
}

// Set is not implemented on non-Linux platforms.
func (r *RealSetter) Set(on bool) error {
	return errors.New("led: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealSetter) Close() error {
	return nil
}
