//go:build !linux

// Buttons need the Linux GPIO character device. Elsewhere the bridge still
// builds for development and -list-devices; a config with buttons fails at
// startup.

package gpio

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned when opening GPIO lines off Linux.
var ErrUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// NewRealReader always fails with ErrUnsupported.
func NewRealReader(chipName string, pins []int, activeLow bool) (*RealReader, error) {
	return nil, fmt.Errorf("open %s pins %v: %w", chipName, pins, ErrUnsupported)
}

func (r *RealReader) Read() ([]bool, error) {
	return nil, ErrUnsupported
}

func (r *RealReader) Close() error {
	return nil
}
