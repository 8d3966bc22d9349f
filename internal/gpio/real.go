//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads button lines from actual hardware using Linux GPIO character device.
type RealReader struct {
	chip  *gpiocdev.Chip
	lines *gpiocdev.Lines
	vals  []int
}

// NewRealReader requests pins on chip as inputs.
//
// With activeLow the lines are biased with a pull-up and a button shorting
// the line to ground reads as pressed. Otherwise lines are pulled down and a
// high level reads as pressed.
func NewRealReader(chipName string, pins []int, activeLow bool) (*RealReader, error) {
	if len(pins) == 0 {
		return nil, errors.New("gpio: no pins configured")
	}

	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithConsumer("button-bridge")}
	if activeLow {
		opts = append(opts, gpiocdev.WithPullUp, gpiocdev.AsActiveLow)
	} else {
		opts = append(opts, gpiocdev.WithPullDown)
	}

	lines, err := chip.RequestLines(pins, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request pins %v: %w", pins, err)
	}

	return &RealReader{
		chip:  chip,
		lines: lines,
		vals:  make([]int, len(pins)),
	}, nil
}

// Read returns the logical level of every requested line.
// Active-low inversion is applied by the kernel.
func (r *RealReader) Read() ([]bool, error) {
	if err := r.lines.Values(r.vals); err != nil {
		return nil, fmt.Errorf("read pins: %w", err)
	}

	down := make([]bool, len(r.vals))
	for i, v := range r.vals {
		down[i] = v == 1
	}
	return down, nil
}

// Close releases GPIO resources.
// Lines are reconfigured to input with pull-down (matching Pi boot defaults)
// before closing.
func (r *RealReader) Close() error {
	var errs []error

	if r.lines != nil {
		if err := r.lines.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pins: %w", err))
		}
		if err := r.lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pins: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	return errors.Join(errs...)
}
