// Package gpio provides button input reading with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the levels of a fixed set of input lines.
type Reader interface {
	// Read returns one logical level per line, in the order the lines were
	// requested. true means the button is pressed.
	Read() ([]bool, error)

	// Close releases GPIO resources.
	Close() error
}

// DefaultChip is the GPIO character device used when none is configured.
const DefaultChip = "gpiochip0"

// Button describes one physical push button wired to a GPIO line.
type Button struct {
	Pin          int    // BCM line offset
	SerialNumber string
	Name         string
	Color        string
}
