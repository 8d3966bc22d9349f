// Package logic contains pure button gesture detection.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the debounced level of a button.
type State string

const (
	StateDown State = "DOWN"
	StateUp   State = "UP"
)

// GestureKind identifies a detected gesture.
type GestureKind string

const (
	GesturePressed     GestureKind = "pressed"
	GestureReleased    GestureKind = "released"
	GestureClick       GestureKind = "click"
	GestureDoubleClick GestureKind = "double_click"
	GestureHold        GestureKind = "hold"
)

// Gesture is a detected button gesture.
type Gesture struct {
	Time   time.Time
	Button int
	Kind   GestureKind
}

// Timing configures gesture detection.
type Timing struct {
	// Debounce is how long a level must be stable before it counts.
	Debounce time.Duration
	// Hold is how long a button must stay down to report a hold.
	Hold time.Duration
	// DoubleClick is the window after a release in which a second click
	// turns into a double click. Zero reports every click as single.
	DoubleClick time.Duration
}

// ChannelState tracks debounce state for a single button.
type ChannelState struct {
	// Current stable (debounced) state
	Stable State
	// Pending state during debounce
	Pending State
	// Time when pending state was first observed
	PendingSince time.Time
	// Whether we have established a baseline
	Baselined bool
}

// Input represents a single sample of logical levels, one per button.
type Input struct {
	Down []bool // true = pressed (already inverted from raw GPIO)
	Time time.Time
}

// EventCounts tracks the number of each gesture since startup.
type EventCounts struct {
	Pressed     int
	Released    int
	Click       int
	DoubleClick int
	Hold        int
}

// ByKind returns the counts keyed by gesture kind.
func (c EventCounts) ByKind() map[string]int {
	return map[string]int{
		string(GesturePressed):     c.Pressed,
		string(GestureReleased):    c.Released,
		string(GestureClick):       c.Click,
		string(GestureDoubleClick): c.DoubleClick,
		string(GestureHold):        c.Hold,
	}
}
