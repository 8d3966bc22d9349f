// Package status provides a thread-safe status tracker for the button bridge.
// The bridge run loop writes it; HTTP handlers read it.
package status

import (
	"sync"
	"time"
)

// Config contains daemon configuration for display.
type Config struct {
	Broker             string
	HTTPAddr           string
	BridgeNamespace    string
	DiscoveryNamespace string
	FatalDelayMs       int64
}

// Connectivity values for DeviceStatus.Connected.
const (
	ConnectedOn      = "ON"
	ConnectedOff     = "OFF"
	ConnectedUnknown = "UNKNOWN"
)

// DeviceStatus is one row of the device table.
type DeviceStatus struct {
	Address      string
	SerialNumber string
	Name         string
	Registered   bool
	Connected    string // ON, OFF or UNKNOWN
	Holding      bool
}

// ButtonLevel is the debounced level of one GPIO button.
type ButtonLevel struct {
	Address string
	Level   string // DOWN, UP or empty before baseline
}

// InputStatus is the state of the GPIO gesture detector.
type InputStatus struct {
	Baselined bool
	Buttons   []ButtonLevel
	Gestures  map[string]int
}

func (in InputStatus) clone() InputStatus {
	out := InputStatus{
		Baselined: in.Baselined,
		Buttons:   append([]ButtonLevel(nil), in.Buttons...),
		Gestures:  make(map[string]int, len(in.Gestures)),
	}
	for k, v := range in.Gestures {
		out.Gestures[k] = v
	}
	return out
}

// Snapshot is a point-in-time view of bridge state.
// It is a value type: safe to use after the lock is released.
type Snapshot struct {
	Devices       []DeviceStatus
	EventCounts   map[string]int
	Skipped       int
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Inputs        InputStatus
	Config        Config
}

// Uptime returns the duration since the bridge started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable bridge status behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime:   startTime,
			Config:      cfg,
			EventCounts: map[string]int{},
		},
	}
}

// Update replaces the device table and counters. The tracker keeps its own
// copies, so callers may reuse the arguments.
func (t *Tracker) Update(devices []DeviceStatus, counts map[string]int, skipped int) {
	d := append([]DeviceStatus(nil), devices...)
	c := make(map[string]int, len(counts))
	for k, v := range counts {
		c[k] = v
	}

	t.mu.Lock()
	t.snap.Devices = d
	t.snap.EventCounts = c
	t.snap.Skipped = skipped
	t.mu.Unlock()
}

// SetInputs replaces the GPIO detector state. The tracker keeps its own copy.
func (t *Tracker) SetInputs(in InputStatus) {
	c := in.clone()

	t.mu.Lock()
	t.snap.Inputs = c
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the bridge status.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Devices = append([]DeviceStatus(nil), t.snap.Devices...)
	s.EventCounts = make(map[string]int, len(t.snap.EventCounts))
	for k, v := range t.snap.EventCounts {
		s.EventCounts[k] = v
	}
	s.Inputs = t.snap.Inputs.clone()
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
