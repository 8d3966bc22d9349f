// Package device defines button device records, their lifecycle and
// interaction events, and the Source contract the bridge consumes.
package device

import "time"

// DefaultTransport is the connection kind advertised when a record has none.
const DefaultTransport = "bluetooth"

// Record is the bridge's view of one physical button.
type Record struct {
	Address         string // opaque hardware identifier, primary key
	SerialNumber    string // may be empty while the device is still being discovered
	DisplayName     string
	UUID            string
	FirmwareVersion string
	HardwareVersion string
	Color           string
	BatteryPercent  int
	IsConnected     bool
	IsPassiveMode   bool
	Transport       string // e.g. "bluetooth", "gpio"
}

// Eligible reports whether the record carries enough identity to be registered.
func (r Record) Eligible() bool {
	return r.SerialNumber != "" && r.DisplayName != ""
}

// ConnectionType returns the transport used in the device connection tuple.
func (r Record) ConnectionType() string {
	if r.Transport == "" {
		return DefaultTransport
	}
	return r.Transport
}

// EventKind identifies a device lifecycle or interaction event.
type EventKind string

const (
	EventAdded        EventKind = "added"
	EventConnected    EventKind = "connected"
	EventReady        EventKind = "ready"
	EventDisconnected EventKind = "disconnected"
	EventDeleted      EventKind = "deleted"
	EventClickOrHold  EventKind = "clickOrHold"
	EventPressed      EventKind = "pressed"
	EventReleased     EventKind = "released"
)

// Event is a single device event. Only the address is carried; the full
// record is resolved through Source.Lookup at handling time.
type Event struct {
	Kind    EventKind
	Address string
	Time    time.Time

	// Set on EventClickOrHold only. Neither set means hold.
	IsSingleClick bool
	IsDoubleClick bool
}

// Source is the device event source the bridge consumes.
type Source interface {
	// Lookup resolves the current record for an address.
	Lookup(address string) (Record, bool)

	// ListAll returns every known device in a stable order.
	ListAll() []Record

	// Events delivers device events in arrival order.
	Events() <-chan Event
}
