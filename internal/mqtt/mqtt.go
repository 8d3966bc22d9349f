// Package mqtt provides the MQTT bus client with abstraction for testing.
package mqtt

import "errors"

// Bridge availability payloads.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

var (
	// ErrNotConnected is returned when publishing while the bus is down.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed wraps connect failures reported as BusError events.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrInvalidConfig is returned by NewClient for unusable settings.
	ErrInvalidConfig = errors.New("mqtt: invalid config")
)

// Publisher publishes raw payloads.
type Publisher interface {
	// Publish sends payload to topic. A nil payload with retain set clears
	// the retained message. Delivery is best-effort: a nil error means the
	// message was queued, not acknowledged.
	Publish(topic string, payload []byte, retain bool) error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Bus is the full broker connection used by the bridge.
type Bus interface {
	Publisher
	ConnectionStatus

	// Connect starts a connection attempt. The outcome is reported on Events.
	Connect() error

	// Events delivers connection lifecycle events in order.
	Events() <-chan BusEvent

	// Close disconnects from the broker.
	Close() error
}

// BusEventKind identifies a connection lifecycle event.
type BusEventKind string

const (
	BusConnected    BusEventKind = "connected"
	BusDisconnected BusEventKind = "disconnected"
	BusError        BusEventKind = "error"
)

// BusEvent is a connection lifecycle event.
type BusEvent struct {
	Kind BusEventKind
	Err  error // set for BusDisconnected (when known) and BusError
}
