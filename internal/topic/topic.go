// Package topic maps device serial numbers and facets to MQTT topics.
package topic

import "strings"

// Default namespaces.
const (
	DefaultBridgeNamespace    = "flic"
	DefaultDiscoveryNamespace = "homeassistant"
)

// Facet is one observable aspect of a device with its own state topic.
type Facet string

const (
	FacetConnected        Facet = "connected"
	FacetBattery          Facet = "battery"
	FacetBinaryState      Facet = "binary_state"
	FacetClickEvent       Facet = "click_event"
	FacetConnectivityMode Facet = "connectivity_mode"
)

// Domain is a Home Assistant discovery component type.
type Domain string

const (
	DomainSensor       Domain = "sensor"
	DomainBinarySensor Domain = "binary_sensor"
	DomainEvent        Domain = "event"
)

// Builder builds topics under fixed bridge and discovery namespaces.
// Serial numbers are assumed globally unique.
type Builder struct {
	BridgeNamespace    string
	DiscoveryNamespace string
}

// NewBuilder returns a Builder, substituting defaults for empty namespaces.
func NewBuilder(bridgeNS, discoveryNS string) Builder {
	if bridgeNS == "" {
		bridgeNS = DefaultBridgeNamespace
	}
	if discoveryNS == "" {
		discoveryNS = DefaultDiscoveryNamespace
	}
	return Builder{BridgeNamespace: bridgeNS, DiscoveryNamespace: discoveryNS}
}

// State returns <bridge>/<serial>/<facet>.
func (b Builder) State(serial string, facet Facet) string {
	return join(b.BridgeNamespace, serial, string(facet))
}

// Discovery returns <discovery>/<domain>/<serial>/<facet>/config.
// An empty facet omits its segment.
func (b Builder) Discovery(domain Domain, serial string, facet Facet) string {
	if facet == "" {
		return join(b.DiscoveryNamespace, string(domain), serial, "config")
	}
	return join(b.DiscoveryNamespace, string(domain), serial, string(facet), "config")
}

// BridgeStatus returns the availability topic of the bridge process itself.
func (b Builder) BridgeStatus() string {
	return join(b.BridgeNamespace, "bridge", "state")
}

func join(parts ...string) string {
	return strings.Join(parts, "/")
}
