// Package discovery builds Home Assistant MQTT discovery documents for button devices.
package discovery

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sweeney/button-bridge/internal/device"
	"github.com/sweeney/button-bridge/internal/topic"
)

// Defaults for the shared device descriptor.
const (
	DefaultManufacturer     = "Flic"
	DefaultConfigurationURL = "https://hubsdk.flic.io/"
)

// Payload values shared with the state topics.
const (
	PayloadOn  = "ON"
	PayloadOff = "OFF"
)

// ClickEventTypes lists every event_type the click event entity can report.
var ClickEventTypes = []string{"click", "double_click", "hold", "hold_released"}

// DeviceDescriptor groups all facet entities under one device.
type DeviceDescriptor struct {
	Name             string     `json:"name"`
	Identifiers      []string   `json:"identifiers"`
	Manufacturer     string     `json:"manufacturer"`
	Model            string     `json:"model"`
	HWVersion        string     `json:"hw_version"`
	SWVersion        string     `json:"sw_version"`
	Connections      [][]string `json:"connections"`
	ConfigurationURL string     `json:"configuration_url,omitempty"`
}

// Entity is the discovery document for one facet.
type Entity struct {
	Device            DeviceDescriptor `json:"device"`
	Name              string           `json:"name"`
	FriendlyName      string           `json:"friendly_name"`
	StateTopic        string           `json:"state_topic"`
	UniqueID          string           `json:"unique_id"`
	DeviceClass       string           `json:"device_class,omitempty"`
	UnitOfMeasurement string           `json:"unit_of_measurement,omitempty"`
	EntityCategory    string           `json:"entity_category,omitempty"`
	PayloadOn         string           `json:"payload_on,omitempty"`
	PayloadOff        string           `json:"payload_off,omitempty"`
	EventTypes        []string         `json:"event_types,omitempty"`
}

// Config is an encoded discovery document with its destination.
type Config struct {
	Facet   topic.Facet
	Topic   string
	Retain  bool
	Payload []byte
}

// Builder renders discovery documents.
type Builder struct {
	Topics           topic.Builder
	Manufacturer     string
	ConfigurationURL string
}

// NewBuilder returns a Builder with defaults filled in for empty fields.
func NewBuilder(topics topic.Builder, manufacturer, configurationURL string) Builder {
	if manufacturer == "" {
		manufacturer = DefaultManufacturer
	}
	if configurationURL == "" {
		configurationURL = DefaultConfigurationURL
	}
	return Builder{Topics: topics, Manufacturer: manufacturer, ConfigurationURL: configurationURL}
}

// NormalizeName lowercases name and drops everything outside [a-z0-9].
func NormalizeName(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Device returns the device descriptor shared by every facet of rec.
func (b Builder) Device(rec device.Record) DeviceDescriptor {
	ids := []string{rec.SerialNumber}
	if rec.UUID != "" {
		ids = append(ids, rec.UUID)
	}
	return DeviceDescriptor{
		Name:             NormalizeName(rec.DisplayName),
		Identifiers:      ids,
		Manufacturer:     b.Manufacturer,
		Model:            rec.SerialNumber,
		HWVersion:        fmt.Sprintf("%s %s %s", b.Manufacturer, rec.HardwareVersion, rec.Color),
		SWVersion:        "v" + rec.FirmwareVersion,
		Connections:      [][]string{{rec.ConnectionType(), rec.Address}},
		ConfigurationURL: b.ConfigurationURL,
	}
}

// Configs returns the five discovery documents for rec in publish order:
// binary state, battery, connected, connectivity mode, click event.
// Only the click event document is not retained.
func (b Builder) Configs(rec device.Record) ([]Config, error) {
	dev := b.Device(rec)
	serial := rec.SerialNumber

	entities := []struct {
		domain topic.Domain
		facet  topic.Facet
		path   topic.Facet
		retain bool
		entity Entity
	}{
		{topic.DomainBinarySensor, topic.FacetBinaryState, "", true, Entity{
			Name:       "State",
			StateTopic: b.Topics.State(serial, topic.FacetBinaryState),
			UniqueID:   b.uniqueID(serial, "binary_state"),
			PayloadOn:  PayloadOn,
			PayloadOff: PayloadOff,
		}},
		{topic.DomainSensor, topic.FacetBattery, topic.FacetBattery, true, Entity{
			Name:              "Battery",
			StateTopic:        b.Topics.State(serial, topic.FacetBattery),
			UniqueID:          b.uniqueID(serial, "battery"),
			DeviceClass:       "battery",
			UnitOfMeasurement: "%",
			EntityCategory:    "diagnostic",
		}},
		{topic.DomainBinarySensor, topic.FacetConnected, topic.FacetConnected, true, Entity{
			Name:           "Connected",
			StateTopic:     b.Topics.State(serial, topic.FacetConnected),
			UniqueID:       b.uniqueID(serial, "connected"),
			DeviceClass:    "connectivity",
			EntityCategory: "diagnostic",
			PayloadOn:      PayloadOn,
			PayloadOff:     PayloadOff,
		}},
		{topic.DomainSensor, topic.FacetConnectivityMode, topic.FacetConnectivityMode, true, Entity{
			Name:           "Connectivity Mode",
			StateTopic:     b.Topics.State(serial, topic.FacetConnectivityMode),
			UniqueID:       b.uniqueID(serial, "connectivitymode"),
			EntityCategory: "diagnostic",
		}},
		{topic.DomainEvent, topic.FacetClickEvent, topic.FacetClickEvent, false, Entity{
			Name:        "Click Event",
			StateTopic:  b.Topics.State(serial, topic.FacetClickEvent),
			UniqueID:    b.uniqueID(serial, "clickevent"),
			DeviceClass: "button",
			EventTypes:  ClickEventTypes,
		}},
	}

	configs := make([]Config, 0, len(entities))
	for _, e := range entities {
		e.entity.Device = dev
		e.entity.FriendlyName = e.entity.Name
		payload, err := Encode(e.entity)
		if err != nil {
			return nil, fmt.Errorf("encode %s discovery: %w", e.facet, err)
		}
		configs = append(configs, Config{
			Facet:   e.facet,
			Topic:   b.Topics.Discovery(e.domain, serial, e.path),
			Retain:  e.retain,
			Payload: payload,
		})
	}
	return configs, nil
}

// ClickEventConfigTopic is the discovery topic cleared when a device is removed.
func (b Builder) ClickEventConfigTopic(serial string) string {
	return b.Topics.Discovery(topic.DomainEvent, serial, topic.FacetClickEvent)
}

func (b Builder) uniqueID(serial, suffix string) string {
	return b.Manufacturer + "_" + serial + "_" + suffix
}

// Encode renders a document as 4-space indented JSON.
func Encode(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "    ")
}
