package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Ready         bool           `json:"ready"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Devices       []DeviceJSON   `json:"devices"`
	EventCounts   map[string]int `json:"event_counts"`
	Skipped       int            `json:"registrations_skipped"`
	Inputs        InputsJSON     `json:"inputs"`
	Config        ConfigJSON     `json:"config"`
}

// InputsJSON reports the GPIO gesture detector.
type InputsJSON struct {
	Baselined bool              `json:"baselined"`
	Buttons   []ButtonLevelJSON `json:"buttons"`
	Gestures  map[string]int    `json:"gestures"`
}

// ButtonLevelJSON is the debounced level of one button.
type ButtonLevelJSON struct {
	Address string `json:"address"`
	Level   string `json:"level"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// DeviceJSON is the JSON representation of one device row.
type DeviceJSON struct {
	Address    string `json:"address"`
	Serial     string `json:"serial_number"`
	Name       string `json:"name"`
	Registered bool   `json:"registered"`
	Connected  string `json:"connected"`
	Holding    bool   `json:"holding"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Broker             string `json:"broker"`
	HTTPAddr           string `json:"http_addr"`
	BridgeNamespace    string `json:"bridge_namespace"`
	DiscoveryNamespace string `json:"discovery_namespace"`
	FatalDelayMs       int64  `json:"fatal_delay_ms"`
}

// DevicesJSON converts device rows to their JSON form.
func DevicesJSON(devices []DeviceStatus) []DeviceJSON {
	out := make([]DeviceJSON, 0, len(devices))
	for _, d := range devices {
		connected := d.Connected
		if connected == "" {
			connected = ConnectedUnknown
		}
		out = append(out, DeviceJSON{
			Address:    d.Address,
			Serial:     d.SerialNumber,
			Name:       d.Name,
			Registered: d.Registered,
			Connected:  connected,
			Holding:    d.Holding,
		})
	}
	return out
}

func inputsJSON(in InputStatus) InputsJSON {
	out := InputsJSON{
		Baselined: in.Baselined,
		Buttons:   make([]ButtonLevelJSON, 0, len(in.Buttons)),
		Gestures:  in.Gestures,
	}
	for _, b := range in.Buttons {
		level := b.Level
		if level == "" {
			level = ConnectedUnknown
		}
		out.Buttons = append(out.Buttons, ButtonLevelJSON{Address: b.Address, Level: level})
	}
	if out.Gestures == nil {
		out.Gestures = map[string]int{}
	}
	return out
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	inner := StatusInner{
		Ready:         snap.MQTTConnected,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Devices:       DevicesJSON(snap.Devices),
		EventCounts:   snap.EventCounts,
		Skipped:       snap.Skipped,
		Inputs:        inputsJSON(snap.Inputs),
		Config: ConfigJSON{
			Broker:             snap.Config.Broker,
			HTTPAddr:           snap.Config.HTTPAddr,
			BridgeNamespace:    snap.Config.BridgeNamespace,
			DiscoveryNamespace: snap.Config.DiscoveryNamespace,
			FatalDelayMs:       snap.Config.FatalDelayMs,
		},
	}
	if inner.EventCounts == nil {
		inner.EventCounts = map[string]int{}
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}
