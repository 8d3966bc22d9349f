// Package config loads the bridge configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	MQTT       MQTTConfig      `yaml:"mqtt"`
	Topics     TopicsConfig    `yaml:"topics"`
	Discovery  DiscoveryConfig `yaml:"discovery"`
	Log        LogConfig       `yaml:"log"`
	HTTP       HTTPConfig      `yaml:"http"`
	GPIO       GPIOConfig      `yaml:"gpio"`
	FatalDelay Duration        `yaml:"fatal_delay"` // Grace period before exiting on a transport error
}

// MQTTConfig contains broker connection settings
type MQTTConfig struct {
	Broker         string   `yaml:"broker"`
	ClientID       string   `yaml:"client_id"` // Random when empty
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	QoS            int      `yaml:"qos"`
	KeepAlive      Duration `yaml:"keep_alive"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// TopicsConfig contains the root topic segments
type TopicsConfig struct {
	Bridge    string `yaml:"bridge"`    // State topics (default: flic)
	Discovery string `yaml:"discovery"` // Home Assistant discovery prefix (default: homeassistant)
}

// DiscoveryConfig contains device descriptor settings
type DiscoveryConfig struct {
	Manufacturer     string `yaml:"manufacturer"`
	ConfigurationURL string `yaml:"configuration_url"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// HTTPConfig contains status server settings
type HTTPConfig struct {
	Addr string `yaml:"addr"` // Empty disables the server
}

// GPIOConfig contains button input settings
type GPIOConfig struct {
	Chip        string         `yaml:"chip"`
	Poll        Duration       `yaml:"poll"`
	Debounce    Duration       `yaml:"debounce"`
	Hold        Duration       `yaml:"hold"`
	DoubleClick Duration       `yaml:"double_click"`
	ActiveLow   *bool          `yaml:"active_low"` // Default: true
	Buttons     []ButtonConfig `yaml:"buttons"`
}

// ButtonConfig describes one button
type ButtonConfig struct {
	Pin    int    `yaml:"pin"`
	Serial string `yaml:"serial"`
	Name   string `yaml:"name"`
	Color  string `yaml:"color"`
}

// IsActiveLow reports whether buttons pull their line low when pressed.
func (c GPIOConfig) IsActiveLow() bool {
	return c.ActiveLow == nil || *c.ActiveLow
}

// Pins returns the configured pins in button order.
func (c GPIOConfig) Pins() []int {
	pins := make([]int, len(c.Buttons))
	for i, b := range c.Buttons {
		pins[i] = b.Pin
	}
	return pins
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load reads, parses, defaults and validates the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	// MQTT defaults
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = "tcp://localhost:1883"
	}
	if cfg.MQTT.KeepAlive == 0 {
		cfg.MQTT.KeepAlive = Duration(30 * time.Second)
	}
	if cfg.MQTT.ConnectTimeout == 0 {
		cfg.MQTT.ConnectTimeout = Duration(10 * time.Second)
	}

	if cfg.Topics.Bridge == "" {
		cfg.Topics.Bridge = "flic"
	}
	if cfg.Topics.Discovery == "" {
		cfg.Topics.Discovery = "homeassistant"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.FatalDelay == 0 {
		cfg.FatalDelay = Duration(time.Second)
	}

	// GPIO defaults
	if cfg.GPIO.Chip == "" {
		cfg.GPIO.Chip = "gpiochip0"
	}
	if cfg.GPIO.Poll == 0 {
		cfg.GPIO.Poll = Duration(10 * time.Millisecond)
	}
	if cfg.GPIO.Debounce == 0 {
		cfg.GPIO.Debounce = Duration(30 * time.Millisecond)
	}
	if cfg.GPIO.Hold == 0 {
		cfg.GPIO.Hold = Duration(time.Second)
	}
	if cfg.GPIO.DoubleClick == 0 {
		cfg.GPIO.DoubleClick = Duration(400 * time.Millisecond)
	}
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration for values that cannot work.
func (cfg *Config) Validate() error {
	var errs []error

	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS))
	}
	if !logLevels[cfg.Log.Level] {
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Log.Level))
	}
	if cfg.FatalDelay < 0 {
		errs = append(errs, errors.New("fatal_delay must not be negative"))
	}

	pins := make(map[int]bool)
	serials := make(map[string]bool)
	for i, b := range cfg.GPIO.Buttons {
		if b.Pin < 0 {
			errs = append(errs, fmt.Errorf("gpio.buttons[%d]: pin must not be negative", i))
		}
		if pins[b.Pin] {
			errs = append(errs, fmt.Errorf("gpio.buttons[%d]: pin %d used twice", i, b.Pin))
		}
		pins[b.Pin] = true
		if b.Serial != "" && serials[b.Serial] {
			errs = append(errs, fmt.Errorf("gpio.buttons[%d]: serial %q used twice", i, b.Serial))
		}
		serials[b.Serial] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

var envVarRe = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envVarRe.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}
