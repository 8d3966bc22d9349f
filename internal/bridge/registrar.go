package bridge

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sweeney/button-bridge/internal/device"
	"github.com/sweeney/button-bridge/internal/discovery"
	"github.com/sweeney/button-bridge/internal/mqtt"
	"github.com/sweeney/button-bridge/internal/topic"
)

// Runtime payloads for the connectivity mode facet.
const (
	ModePassive = "Passive"
	ModeActive  = "Active"
)

// Registrar publishes and clears discovery documents for devices.
type Registrar struct {
	pub    mqtt.Publisher
	docs   discovery.Builder
	state  *State
	logger *zap.Logger

	skipped int
}

// NewRegistrar creates a Registrar writing registrations into state.
func NewRegistrar(pub mqtt.Publisher, docs discovery.Builder, state *State, logger *zap.Logger) *Registrar {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registrar{pub: pub, docs: docs, state: state, logger: logger}
}

// Register publishes the five discovery documents for rec together with its
// current connectivity and connectivity mode, then records the registration.
// Registering an unchanged device again republishes identical documents.
func (r *Registrar) Register(rec device.Record) error {
	if !rec.Eligible() {
		r.skipped++
		r.logger.Info("Registration skipped",
			zap.String("address", rec.Address),
			zap.String("serial", rec.SerialNumber),
			zap.String("name", rec.DisplayName))
		return ErrRegistrationSkipped
	}

	configs, err := r.docs.Configs(rec)
	if err != nil {
		return fmt.Errorf("register %s: %w", rec.Address, err)
	}

	topics := r.docs.Topics
	for _, c := range configs {
		r.publish(c.Topic, c.Payload, c.Retain)

		switch c.Facet {
		case topic.FacetConnected:
			r.publish(topics.State(rec.SerialNumber, topic.FacetConnected), []byte(onOff(rec.IsConnected)), true)
		case topic.FacetConnectivityMode:
			r.publish(topics.State(rec.SerialNumber, topic.FacetConnectivityMode), []byte(mode(rec.IsPassiveMode)), true)
		}
	}

	reg := Registration{
		SerialNumber: rec.SerialNumber,
		Name:         discovery.NormalizeName(rec.DisplayName),
	}
	r.state.setRegistration(rec.Address, reg)
	r.state.setConnected(rec.Address, rec.IsConnected)

	r.logger.Info("Device registered",
		zap.String("address", rec.Address),
		zap.String("serial", reg.SerialNumber),
		zap.String("name", reg.Name))
	return nil
}

// Unregister clears the click event discovery document of a registered
// device and forgets all state for address.
func (r *Registrar) Unregister(address string) {
	reg, ok := r.state.Registration(address)
	if ok {
		r.publish(r.docs.ClickEventConfigTopic(reg.SerialNumber), nil, true)
		r.logger.Info("Device unregistered",
			zap.String("address", address),
			zap.String("serial", reg.SerialNumber))
	}
	r.state.Forget(address)
}

// Skipped returns how many registrations were skipped for incomplete identity.
func (r *Registrar) Skipped() int {
	return r.skipped
}

// publish is best-effort: failures are logged and never retried.
func (r *Registrar) publish(t string, payload []byte, retain bool) {
	if err := r.pub.Publish(t, payload, retain); err != nil {
		logPublishError(r.logger, t, err)
	}
}

func onOff(on bool) string {
	if on {
		return discovery.PayloadOn
	}
	return discovery.PayloadOff
}

func mode(passive bool) string {
	if passive {
		return ModePassive
	}
	return ModeActive
}
