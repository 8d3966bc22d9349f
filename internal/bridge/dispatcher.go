package bridge

import (
	"encoding/json"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/sweeney/button-bridge/internal/device"
	"github.com/sweeney/button-bridge/internal/discovery"
	"github.com/sweeney/button-bridge/internal/mqtt"
	"github.com/sweeney/button-bridge/internal/topic"
)

// ClickType is the event_type reported on the click event topic.
type ClickType string

const (
	ClickSingle       ClickType = "click"
	ClickDouble       ClickType = "double_click"
	ClickHold         ClickType = "hold"
	ClickHoldReleased ClickType = "hold_released"
)

// ClickPayload is the non-retained click event message.
type ClickPayload struct {
	EventType ClickType `json:"event_type"`
}

// Classify maps a clickOrHold event to exactly one click type.
func Classify(ev device.Event) ClickType {
	switch {
	case ev.IsSingleClick:
		return ClickSingle
	case ev.IsDoubleClick:
		return ClickDouble
	default:
		return ClickHold
	}
}

// Dispatcher applies device events to State and publishes the resulting
// runtime state. Events must be handled one at a time in arrival order.
type Dispatcher struct {
	source    device.Source
	registrar *Registrar
	state     *State
	pub       mqtt.Publisher
	topics    topic.Builder
	logger    *zap.Logger

	handlers map[device.EventKind]func(device.Event)
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(source device.Source, registrar *Registrar, state *State, pub mqtt.Publisher, topics topic.Builder, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		source:    source,
		registrar: registrar,
		state:     state,
		pub:       pub,
		topics:    topics,
		logger:    logger,
	}
	d.handlers = map[device.EventKind]func(device.Event){
		device.EventAdded:        d.handleIdentity,
		device.EventReady:        d.handleIdentity,
		device.EventConnected:    d.handleConnected,
		device.EventDisconnected: d.handleDisconnected,
		device.EventDeleted:      d.handleDeleted,
		device.EventClickOrHold:  d.handleClickOrHold,
		device.EventPressed:      d.handlePressed,
		device.EventReleased:     d.handleReleased,
	}
	return d
}

// Handle processes a single device event.
func (d *Dispatcher) Handle(ev device.Event) {
	h, ok := d.handlers[ev.Kind]
	if !ok {
		d.logger.Warn("Unknown device event", zap.String("kind", string(ev.Kind)), zap.String("address", ev.Address))
		return
	}
	h(ev)
}

// resolve looks up the record for ev. Unknown addresses and records without
// full identity are incomplete observations and are ignored.
func (d *Dispatcher) resolve(ev device.Event) (device.Record, bool) {
	rec, ok := d.source.Lookup(ev.Address)
	if !ok || !rec.Eligible() {
		d.logger.Info("Ignoring incomplete observation",
			zap.String("event", string(ev.Kind)),
			zap.String("address", ev.Address),
			zap.Bool("known", ok))
		return device.Record{}, false
	}
	return rec, true
}

func (d *Dispatcher) register(rec device.Record) {
	if err := d.registrar.Register(rec); err != nil && !errors.Is(err, ErrRegistrationSkipped) {
		d.logger.Error("Registration failed", zap.String("address", rec.Address), zap.Error(err))
	}
}

func (d *Dispatcher) handleIdentity(ev device.Event) {
	rec, ok := d.resolve(ev)
	if !ok {
		return
	}
	d.register(rec)
}

func (d *Dispatcher) handleConnected(ev device.Event) {
	rec, ok := d.resolve(ev)
	if !ok {
		return
	}
	d.register(rec)
	d.state.setConnected(rec.Address, true)
	d.publish(d.topics.State(rec.SerialNumber, topic.FacetConnected), []byte(discovery.PayloadOn), true)
}

func (d *Dispatcher) handleDisconnected(ev device.Event) {
	rec, ok := d.resolve(ev)
	if !ok {
		return
	}
	d.state.setConnected(rec.Address, false)
	d.publish(d.topics.State(rec.SerialNumber, topic.FacetConnected), []byte(discovery.PayloadOff), true)
}

func (d *Dispatcher) handleDeleted(ev device.Event) {
	d.registrar.Unregister(ev.Address)
}

func (d *Dispatcher) handleClickOrHold(ev device.Event) {
	rec, ok := d.resolve(ev)
	if !ok {
		return
	}

	click := Classify(ev)
	d.state.setHolding(rec.Address, click == ClickHold)
	d.logger.Debug("Click",
		zap.String("serial", rec.SerialNumber),
		zap.String("type", string(click)),
		zap.Bool("holding", d.state.Holding(rec.Address)))

	d.publishClick(rec.SerialNumber, click)

	// Late-arriving or changed identity: keep discovery in step with the live name.
	if reg, ok := d.state.Registration(rec.Address); !ok || reg.Name != discovery.NormalizeName(rec.DisplayName) {
		d.register(rec)
	}

	d.publish(d.topics.State(rec.SerialNumber, topic.FacetBattery), []byte(strconv.Itoa(rec.BatteryPercent)), true)
}

func (d *Dispatcher) handlePressed(ev device.Event) {
	rec, ok := d.resolve(ev)
	if !ok {
		return
	}
	d.publishBinaryState(rec.SerialNumber, discovery.PayloadOn)
}

func (d *Dispatcher) handleReleased(ev device.Event) {
	rec, ok := d.resolve(ev)
	if !ok {
		return
	}
	if d.state.Holding(rec.Address) {
		d.publishClick(rec.SerialNumber, ClickHoldReleased)
		d.state.setHolding(rec.Address, false)
	}
	d.publishBinaryState(rec.SerialNumber, discovery.PayloadOff)
}

// publishBinaryState retains only OFF. Pressed events only ever send ON, so
// the pressed state is never retained.
func (d *Dispatcher) publishBinaryState(serial, state string) {
	d.publish(d.topics.State(serial, topic.FacetBinaryState), []byte(state), state == discovery.PayloadOff)
}

func (d *Dispatcher) publishClick(serial string, click ClickType) {
	payload, err := json.Marshal(ClickPayload{EventType: click})
	if err != nil {
		d.logger.Error("Encode click payload", zap.Error(err))
		return
	}
	d.publish(d.topics.State(serial, topic.FacetClickEvent), payload, false)
}

func (d *Dispatcher) publish(t string, payload []byte, retain bool) {
	if err := d.pub.Publish(t, payload, retain); err != nil {
		logPublishError(d.logger, t, err)
	}
}
