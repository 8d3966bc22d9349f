// Package bridge turns device events into Home Assistant discovery and state
// publications on the MQTT bus.
//
// All bridge state is owned by a single run loop: device events and bus
// lifecycle events are handled one at a time, in arrival order.
package bridge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/button-bridge/internal/device"
	"github.com/sweeney/button-bridge/internal/discovery"
	"github.com/sweeney/button-bridge/internal/mqtt"
	"github.com/sweeney/button-bridge/internal/status"
)

// DefaultFatalDelay is how long Run keeps going after a transport error
// before returning, so in-flight publishes get a chance to flush.
const DefaultFatalDelay = time.Second

// Options configures a Bridge.
type Options struct {
	FatalDelay time.Duration
	Tracker    *status.Tracker // optional
}

// Bridge wires a device source to a bus.
type Bridge struct {
	source     device.Source
	bus        mqtt.Bus
	state      *State
	registrar  *Registrar
	dispatcher *Dispatcher
	lifecycle  *Lifecycle
	tracker    *status.Tracker
	logger     *zap.Logger
	fatalDelay time.Duration

	counts map[string]int
}

// New creates a Bridge. Topics and discovery documents come from docs.
func New(source device.Source, bus mqtt.Bus, docs discovery.Builder, opts Options, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FatalDelay <= 0 {
		opts.FatalDelay = DefaultFatalDelay
	}

	state := NewState()
	registrar := NewRegistrar(bus, docs, state, logger.Named("registrar"))
	return &Bridge{
		source:     source,
		bus:        bus,
		state:      state,
		registrar:  registrar,
		dispatcher: NewDispatcher(source, registrar, state, bus, docs.Topics, logger.Named("dispatcher")),
		lifecycle:  NewLifecycle(source, registrar, bus, logger.Named("lifecycle")),
		tracker:    opts.Tracker,
		logger:     logger,
		fatalDelay: opts.FatalDelay,
		counts:     make(map[string]int),
	}
}

// Run connects the bus and processes events until ctx is cancelled (nil
// error) or a bus transport error occurs (*FatalError after the fatal delay).
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.bus.Connect(); err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}

	deviceEvents := b.source.Events()
	busEvents := b.bus.Events()

	var (
		fatalTimer *time.Timer
		fatalC     <-chan time.Time
		fatalErr   error
	)
	defer func() {
		if fatalTimer != nil {
			fatalTimer.Stop()
		}
	}()

	b.report()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Bridge stopping")
			return nil

		case ev, ok := <-deviceEvents:
			if !ok {
				b.logger.Warn("Device event source closed")
				deviceEvents = nil
				continue
			}
			b.HandleDeviceEvent(ev)

		case ev := <-busEvents:
			if err := b.HandleBusEvent(ev); err != nil && fatalC == nil {
				b.logger.Error("Terminating after delay", zap.Duration("delay", b.fatalDelay), zap.Error(err))
				fatalErr = err
				fatalTimer = time.NewTimer(b.fatalDelay)
				fatalC = fatalTimer.C
			}

		case <-fatalC:
			return fatalErr
		}
	}
}

// HandleDeviceEvent processes one device event. Must only be called from the
// goroutine that owns the bridge.
func (b *Bridge) HandleDeviceEvent(ev device.Event) {
	b.counts[string(ev.Kind)]++
	b.dispatcher.Handle(ev)
	b.report()
}

// HandleBusEvent processes one bus lifecycle event, returning a *FatalError
// for transport errors.
func (b *Bridge) HandleBusEvent(ev mqtt.BusEvent) error {
	err := b.lifecycle.Handle(ev)
	b.report()
	return err
}

// State exposes the bridge state for inspection from the owning goroutine.
func (b *Bridge) State() *State {
	return b.state
}

// report pushes a copy of the current state to the status tracker.
func (b *Bridge) report() {
	if b.tracker == nil {
		return
	}
	b.tracker.SetMQTTConnected(b.bus.IsConnected())
	b.tracker.Update(b.deviceRows(), b.counts, b.registrar.Skipped())
}

func (b *Bridge) deviceRows() []status.DeviceStatus {
	var rows []status.DeviceStatus
	seen := make(map[string]bool)

	for _, rec := range b.source.ListAll() {
		seen[rec.Address] = true
		rows = append(rows, b.row(rec.Address, rec.SerialNumber, rec.DisplayName))
	}
	// Devices the source has dropped but whose deletion has not arrived yet.
	for _, addr := range b.state.Addresses() {
		if seen[addr] {
			continue
		}
		reg, _ := b.state.Registration(addr)
		rows = append(rows, b.row(addr, reg.SerialNumber, reg.Name))
	}
	return rows
}

func (b *Bridge) row(addr, serial, name string) status.DeviceStatus {
	_, registered := b.state.Registration(addr)
	connected := status.ConnectedUnknown
	if c, known := b.state.Connected(addr); known {
		connected = onOff(c)
	}
	return status.DeviceStatus{
		Address:      addr,
		SerialNumber: serial,
		Name:         name,
		Registered:   registered,
		Connected:    connected,
		Holding:      b.state.Holding(addr),
	}
}
