package bridge

import (
	"errors"

	"go.uber.org/zap"

	"github.com/sweeney/button-bridge/internal/device"
	"github.com/sweeney/button-bridge/internal/mqtt"
)

// Lifecycle reacts to bus connection events.
type Lifecycle struct {
	source    device.Source
	registrar *Registrar
	bus       mqtt.Bus
	logger    *zap.Logger
}

// NewLifecycle creates a Lifecycle.
func NewLifecycle(source device.Source, registrar *Registrar, bus mqtt.Bus, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{source: source, registrar: registrar, bus: bus, logger: logger}
}

// Handle processes one bus event. It returns a *FatalError for transport
// errors; the caller decides when to act on it.
func (l *Lifecycle) Handle(ev mqtt.BusEvent) error {
	switch ev.Kind {
	case mqtt.BusConnected:
		l.Resync()
	case mqtt.BusDisconnected:
		l.logger.Warn("Bus disconnected, reconnecting", zap.Error(ev.Err))
		if err := l.bus.Connect(); err != nil {
			l.logger.Error("Reconnect failed", zap.Error(err))
		}
	case mqtt.BusError:
		err := ev.Err
		if err == nil {
			err = errors.New("unspecified transport error")
		}
		l.logger.Error("Bus transport error", zap.Error(err))
		return &FatalError{Err: err}
	default:
		l.logger.Warn("Unknown bus event", zap.String("kind", string(ev.Kind)))
	}
	return nil
}

// Resync registers every device the source currently knows, in listing order.
func (l *Lifecycle) Resync() {
	records := l.source.ListAll()
	registered := 0
	for _, rec := range records {
		if err := l.registrar.Register(rec); err == nil {
			registered++
		} else if !errors.Is(err, ErrRegistrationSkipped) {
			l.logger.Error("Registration failed", zap.String("address", rec.Address), zap.Error(err))
		}
	}
	l.logger.Info("Resync complete", zap.Int("devices", len(records)), zap.Int("registered", registered))
}
