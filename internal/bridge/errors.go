package bridge

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sweeney/button-bridge/internal/mqtt"
)

// ErrRegistrationSkipped is returned by Register for records lacking a serial
// number or display name. It is a diagnostic, not a failure: partial
// observations are expected while a device is being discovered.
var ErrRegistrationSkipped = errors.New("bridge: registration skipped, incomplete device identity")

// FatalError is returned by Run after a bus transport error. The process
// must exit and be restarted rather than continue on the same session.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("bridge: fatal bus error: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// logPublishError records a failed best-effort publish. Publishes made while
// the bus is down go to debug since every device is republished on connect.
func logPublishError(logger *zap.Logger, topic string, err error) {
	if errors.Is(err, mqtt.ErrNotConnected) {
		logger.Debug("Publish skipped, bus not connected", zap.String("topic", topic))
		return
	}
	logger.Warn("Publish failed", zap.String("topic", topic), zap.Error(err))
}
