package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultKeepAlive      = 30 * time.Second
	defaultConnectTimeout = 10 * time.Second
	closePublishTimeout   = time.Second
	disconnectQuiesceMs   = 250
	eventBufferSize       = 16
)

// Config holds broker connection settings.
type Config struct {
	Broker         string
	ClientID       string // generated when empty
	Username       string
	Password       string
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration

	// StatusTopic receives a retained "online" on every connect and is the
	// Last Will topic ("offline"). Empty disables availability reporting.
	StatusTopic string
}

// Client publishes to an actual MQTT broker.
//
// Automatic reconnection is disabled: connection loss is reported as a
// BusDisconnected event and the owner decides when to call Connect again.
type Client struct {
	client paho.Client
	cfg    Config
	logger *zap.Logger

	events    chan BusEvent
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates an unconnected client for the given broker.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("%w: broker address is required", ErrInvalidConfig)
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("%w: qos %d", ErrInvalidConfig, cfg.QoS)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "button-bridge-" + uuid.NewString()[:8]
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaultKeepAlive
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	c := &Client{
		cfg:    cfg,
		logger: logger.With(zap.String("broker", cfg.Broker), zap.String("client_id", cfg.ClientID)),
		events: make(chan BusEvent, eventBufferSize),
		done:   make(chan struct{}),
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetCleanSession(true).
		SetOrderMatters(true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.StatusTopic != "" {
		opts.SetWill(cfg.StatusTopic, PayloadOffline, cfg.QoS, true)
	}

	opts.SetOnConnectHandler(func(client paho.Client) {
		c.logger.Info("MQTT connected")
		if cfg.StatusTopic != "" {
			client.Publish(cfg.StatusTopic, cfg.QoS, true, PayloadOnline)
		}
		c.emit(BusEvent{Kind: BusConnected})
	})

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.logger.Warn("MQTT connection lost", zap.Error(err))
		c.emit(BusEvent{Kind: BusDisconnected, Err: err})
	})

	c.client = paho.NewClient(opts)
	return c, nil
}

// Connect starts an asynchronous connection attempt. Success is reported as
// BusConnected; failure as BusError wrapping ErrConnectionFailed.
func (c *Client) Connect() error {
	c.logger.Info("Connecting to MQTT broker")
	token := c.client.Connect()
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.Error("MQTT connect failed", zap.Error(err))
			c.emit(BusEvent{Kind: BusError, Err: fmt.Errorf("%w: %w", ErrConnectionFailed, err)})
		}
	}()
	return nil
}

// Events delivers connection lifecycle events.
func (c *Client) Events() <-chan BusEvent {
	return c.events
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Publish queues a message without waiting for acknowledgment. Failures
// surfaced later by the token are logged.
func (c *Client) Publish(topic string, payload []byte, retain bool) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, c.cfg.QoS, retain, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.Warn("MQTT publish failed", zap.String("topic", topic), zap.Error(err))
		}
	}()

	c.logger.Debug("Message published",
		zap.String("topic", topic),
		zap.Bool("retain", retain),
		zap.Int("size", len(payload)))
	return nil
}

// Close publishes the graceful offline status and disconnects.
func (c *Client) Close() error {
	if c.client.IsConnected() {
		if c.cfg.StatusTopic != "" {
			token := c.client.Publish(c.cfg.StatusTopic, c.cfg.QoS, true, PayloadOffline)
			token.WaitTimeout(closePublishTimeout)
		}
		c.client.Disconnect(disconnectQuiesceMs)
	}
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// emit delivers ev unless the client has been closed.
func (c *Client) emit(ev BusEvent) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}
