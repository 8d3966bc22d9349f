// Command button-bridge publishes push button events to MQTT with Home
// Assistant discovery.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sweeney/button-bridge/internal/bridge"
	"github.com/sweeney/button-bridge/internal/config"
	"github.com/sweeney/button-bridge/internal/device"
	"github.com/sweeney/button-bridge/internal/discovery"
	"github.com/sweeney/button-bridge/internal/gpio"
	"github.com/sweeney/button-bridge/internal/logic"
	"github.com/sweeney/button-bridge/internal/mqtt"
	"github.com/sweeney/button-bridge/internal/status"
	"github.com/sweeney/button-bridge/internal/topic"
	"github.com/sweeney/button-bridge/internal/web"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (defaults apply when empty)")
	listDevices := flag.Bool("list-devices", false, "Print configured devices and exit")
	logLevel := flag.String("log-level", "", "Override log.level (debug, info, warn, error)")

	flag.Parse()

	if err := run(*configPath, *listDevices, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, listDevices bool, logLevel string) error {
	cfg, err := loadConfig(configPath, logLevel)
	if err != nil {
		return err
	}

	if listDevices {
		return printDevices(os.Stdout, cfg)
	}

	logger, err := createLogger(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return err
	}
	defer logger.Sync()

	reader, err := openReader(cfg.GPIO)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	if reader != nil {
		defer reader.Close()
	}
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))

	srcCfg := sourceConfig(cfg.GPIO)
	srcCfg.Tracker = tracker
	source := gpio.NewSource(reader, srcCfg, logger.Named("gpio"))

	topics := topic.NewBuilder(cfg.Topics.Bridge, cfg.Topics.Discovery)
	bus, err := mqtt.NewClient(mqtt.Config{
		Broker:         cfg.MQTT.Broker,
		ClientID:       cfg.MQTT.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		QoS:            byte(cfg.MQTT.QoS),
		KeepAlive:      cfg.MQTT.KeepAlive.Duration(),
		ConnectTimeout: cfg.MQTT.ConnectTimeout.Duration(),
		StatusTopic:    topics.BridgeStatus(),
	}, logger.Named("mqtt"))
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer bus.Close()

	if cfg.HTTP.Addr != "" {
		ln, err := net.Listen("tcp", cfg.HTTP.Addr)
		if err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("HTTP status server listening", zap.String("addr", cfg.HTTP.Addr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, source, bus, tracker, logger)
}

// runnableSource is a device source that produces events while running.
type runnableSource interface {
	device.Source
	Run(ctx context.Context) error
}

// serve runs the source and the bridge until ctx is cancelled or the bus
// fails. It returns a *bridge.FatalError in the latter case.
func serve(ctx context.Context, cfg *config.Config, source runnableSource, bus mqtt.Bus, tracker *status.Tracker, logger *zap.Logger) error {
	topics := topic.NewBuilder(cfg.Topics.Bridge, cfg.Topics.Discovery)
	docs := discovery.NewBuilder(topics, cfg.Discovery.Manufacturer, cfg.Discovery.ConfigurationURL)

	b := bridge.New(source, bus, docs, bridge.Options{
		FatalDelay: cfg.FatalDelay.Duration(),
		Tracker:    tracker,
	}, logger.Named("bridge"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sourceDone := make(chan error, 1)
	go func() {
		sourceDone <- source.Run(ctx)
	}()

	logger.Info("Started",
		zap.String("broker", cfg.MQTT.Broker),
		zap.String("bridge_topics", topics.BridgeNamespace),
		zap.String("discovery_topics", topics.DiscoveryNamespace),
		zap.Int("buttons", len(cfg.GPIO.Buttons)))

	err := b.Run(ctx)
	cancel()
	if serr := <-sourceDone; serr != nil {
		logger.Warn("Device source stopped with error", zap.Error(serr))
	}

	var fatal *bridge.FatalError
	if errors.As(err, &fatal) {
		logger.Error("Exiting on bus failure", zap.Error(err))
	} else if err == nil {
		logger.Info("Shut down cleanly")
	}
	return err
}

func loadConfig(path, logLevel string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// createLogger creates a zap logger with the specified log level.
func createLogger(level string, json bool) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	zc := zap.NewProductionConfig()
	if !json {
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(zapLevel)
	zc.DisableStacktrace = true
	return zc.Build()
}

func openReader(cfg config.GPIOConfig) (gpio.Reader, error) {
	if len(cfg.Buttons) == 0 {
		return nil, nil
	}
	return gpio.NewRealReader(cfg.Chip, cfg.Pins(), cfg.IsActiveLow())
}

func sourceConfig(cfg config.GPIOConfig) gpio.SourceConfig {
	sc := gpio.SourceConfig{
		Chip: cfg.Chip,
		Poll: cfg.Poll.Duration(),
		Timing: logic.Timing{
			Debounce:    cfg.Debounce.Duration(),
			Hold:        cfg.Hold.Duration(),
			DoubleClick: cfg.DoubleClick.Duration(),
		},
	}
	for _, b := range cfg.Buttons {
		sc.Buttons = append(sc.Buttons, gpio.Button{
			Pin:          b.Pin,
			SerialNumber: b.Serial,
			Name:         b.Name,
			Color:        b.Color,
		})
	}
	return sc
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		Broker:             cfg.MQTT.Broker,
		HTTPAddr:           cfg.HTTP.Addr,
		BridgeNamespace:    cfg.Topics.Bridge,
		DiscoveryNamespace: cfg.Topics.Discovery,
		FatalDelayMs:       cfg.FatalDelay.Duration().Milliseconds(),
	}
}

// printDevices lists the configured buttons and whether they can be registered.
func printDevices(w io.Writer, cfg *config.Config) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tSERIAL\tNAME\tREGISTERABLE")
	for _, b := range sourceConfig(cfg.GPIO).Buttons {
		rec := gpio.Record(cfg.GPIO.Chip, b)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rec.Address, dash(rec.SerialNumber), dash(rec.DisplayName), yesNo(rec.Eligible()))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
