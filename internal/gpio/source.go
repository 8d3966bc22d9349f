package gpio

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sweeney/button-bridge/internal/device"
	"github.com/sweeney/button-bridge/internal/logic"
	"github.com/sweeney/button-bridge/internal/status"
)

// Transport is the connection type reported for GPIO buttons.
const Transport = "gpio"

// SourceConfig configures a Source.
type SourceConfig struct {
	Chip    string
	Poll    time.Duration
	Timing  logic.Timing
	Buttons []Button

	// Tracker, if set, receives the detector state after every sample.
	Tracker *status.Tracker
}

// Source is a device.Source backed by buttons wired to GPIO lines.
// Records are fixed at construction; only Run touches the reader.
type Source struct {
	reader   Reader
	cfg      SourceConfig
	records  []device.Record
	byAddr   map[string]int
	detector *logic.Detector
	events   chan device.Event
	logger   *zap.Logger
}

var _ device.Source = (*Source)(nil)

// NewSource creates a Source reading cfg.Buttons through reader. The reader
// must return levels in the order of cfg.Buttons.
func NewSource(reader Reader, cfg SourceConfig, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Chip == "" {
		cfg.Chip = DefaultChip
	}

	s := &Source{
		reader:   reader,
		cfg:      cfg,
		byAddr:   make(map[string]int, len(cfg.Buttons)),
		detector: logic.NewDetector(len(cfg.Buttons), cfg.Timing),
		events:   make(chan device.Event, 64),
		logger:   logger,
	}
	for i, b := range cfg.Buttons {
		rec := Record(cfg.Chip, b)
		s.records = append(s.records, rec)
		s.byAddr[rec.Address] = i
	}
	return s
}

// Address returns the device address of a line.
func Address(chip string, pin int) string {
	return fmt.Sprintf("gpio:%s:%d", chip, pin)
}

// Record describes a GPIO button as a device record. Its UUID is derived
// from the address so it is stable across restarts.
func Record(chip string, b Button) device.Record {
	addr := Address(chip, b.Pin)
	return device.Record{
		Address:         addr,
		SerialNumber:    b.SerialNumber,
		DisplayName:     b.Name,
		UUID:            uuid.NewSHA1(uuid.NameSpaceURL, []byte(addr)).String(),
		FirmwareVersion: "1",
		HardwareVersion: "GPIO",
		Color:           b.Color,
		BatteryPercent:  100,
		IsConnected:     true,
		Transport:       Transport,
	}
}

// Lookup returns the record for address.
func (s *Source) Lookup(address string) (device.Record, bool) {
	i, ok := s.byAddr[address]
	if !ok {
		return device.Record{}, false
	}
	return s.records[i], true
}

// ListAll returns every configured button in configuration order.
func (s *Source) ListAll() []device.Record {
	return append([]device.Record(nil), s.records...)
}

// Events returns the device event stream.
func (s *Source) Events() <-chan device.Event {
	return s.events
}

// Run announces every button and then samples the reader every poll
// interval until ctx is cancelled.
func (s *Source) Run(ctx context.Context) error {
	if len(s.records) == 0 {
		s.logger.Warn("No buttons configured")
		<-ctx.Done()
		return nil
	}

	poll := s.cfg.Poll
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	return s.loop(ctx, time.Now, ticker.C)
}

func (s *Source) loop(ctx context.Context, now func() time.Time, tick <-chan time.Time) error {
	t := now()
	for _, rec := range s.records {
		for _, kind := range []device.EventKind{device.EventAdded, device.EventReady, device.EventConnected} {
			if !s.send(ctx, device.Event{Kind: kind, Address: rec.Address, Time: t}) {
				return nil
			}
		}
	}
	s.logger.Info("Buttons announced", zap.Int("buttons", len(s.records)), zap.String("chip", s.cfg.Chip))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			for _, ev := range s.sample(now()) {
				if !s.send(ctx, ev) {
					return nil
				}
			}
		}
	}
}

// sample reads the lines once and returns the resulting device events.
func (s *Source) sample(t time.Time) []device.Event {
	down, err := s.reader.Read()
	if err != nil {
		s.logger.Warn("GPIO read error", zap.Error(err))
		return nil
	}

	gestures := s.detector.Process(logic.Input{Down: down, Time: t})
	s.report()
	events := make([]device.Event, 0, len(gestures))
	for _, g := range gestures {
		ev, ok := toEvent(g)
		if !ok {
			continue
		}
		ev.Address = s.records[g.Button].Address
		s.logger.Debug("Gesture", zap.String("address", ev.Address), zap.String("gesture", string(g.Kind)))
		events = append(events, ev)
	}
	return events
}

// InputStatus returns the detector state. Only safe from the goroutine
// running the source, or before Run starts.
func (s *Source) InputStatus() status.InputStatus {
	in := status.InputStatus{
		Baselined: s.detector.IsBaselined(),
		Gestures:  s.detector.Counts().ByKind(),
	}
	for i, rec := range s.records {
		in.Buttons = append(in.Buttons, status.ButtonLevel{
			Address: rec.Address,
			Level:   string(s.detector.CurrentState(i)),
		})
	}
	return in
}

func (s *Source) report() {
	if s.cfg.Tracker != nil {
		s.cfg.Tracker.SetInputs(s.InputStatus())
	}
}

func (s *Source) send(ctx context.Context, ev device.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func toEvent(g logic.Gesture) (device.Event, bool) {
	ev := device.Event{Time: g.Time}
	switch g.Kind {
	case logic.GesturePressed:
		ev.Kind = device.EventPressed
	case logic.GestureReleased:
		ev.Kind = device.EventReleased
	case logic.GestureClick:
		ev.Kind = device.EventClickOrHold
		ev.IsSingleClick = true
	case logic.GestureDoubleClick:
		ev.Kind = device.EventClickOrHold
		ev.IsDoubleClick = true
	case logic.GestureHold:
		ev.Kind = device.EventClickOrHold
	default:
		return device.Event{}, false
	}
	return ev, true
}
