package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sweeney/button-bridge/internal/device"
	"github.com/sweeney/button-bridge/internal/discovery"
	"github.com/sweeney/button-bridge/internal/mqtt"
	"github.com/sweeney/button-bridge/internal/status"
	"github.com/sweeney/button-bridge/internal/topic"
)

const (
	addrA = "80:e4:da:70:00:01"
	addrB = "80:e4:da:70:00:02"
)

func kitchen() device.Record {
	return device.Record{
		Address:         addrA,
		SerialNumber:    "BF12-A00001",
		DisplayName:     "Kitchen",
		UUID:            "uuid-a",
		FirmwareVersion: "11",
		HardwareVersion: "2",
		Color:           "white",
		BatteryPercent:  87,
		IsConnected:     true,
	}
}

func hallway() device.Record {
	return device.Record{
		Address:        addrB,
		SerialNumber:   "BF12-B00002",
		DisplayName:    "Hallway",
		BatteryPercent: 42,
		IsPassiveMode:  true,
	}
}

func newTestBridge(t *testing.T, records ...device.Record) (*Bridge, *device.FakeSource, *mqtt.FakeBus) {
	t.Helper()
	src := device.NewFakeSource(records...)
	bus := mqtt.NewFakeBus()
	docs := discovery.NewBuilder(topic.NewBuilder("", ""), "", "")
	b := New(src, bus, docs, Options{FatalDelay: 20 * time.Millisecond}, zap.NewNop())
	return b, src, bus
}

// stateMessages filters out discovery config publications.
func stateMessages(msgs []mqtt.Message) []mqtt.Message {
	var out []mqtt.Message
	for _, m := range msgs {
		if !strings.HasSuffix(m.Topic, "/config") {
			out = append(out, m)
		}
	}
	return out
}

func countTopic(msgs []mqtt.Message, topic string) int {
	n := 0
	for _, m := range msgs {
		if m.Topic == topic {
			n++
		}
	}
	return n
}

func TestRegisterPublishesDiscoverySet(t *testing.T) {
	b, _, bus := newTestBridge(t, kitchen())

	require.NoError(t, b.registrar.Register(kitchen()))

	want := []struct {
		topic   string
		retain  bool
		payload string
	}{
		{"homeassistant/binary_sensor/BF12-A00001/config", true, ""},
		{"homeassistant/sensor/BF12-A00001/battery/config", true, ""},
		{"homeassistant/binary_sensor/BF12-A00001/connected/config", true, ""},
		{"flic/BF12-A00001/connected", true, "ON"},
		{"homeassistant/sensor/BF12-A00001/connectivity_mode/config", true, ""},
		{"flic/BF12-A00001/connectivity_mode", true, "Active"},
		{"homeassistant/event/BF12-A00001/click_event/config", false, ""},
	}
	require.Len(t, bus.Messages, len(want))
	for i, w := range want {
		m := bus.Messages[i]
		assert.Equal(t, w.topic, m.Topic, "message %d", i)
		assert.Equal(t, w.retain, m.Retain, "message %d retain", i)
		if w.payload != "" {
			assert.Equal(t, w.payload, string(m.Payload), "message %d payload", i)
		}
	}

	reg, ok := b.State().Registration(addrA)
	require.True(t, ok)
	assert.Equal(t, Registration{SerialNumber: "BF12-A00001", Name: "kitchen"}, reg)
}

func TestRegisterPassiveDisconnected(t *testing.T) {
	b, _, bus := newTestBridge(t, hallway())

	require.NoError(t, b.registrar.Register(hallway()))

	states := stateMessages(bus.Messages)
	require.Len(t, states, 2)
	assert.Equal(t, "OFF", string(states[0].Payload))
	assert.Equal(t, "Passive", string(states[1].Payload))
}

func TestRegisterIdempotent(t *testing.T) {
	b, _, bus := newTestBridge(t, kitchen())

	require.NoError(t, b.registrar.Register(kitchen()))
	first := append([]mqtt.Message(nil), bus.Messages...)
	bus.Reset()
	require.NoError(t, b.registrar.Register(kitchen()))

	assert.Equal(t, first, bus.Messages)
}

func TestRegisterSkipsIncompleteIdentity(t *testing.T) {
	tests := []struct {
		name   string
		record device.Record
	}{
		{"no serial", device.Record{Address: addrA, DisplayName: "Kitchen"}},
		{"no name", device.Record{Address: addrA, SerialNumber: "BF12-A00001"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _, bus := newTestBridge(t)

			err := b.registrar.Register(tt.record)
			assert.ErrorIs(t, err, ErrRegistrationSkipped)
			assert.Empty(t, bus.Messages)
			_, ok := b.State().Registration(addrA)
			assert.False(t, ok)
			assert.Equal(t, 1, b.registrar.Skipped())
		})
	}
}

func TestRegisterPublishFailureIsBestEffort(t *testing.T) {
	b, _, bus := newTestBridge(t, kitchen())
	bus.PublishError = mqtt.ErrNotConnected

	require.NoError(t, b.registrar.Register(kitchen()))
	_, ok := b.State().Registration(addrA)
	assert.True(t, ok)
}

func TestRegisterPublishWhileOfflineLogsAtDebug(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	bus := mqtt.NewFakeBus()
	bus.PublishError = mqtt.ErrNotConnected
	docs := discovery.NewBuilder(topic.NewBuilder("", ""), "", "")
	b := New(device.NewFakeSource(kitchen()), bus, docs, Options{}, zap.New(core))

	require.NoError(t, b.registrar.Register(kitchen()))
	b.HandleDeviceEvent(device.Event{Kind: device.EventPressed, Address: addrA})

	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
	assert.Equal(t, 8, logs.FilterMessage("Publish skipped, bus not connected").Len())
}

func TestRegisterPublishErrorLogsWarning(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	bus := mqtt.NewFakeBus()
	bus.PublishError = errors.New("queue full")
	docs := discovery.NewBuilder(topic.NewBuilder("", ""), "", "")
	b := New(device.NewFakeSource(kitchen()), bus, docs, Options{}, zap.New(core))

	require.NoError(t, b.registrar.Register(kitchen()))

	warns := logs.FilterMessage("Publish failed")
	require.Equal(t, 7, warns.Len())
	entry := warns.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "homeassistant/binary_sensor/BF12-A00001/config", entry.ContextMap()["topic"])
}

func TestAddedAndReadyRegister(t *testing.T) {
	for _, kind := range []device.EventKind{device.EventAdded, device.EventReady} {
		t.Run(string(kind), func(t *testing.T) {
			b, _, bus := newTestBridge(t, kitchen())

			b.HandleDeviceEvent(device.Event{Kind: kind, Address: addrA})

			assert.Len(t, bus.Messages, 7)
			_, ok := b.State().Registration(addrA)
			assert.True(t, ok)
		})
	}
}

func TestAddedIncompleteStaysObserved(t *testing.T) {
	rec := kitchen()
	rec.SerialNumber = ""
	b, _, bus := newTestBridge(t, rec)

	b.HandleDeviceEvent(device.Event{Kind: device.EventAdded, Address: addrA})

	assert.Empty(t, bus.Messages)
	assert.False(t, b.State().Has(addrA))
}

func TestConnectedRegistersThenPublishesOn(t *testing.T) {
	b, _, bus := newTestBridge(t, hallway())

	b.HandleDeviceEvent(device.Event{Kind: device.EventConnected, Address: addrB})

	require.Len(t, bus.Messages, 8)
	last := bus.Messages[7]
	assert.Equal(t, "flic/BF12-B00002/connected", last.Topic)
	assert.Equal(t, "ON", string(last.Payload))
	assert.True(t, last.Retain)

	connected, known := b.State().Connected(addrB)
	assert.True(t, known)
	assert.True(t, connected)
}

func TestRegisterRecordsConnectivity(t *testing.T) {
	b, _, _ := newTestBridge(t, kitchen(), hallway())

	require.NoError(t, b.HandleBusEvent(mqtt.BusEvent{Kind: mqtt.BusConnected}))

	connected, known := b.State().Connected(addrA)
	assert.True(t, known)
	assert.True(t, connected)
	connected, known = b.State().Connected(addrB)
	assert.True(t, known)
	assert.False(t, connected)
}

func TestDisconnectReconnectKeepsRegistration(t *testing.T) {
	b, _, bus := newTestBridge(t, kitchen())
	b.HandleDeviceEvent(device.Event{Kind: device.EventConnected, Address: addrA})
	before, ok := b.State().Registration(addrA)
	require.True(t, ok)
	bus.Reset()

	b.HandleDeviceEvent(device.Event{Kind: device.EventDisconnected, Address: addrA})

	require.Len(t, bus.Messages, 1)
	assert.Equal(t, "flic/BF12-A00001/connected", bus.Messages[0].Topic)
	assert.Equal(t, "OFF", string(bus.Messages[0].Payload))
	assert.True(t, bus.Messages[0].Retain)
	connected, _ := b.State().Connected(addrA)
	assert.False(t, connected)
	after, ok := b.State().Registration(addrA)
	assert.True(t, ok, "disconnect must not unregister")
	assert.Equal(t, before, after)

	bus.Reset()
	b.HandleDeviceEvent(device.Event{Kind: device.EventConnected, Address: addrA})

	after, ok = b.State().Registration(addrA)
	require.True(t, ok)
	assert.Equal(t, before, after)
	last := bus.Messages[len(bus.Messages)-1]
	assert.Equal(t, "flic/BF12-A00001/connected", last.Topic)
	assert.Equal(t, "ON", string(last.Payload))
	assert.True(t, last.Retain)
}

func TestDeletedClearsAllState(t *testing.T) {
	b, src, bus := newTestBridge(t, kitchen())
	b.HandleDeviceEvent(device.Event{Kind: device.EventConnected, Address: addrA})
	b.HandleDeviceEvent(device.Event{Kind: device.EventClickOrHold, Address: addrA})
	require.True(t, b.State().Holding(addrA))
	src.Remove(addrA)
	bus.Reset()

	b.HandleDeviceEvent(device.Event{Kind: device.EventDeleted, Address: addrA})

	assert.False(t, b.State().Has(addrA))
	_, registered := b.State().Registration(addrA)
	assert.False(t, registered)
	_, known := b.State().Connected(addrA)
	assert.False(t, known)
	assert.False(t, b.State().Holding(addrA))

	require.Len(t, bus.Messages, 1)
	assert.Equal(t, "homeassistant/event/BF12-A00001/click_event/config", bus.Messages[0].Topic)
	assert.Nil(t, bus.Messages[0].Payload)
	assert.True(t, bus.Messages[0].Retain)
}

func TestDeletedUnregisteredDeviceIsNoOp(t *testing.T) {
	b, _, bus := newTestBridge(t, kitchen())
	b.HandleDeviceEvent(device.Event{Kind: device.EventDisconnected, Address: addrA})
	bus.Reset()

	b.HandleDeviceEvent(device.Event{Kind: device.EventDeleted, Address: addrA})

	assert.Empty(t, bus.Messages)
	assert.False(t, b.State().Has(addrA))
}

func TestPressHoldReleaseSequence(t *testing.T) {
	b, _, bus := newTestBridge(t, kitchen())
	require.NoError(t, b.registrar.Register(kitchen()))
	bus.Reset()

	b.HandleDeviceEvent(device.Event{Kind: device.EventPressed, Address: addrA})
	b.HandleDeviceEvent(device.Event{Kind: device.EventClickOrHold, Address: addrA})
	assert.True(t, b.State().Holding(addrA))
	b.HandleDeviceEvent(device.Event{Kind: device.EventReleased, Address: addrA})

	var seq []string
	for _, m := range bus.Messages {
		if m.Topic == "flic/BF12-A00001/battery" {
			continue
		}
		seq = append(seq, strings.TrimPrefix(m.Topic, "flic/BF12-A00001/")+" "+string(m.Payload))
	}
	assert.Equal(t, []string{
		"binary_state ON",
		`click_event {"event_type":"hold"}`,
		`click_event {"event_type":"hold_released"}`,
		"binary_state OFF",
	}, seq)
	assert.False(t, b.State().Holding(addrA))

	retain := map[string]bool{}
	for _, m := range bus.Messages {
		retain[m.Topic+" "+string(m.Payload)] = m.Retain
	}
	assert.False(t, retain["flic/BF12-A00001/binary_state ON"])
	assert.True(t, retain["flic/BF12-A00001/binary_state OFF"])
	assert.False(t, retain[`flic/BF12-A00001/click_event {"event_type":"hold"}`])
	assert.True(t, retain["flic/BF12-A00001/battery 87"])
}

func TestReleaseWithoutHold(t *testing.T) {
	b, _, bus := newTestBridge(t, kitchen())
	require.NoError(t, b.registrar.Register(kitchen()))
	b.HandleDeviceEvent(device.Event{Kind: device.EventClickOrHold, Address: addrA, IsSingleClick: true})
	bus.Reset()

	b.HandleDeviceEvent(device.Event{Kind: device.EventReleased, Address: addrA})

	require.Len(t, bus.Messages, 1)
	assert.Equal(t, "flic/BF12-A00001/binary_state", bus.Messages[0].Topic)
	assert.Equal(t, "OFF", string(bus.Messages[0].Payload))
}

func TestClickPublishesEventThenBattery(t *testing.T) {
	tests := []struct {
		name  string
		event device.Event
		want  ClickType
	}{
		{"single", device.Event{IsSingleClick: true}, ClickSingle},
		{"double", device.Event{IsDoubleClick: true}, ClickDouble},
		{"hold", device.Event{}, ClickHold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _, bus := newTestBridge(t, kitchen())
			require.NoError(t, b.registrar.Register(kitchen()))
			bus.Reset()

			ev := tt.event
			ev.Kind = device.EventClickOrHold
			ev.Address = addrA
			b.HandleDeviceEvent(ev)

			require.Len(t, bus.Messages, 2)
			assert.Equal(t, "flic/BF12-A00001/click_event", bus.Messages[0].Topic)
			assert.False(t, bus.Messages[0].Retain)
			var p ClickPayload
			require.NoError(t, json.Unmarshal(bus.Messages[0].Payload, &p))
			assert.Equal(t, tt.want, p.EventType)

			assert.Equal(t, "flic/BF12-A00001/battery", bus.Messages[1].Topic)
			assert.Equal(t, "87", string(bus.Messages[1].Payload))
			assert.True(t, bus.Messages[1].Retain)

			assert.Equal(t, tt.want == ClickHold, b.State().Holding(addrA))
		})
	}
}

func TestClickWithoutNamePublishesNothing(t *testing.T) {
	rec := kitchen()
	rec.DisplayName = ""
	b, _, bus := newTestBridge(t, rec)

	b.HandleDeviceEvent(device.Event{Kind: device.EventClickOrHold, Address: addrA, IsSingleClick: true})

	assert.Empty(t, bus.Messages)
	_, ok := b.State().Registration(addrA)
	assert.False(t, ok)
	assert.False(t, b.State().Has(addrA))
}

func TestClickRegistersLateIdentity(t *testing.T) {
	b, _, bus := newTestBridge(t, kitchen())

	b.HandleDeviceEvent(device.Event{Kind: device.EventClickOrHold, Address: addrA, IsSingleClick: true})

	assert.Equal(t, "flic/BF12-A00001/click_event", bus.Messages[0].Topic)
	assert.Equal(t, 1, countTopic(bus.Messages, "homeassistant/binary_sensor/BF12-A00001/config"))
	assert.Equal(t, "flic/BF12-A00001/battery", bus.Messages[len(bus.Messages)-1].Topic)
	_, ok := b.State().Registration(addrA)
	assert.True(t, ok)
}

func TestRenameTriggersSingleReregistration(t *testing.T) {
	b, src, bus := newTestBridge(t, kitchen())
	require.NoError(t, b.registrar.Register(kitchen()))
	bus.Reset()

	renamed := kitchen()
	renamed.DisplayName = "Back Door"
	src.Put(renamed)

	click := device.Event{Kind: device.EventClickOrHold, Address: addrA, IsSingleClick: true}
	b.HandleDeviceEvent(click)
	b.HandleDeviceEvent(click)

	binaryConfig := "homeassistant/binary_sensor/BF12-A00001/config"
	assert.Equal(t, 1, countTopic(bus.Messages, binaryConfig))
	for _, m := range bus.Messages {
		if m.Topic == binaryConfig {
			var doc discovery.Entity
			require.NoError(t, json.Unmarshal(m.Payload, &doc))
			assert.Equal(t, "backdoor", doc.Device.Name)
		}
		assert.NotNil(t, m.Payload, "old discovery is not cleared on rename: %s", m.Topic)
	}

	reg, _ := b.State().Registration(addrA)
	assert.Equal(t, "backdoor", reg.Name)
}

func TestUnknownAddressIgnored(t *testing.T) {
	b, _, bus := newTestBridge(t)

	for _, kind := range []device.EventKind{
		device.EventAdded, device.EventConnected, device.EventReady, device.EventDisconnected,
		device.EventClickOrHold, device.EventPressed, device.EventReleased,
	} {
		b.HandleDeviceEvent(device.Event{Kind: kind, Address: "unknown"})
	}

	assert.Empty(t, bus.Messages)
	assert.Empty(t, b.State().Addresses())
}

func TestUnknownEventKindIgnored(t *testing.T) {
	b, _, bus := newTestBridge(t, kitchen())
	b.HandleDeviceEvent(device.Event{Kind: "bogus", Address: addrA})
	assert.Empty(t, bus.Messages)
}

func TestBusConnectedResyncsInListOrder(t *testing.T) {
	incomplete := device.Record{Address: "80:e4:da:70:00:03", SerialNumber: "BF12-C00003"}
	b, _, bus := newTestBridge(t, kitchen(), incomplete, hallway())

	require.NoError(t, b.HandleBusEvent(mqtt.BusEvent{Kind: mqtt.BusConnected}))

	require.Len(t, bus.Messages, 14)
	for i := 0; i < 7; i++ {
		assert.Contains(t, bus.Messages[i].Topic, "BF12-A00001")
		assert.Contains(t, bus.Messages[i+7].Topic, "BF12-B00002")
	}
	assert.Equal(t, 1, b.registrar.Skipped())

	// A second connect republishes the same set.
	first := append([]mqtt.Message(nil), bus.Messages...)
	bus.Reset()
	require.NoError(t, b.HandleBusEvent(mqtt.BusEvent{Kind: mqtt.BusConnected}))
	assert.Equal(t, first, bus.Messages)
}

func TestBusDisconnectedReconnects(t *testing.T) {
	b, _, bus := newTestBridge(t, kitchen())
	require.NoError(t, b.registrar.Register(kitchen()))
	bus.Reset()

	err := b.HandleBusEvent(mqtt.BusEvent{Kind: mqtt.BusDisconnected, Err: errors.New("EOF")})

	assert.NoError(t, err)
	assert.Equal(t, 1, bus.ConnectCalls)
	assert.Empty(t, bus.Messages)
	_, ok := b.State().Registration(addrA)
	assert.True(t, ok, "state survives disconnect")
}

func TestBusErrorIsFatal(t *testing.T) {
	b, _, _ := newTestBridge(t)

	cause := errors.New("broken pipe")
	err := b.HandleBusEvent(mqtt.BusEvent{Kind: mqtt.BusError, Err: cause})

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.ErrorIs(t, err, cause)

	err = b.HandleBusEvent(mqtt.BusEvent{Kind: mqtt.BusError})
	require.ErrorAs(t, err, &fatal)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	b, _, bus := newTestBridge(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, b.Run(ctx))
	assert.Equal(t, 1, bus.ConnectCalls)
}

func TestRunConnectError(t *testing.T) {
	b, _, bus := newTestBridge(t)
	bus.ConnectError = errors.New("refused")

	err := b.Run(context.Background())
	assert.ErrorContains(t, err, "refused")
}

func TestRunReturnsFatalAfterDelay(t *testing.T) {
	b, src, bus := newTestBridge(t, kitchen())
	src.Emit(device.Event{Kind: device.EventAdded, Address: addrA})
	src.Emit(device.Event{Kind: device.EventPressed, Address: addrA})
	bus.Emit(mqtt.BusEvent{Kind: mqtt.BusError, Err: errors.New("transport")})

	start := time.Now()
	err := b.Run(context.Background())

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	// Device events queued before the error are still handled during the delay.
	assert.Equal(t, 1, countTopic(bus.Messages, "flic/BF12-A00001/binary_state"))
	_, ok := b.State().Registration(addrA)
	assert.True(t, ok)
}

func TestRunReportsToTracker(t *testing.T) {
	src := device.NewFakeSource(kitchen(), hallway())
	bus := mqtt.NewFakeBus()
	bus.Connected = true
	tracker := status.NewTracker(time.Now(), status.Config{})
	docs := discovery.NewBuilder(topic.NewBuilder("", ""), "", "")
	b := New(src, bus, docs, Options{Tracker: tracker}, nil)

	b.HandleDeviceEvent(device.Event{Kind: device.EventConnected, Address: addrA})
	b.HandleDeviceEvent(device.Event{Kind: device.EventClickOrHold, Address: addrA})

	snap := tracker.Snapshot()
	assert.True(t, snap.MQTTConnected)
	require.Len(t, snap.Devices, 2)
	assert.Equal(t, status.DeviceStatus{
		Address:      addrA,
		SerialNumber: "BF12-A00001",
		Name:         "Kitchen",
		Registered:   true,
		Connected:    "ON",
		Holding:      true,
	}, snap.Devices[0])
	assert.False(t, snap.Devices[1].Registered)
	assert.Equal(t, status.ConnectedUnknown, snap.Devices[1].Connected)
	assert.Equal(t, 1, snap.EventCounts["connected"])
	assert.Equal(t, 1, snap.EventCounts["clickOrHold"])

	// Registration alone is enough to know connectivity.
	b.HandleDeviceEvent(device.Event{Kind: device.EventAdded, Address: addrB})
	snap = tracker.Snapshot()
	assert.True(t, snap.Devices[1].Registered)
	assert.Equal(t, status.ConnectedOff, snap.Devices[1].Connected)

	// A device dropped from the source still shows until its deletion arrives.
	src.Remove(addrA)
	b.HandleDeviceEvent(device.Event{Kind: device.EventPressed, Address: addrB})
	snap = tracker.Snapshot()
	require.Len(t, snap.Devices, 2)
	assert.Equal(t, addrA, snap.Devices[1].Address)
	assert.Equal(t, "kitchen", snap.Devices[1].Name)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ClickSingle, Classify(device.Event{IsSingleClick: true}))
	assert.Equal(t, ClickDouble, Classify(device.Event{IsDoubleClick: true}))
	assert.Equal(t, ClickHold, Classify(device.Event{}))
}

func TestFatalErrorMessage(t *testing.T) {
	err := &FatalError{Err: errors.New("boom")}
	assert.Equal(t, "bridge: fatal bus error: boom", err.Error())
}
