package mqtt

// Message is a single recorded publication.
type Message struct {
	Topic   string
	Payload []byte
	Retain  bool
}

// FakeBus records published messages for test assertions.
type FakeBus struct {
	// Messages contains every successful publication in order.
	Messages []Message

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// ConnectError, if set, will be returned by Connect.
	ConnectError error

	// ConnectCalls counts calls to Connect.
	ConnectCalls int

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	events chan BusEvent
}

// NewFakeBus creates a FakeBus for testing.
func NewFakeBus() *FakeBus {
	return &FakeBus{events: make(chan BusEvent, 16)}
}

// Publish records the message.
func (f *FakeBus) Publish(topic string, payload []byte, retain bool) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Messages = append(f.Messages, Message{Topic: topic, Payload: payload, Retain: retain})
	return nil
}

// Connect counts the attempt.
func (f *FakeBus) Connect() error {
	f.ConnectCalls++
	return f.ConnectError
}

// Events returns the scripted event channel.
func (f *FakeBus) Events() <-chan BusEvent {
	return f.events
}

// Emit queues a lifecycle event for delivery.
func (f *FakeBus) Emit(ev BusEvent) {
	f.events <- ev
}

// IsConnected reports whether the fake bus is "connected".
func (f *FakeBus) IsConnected() bool {
	return f.Connected
}

// Close marks the bus as closed.
func (f *FakeBus) Close() error {
	f.Closed = true
	return nil
}

// Topics returns the topics of all recorded messages in order.
func (f *FakeBus) Topics() []string {
	out := make([]string, len(f.Messages))
	for i, m := range f.Messages {
		out[i] = m.Topic
	}
	return out
}

// Reset clears recorded messages and injected errors.
func (f *FakeBus) Reset() {
	f.Messages = nil
	f.PublishError = nil
	f.ConnectError = nil
	f.ConnectCalls = 0
	f.Closed = false
	f.Connected = false
}
