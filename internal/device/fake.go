package device

// FakeSource is a test double holding an in-memory device table.
type FakeSource struct {
	records map[string]Record
	order   []string
	events  chan Event
}

// NewFakeSource creates a FakeSource seeded with the given records.
// ListAll returns them in the order given.
func NewFakeSource(records ...Record) *FakeSource {
	f := &FakeSource{
		records: make(map[string]Record),
		events:  make(chan Event, 64),
	}
	for _, r := range records {
		f.Put(r)
	}
	return f
}

// Put adds or replaces a record. New addresses are appended to the listing order.
func (f *FakeSource) Put(r Record) {
	if _, ok := f.records[r.Address]; !ok {
		f.order = append(f.order, r.Address)
	}
	f.records[r.Address] = r
}

// Remove drops a record from the table.
func (f *FakeSource) Remove(address string) {
	if _, ok := f.records[address]; !ok {
		return
	}
	delete(f.records, address)
	for i, a := range f.order {
		if a == address {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

// Lookup returns the record for address.
func (f *FakeSource) Lookup(address string) (Record, bool) {
	r, ok := f.records[address]
	return r, ok
}

// ListAll returns all records in insertion order.
func (f *FakeSource) ListAll() []Record {
	out := make([]Record, 0, len(f.order))
	for _, a := range f.order {
		out = append(out, f.records[a])
	}
	return out
}

// Events returns the scripted event channel.
func (f *FakeSource) Events() <-chan Event {
	return f.events
}

// Emit queues an event for delivery.
func (f *FakeSource) Emit(e Event) {
	f.events <- e
}
