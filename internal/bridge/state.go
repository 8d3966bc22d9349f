package bridge

import "sort"

// Registration records the identity a device was last registered under.
type Registration struct {
	SerialNumber string
	Name         string // normalized display name
}

// State is the bridge's derived per-device state, keyed by device address.
// It is owned by the Bridge run loop; no other goroutine may touch it.
type State struct {
	registered map[string]Registration
	holding    map[string]bool
	connected  map[string]bool
}

// NewState creates an empty State.
func NewState() *State {
	return &State{
		registered: make(map[string]Registration),
		holding:    make(map[string]bool),
		connected:  make(map[string]bool),
	}
}

// Registration returns the registration for address, if any.
func (s *State) Registration(address string) (Registration, bool) {
	r, ok := s.registered[address]
	return r, ok
}

func (s *State) setRegistration(address string, r Registration) {
	s.registered[address] = r
}

// Holding reports whether the last click-type event for address was an
// unreleased hold.
func (s *State) Holding(address string) bool {
	return s.holding[address]
}

func (s *State) setHolding(address string, holding bool) {
	s.holding[address] = holding
}

// Connected returns the last known connectivity of address and whether it
// is known at all.
func (s *State) Connected(address string) (connected, known bool) {
	connected, known = s.connected[address]
	return connected, known
}

func (s *State) setConnected(address string, connected bool) {
	s.connected[address] = connected
}

// Forget removes every entry for address.
func (s *State) Forget(address string) {
	delete(s.registered, address)
	delete(s.holding, address)
	delete(s.connected, address)
}

// Has reports whether any entry exists for address.
func (s *State) Has(address string) bool {
	_, r := s.registered[address]
	_, h := s.holding[address]
	_, c := s.connected[address]
	return r || h || c
}

// Addresses returns every address with at least one entry, sorted.
func (s *State) Addresses() []string {
	seen := make(map[string]struct{})
	for a := range s.registered {
		seen[a] = struct{}{}
	}
	for a := range s.holding {
		seen[a] = struct{}{}
	}
	for a := range s.connected {
		seen[a] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
