package logic

import "time"

// button tracks debounce and gesture state for one input.
type button struct {
	ch ChannelState

	downSince   time.Time
	holdFired   bool
	clicks      int // releases waiting for the double click window
	lastRelease time.Time

	// Set when the baseline was taken with the button down; cleared on release.
	suppressed bool
}

// Detector turns sampled button levels into gestures.
type Detector struct {
	timing    Timing
	buttons   []button
	baselined bool
	counts    EventCounts
}

// NewDetector creates a detector for n buttons.
func NewDetector(n int, timing Timing) *Detector {
	return &Detector{
		timing:  timing,
		buttons: make([]button, n),
	}
}

// Process takes a new input sample and returns the gestures it completes.
// Gestures are only returned once every button has a baseline. Within a
// sample, buttons are reported in index order.
func (d *Detector) Process(input Input) []Gesture {
	transitions := make([]*State, len(d.buttons))
	for i := range d.buttons {
		down := i < len(input.Down) && input.Down[i]
		transitions[i] = d.processChannel(&d.buttons[i].ch, stateOf(down), input.Time)
	}

	if !d.baselined {
		for i := range d.buttons {
			if !d.buttons[i].ch.Baselined {
				return nil // No events until baseline established
			}
		}
		d.baselined = true
		for i := range d.buttons {
			d.buttons[i].suppressed = d.buttons[i].ch.Stable == StateDown
		}
		return nil
	}

	var gestures []Gesture
	for i := range d.buttons {
		gestures = append(gestures, d.step(i, transitions[i], input.Time)...)
	}
	d.count(gestures)
	return gestures
}

// step advances the gesture state of button i.
func (d *Detector) step(i int, transition *State, now time.Time) []Gesture {
	b := &d.buttons[i]
	emit := func(kind GestureKind) Gesture {
		return Gesture{Time: now, Button: i, Kind: kind}
	}

	if b.suppressed {
		if transition != nil && *transition == StateUp {
			b.suppressed = false
		}
		return nil
	}

	var out []Gesture
	if transition != nil {
		switch *transition {
		case StateDown:
			// A press after the window closed starts a new gesture even
			// when no sample landed between the window end and the press.
			if b.clicks == 1 && now.Sub(b.lastRelease) >= d.timing.DoubleClick {
				out = append(out, emit(GestureClick))
				b.clicks = 0
			}
			out = append(out, emit(GesturePressed))
			b.downSince = now
			b.holdFired = false
		case StateUp:
			out = append(out, emit(GestureReleased))
			if !b.holdFired {
				b.clicks++
				b.lastRelease = now
				if b.clicks >= 2 {
					out = append(out, emit(GestureDoubleClick))
					b.clicks = 0
				}
			}
		}
	}

	if b.ch.Stable == StateDown {
		if !b.holdFired && now.Sub(b.downSince) >= d.timing.Hold {
			// A pending single click is reported before the hold that follows it.
			if b.clicks > 0 {
				out = append(out, emit(GestureClick))
				b.clicks = 0
			}
			out = append(out, emit(GestureHold))
			b.holdFired = true
		}
		return out
	}

	if b.clicks == 1 && now.Sub(b.lastRelease) >= d.timing.DoubleClick {
		out = append(out, emit(GestureClick))
		b.clicks = 0
	}
	return out
}

// processChannel handles debounce logic for a single button.
// Returns the new stable state if a transition occurred, nil otherwise.
func (d *Detector) processChannel(ch *ChannelState, newState State, now time.Time) *State {
	// First time seeing this channel
	if !ch.Baselined {
		if ch.Pending == "" || ch.Pending != newState {
			// Start observing, or state changed during baseline: restart
			ch.Pending = newState
			ch.PendingSince = now
		}

		if now.Sub(ch.PendingSince) >= d.timing.Debounce {
			ch.Stable = newState
			ch.Baselined = true
			ch.Pending = ""
		}
		return nil
	}

	// Already baselined - detect transitions
	if newState == ch.Stable {
		// No change from stable state, clear any pending
		ch.Pending = ""
		return nil
	}

	// State differs from stable
	if ch.Pending != newState {
		ch.Pending = newState
		ch.PendingSince = now
	}

	if now.Sub(ch.PendingSince) >= d.timing.Debounce {
		ch.Stable = newState
		ch.Pending = ""
		s := newState
		return &s
	}

	return nil
}

func (d *Detector) count(gestures []Gesture) {
	for _, g := range gestures {
		switch g.Kind {
		case GesturePressed:
			d.counts.Pressed++
		case GestureReleased:
			d.counts.Released++
		case GestureClick:
			d.counts.Click++
		case GestureDoubleClick:
			d.counts.DoubleClick++
		case GestureHold:
			d.counts.Hold++
		}
	}
}

func stateOf(down bool) State {
	if down {
		return StateDown
	}
	return StateUp
}

// IsBaselined returns whether the detector has established a baseline.
func (d *Detector) IsBaselined() bool {
	return d.baselined
}

// CurrentState returns the stable state of button i.
func (d *Detector) CurrentState(i int) State {
	return d.buttons[i].ch.Stable
}

// Counts returns the gesture counts since startup.
func (d *Detector) Counts() EventCounts {
	return d.counts
}
