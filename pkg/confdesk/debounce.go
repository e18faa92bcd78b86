package confdesk

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const defaultReconfigureDebounce = 50 * time.Millisecond

// debouncer coalesces bursts of triggers into one trailing call. The window opens
// on the first trigger and is not extended by later ones, so a steady stream of
// triggers still fires once per window.
type debouncer struct {
	clock clockwork.Clock
	fire  func()

	lock    sync.Mutex
	window  time.Duration
	pending clockwork.Timer
}

func newDebouncer(clock clockwork.Clock, window time.Duration, fire func()) *debouncer {
	if window <= 0 {
		window = defaultReconfigureDebounce
	}

	return &debouncer{
		clock:  clock,
		fire:   fire,
		window: window,
	}
}

func (d *debouncer) Trigger() {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.pending != nil {
		return
	}

	d.pending = d.clock.AfterFunc(d.window, func() {
		d.lock.Lock()
		d.pending = nil
		d.lock.Unlock()

		d.fire()
	})
}

// SetWindow changes the window for triggers that open a new one
func (d *debouncer) SetWindow(window time.Duration) {
	if window <= 0 {
		return
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	d.window = window
}

// Stop drops a pending call, if any
func (d *debouncer) Stop() {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
}
