package device

import (
	"errors"
	"sync"
)

// EventType distinguishes connects from disconnects
type EventType int

const (
	Connected EventType = iota
	Disconnected
)

func (t EventType) String() string {
	if t == Connected {
		return "connected"
	}
	return "disconnected"
}

// Event is a single connect or disconnect observed on a device bus
type Event struct {
	Type   EventType
	Device Device
}

// ErrUnsupportedPlatform is returned by the platform bus constructors on operating
// systems without a device bus implementation
var ErrUnsupportedPlatform = errors.New("device buses are not supported on this platform")

// Observer is the capability shared by the capture and the playback observers
type Observer interface {
	// Devices returns a snapshot of the currently present devices
	Devices() []Device

	// Subscribe returns a channel receiving every connect and disconnect, in bus order
	Subscribe() <-chan Event

	// DefaultDevice returns the system default device for the given media kind, if any
	DefaultDevice(kind MediaKind) (Device, bool)

	// Close stops listening to the bus and closes all subscriptions
	Close() error
}

const subscriberBuffer = 32

// broadcaster fans events out to every subscriber, keeping per-subscriber order
type broadcaster struct {
	lock   sync.Mutex
	subs   []chan Event
	closed bool
}

func (b *broadcaster) subscribe() <-chan Event {
	b.lock.Lock()
	defer b.lock.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch
	}

	b.subs = append(b.subs, ch)

	return ch
}

func (b *broadcaster) publish(event Event) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		sub <- event
	}
}

func (b *broadcaster) close() {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, sub := range b.subs {
		close(sub)
	}
	b.subs = nil
}
