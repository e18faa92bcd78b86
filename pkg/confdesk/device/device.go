// Package device describes capture and playback hardware and turns the
// platform's device buses into a uniform stream of connect/disconnect events.
package device

import (
	"cmp"
	"fmt"
)

// Direction tells whether a device produces (Input) or consumes (Output) a buffer
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	switch d {
	case Input:
		return "Input"
	case Output:
		return "Output"
	default:
		return "Unknown"
	}
}

func (d Direction) key() string {
	if d == Output {
		return "playback"
	}
	return "capture"
}

// MediaKind is the kind of media a device carries
type MediaKind int

const (
	Muxed MediaKind = iota
	Video
	Audio
	Other
)

func (k MediaKind) String() string {
	names := [...]string{
		"Audio/Video",
		"Video",
		"Audio",
		"Other",
	}

	if k < Muxed || k > Other {
		return "Unknown"
	}

	return names[k]
}

func (k MediaKind) key() string {
	keys := [...]string{"muxed", "video", "audio", "other"}

	if k < Muxed || k > Other {
		return "unknown"
	}

	return keys[k]
}

// Device is a shallow descriptor of a capture or playback device
type Device struct {
	HardwareID  string    `json:"hardware_id" mapstructure:"hardware_id"`
	Name        string    `json:"name" mapstructure:"name"`
	Direction   Direction `json:"direction" mapstructure:"direction"`
	Kind        MediaKind `json:"kind" mapstructure:"kind"`
	IsConnected bool      `json:"is_connected" mapstructure:"is_connected"`
}

// Identity is the comparable identity of a device snapshot. It leaves out the
// connection state, so two snapshots of one device compare equal.
type Identity struct {
	HardwareID string
	Name       string
	Kind       MediaKind
	Direction  Direction
}

// Identity returns d's identity tuple
func (d Device) Identity() Identity {
	return Identity{
		HardwareID: d.HardwareID,
		Name:       d.Name,
		Kind:       d.Kind,
		Direction:  d.Direction,
	}
}

// Equal reports whether d and other are the same device, ignoring IsConnected
func (d Device) Equal(other Device) bool {
	return d.Identity() == other.Identity()
}

// Key returns the stable, launch-independent key of d.
// The hardware id may change between launches, the key does not.
func (d Device) Key() string {
	return d.Name + d.Kind.key() + d.Direction.key()
}

// HasMedia reports whether d carries media of the given kind
func (d Device) HasMedia(kind MediaKind) bool {
	if d.Kind == kind {
		return true
	}

	return d.Kind == Muxed && (kind == Video || kind == Audio)
}

// AsDisconnected returns a copy of d marked as disconnected
func (d Device) AsDisconnected() Device {
	d.IsConnected = false
	return d
}

// WithConnected returns a copy of d with the given connection state
func (d Device) WithConnected(connected bool) Device {
	d.IsConnected = connected
	return d
}

func (d Device) String() string {
	status := "disconnected"
	if d.IsConnected {
		status = "connected"
	}

	return fmt.Sprintf("Device(%s,%s,%s,%s)", d.Name, d.Direction, d.Kind, status)
}

// Compare orders devices by media kind, then direction, then name
func Compare(a, b Device) int {
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Direction, b.Direction); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}
