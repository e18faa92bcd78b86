// Package capture wires capture devices into a capture session and reconciles
// that wiring against a desired configuration.
package capture

import (
	"github.com/MixyLabs/confdesk/pkg/confdesk/device"
)

// Input is a device attached to a session as a source
type Input interface {
	Device() device.Device
}

// Output consumes buffers produced by a session's inputs
type Output interface {
	ID() string
}

// Session is a live media graph. Changes made between BeginConfiguration and
// CommitConfiguration become visible to the media pipeline together.
type Session interface {
	BeginConfiguration()
	CommitConfiguration()

	Inputs() []Input
	Outputs() []Output

	// NewInput builds an input for d without attaching it
	NewInput(d device.Device) (Input, error)
	CanAddInput(in Input) bool
	AddInput(in Input)
	RemoveInput(in Input)

	CanAddOutput(out Output) bool
	AddOutput(out Output)
	RemoveOutput(out Output)

	// HasConnection reports whether out is attached and receives video
	HasConnection(out Output) bool

	StartRunning()
	StopRunning()
	IsRunning() bool
}
