package capture

import (
	"errors"
	"fmt"
	"slices"

	"github.com/MixyLabs/confdesk/pkg/confdesk/device"
	"go.uber.org/multierr"
)

var (
	ErrCannotCreateInput = errors.New("failed to create input")
	ErrCannotAddInput    = errors.New("can not add as input")
	ErrCannotAddOutput   = errors.New("can not add video output")
	ErrNoConnection      = errors.New("failed to create connection to video output")
)

// InputError is a failure to wire a specific device
type InputError struct {
	DeviceID string
	Err      error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("device(%s): %v", e.DeviceID, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// OpKind is a single kind of wiring change
type OpKind int

const (
	AddInput OpKind = iota
	RemoveInput
	AddOutput
	RemoveOutput
)

func (k OpKind) String() string {
	switch k {
	case AddInput:
		return "add_input"
	case RemoveInput:
		return "remove_input"
	case AddOutput:
		return "add_output"
	case RemoveOutput:
		return "remove_output"
	default:
		return "unknown"
	}
}

// Op is a wiring change that was applied to the session
type Op struct {
	Kind   OpKind
	Target string
}

// Result is the outcome of one reconfiguration. Err combines every failure, the
// operations that could be applied were applied regardless.
type Result struct {
	Ops []Op
	Err error
}

// Errors splits Err into the individual failures
func (r Result) Errors() []error {
	return multierr.Errors(r.Err)
}

// Configurator converges a session towards a desired set of devices.
// It is meant to be used for a single reconfiguration.
type Configurator struct {
	session Session
	inputs  []Input
}

// NewConfigurator snapshots the session's current inputs. The snapshot follows the
// configurator's own changes during Reconfigure.
func NewConfigurator(session Session) *Configurator {
	return &Configurator{
		session: session,
		inputs:  append([]Input(nil), session.Inputs()...),
	}
}

// Reconfigure wires video, audio and sink into the session in one configuration
// transaction. A nil device or sink empties its slot.
func (c *Configurator) Reconfigure(video, audio *device.Device, sink Output) (result Result) {
	c.session.BeginConfiguration()
	defer c.session.CommitConfiguration()

	// a muxed device may fill one slot while the other slot is being changed
	keep := map[string]struct{}{}
	for _, d := range []*device.Device{video, audio} {
		if d != nil {
			keep[d.HardwareID] = struct{}{}
		}
	}

	if err := c.addOrRemove(video, device.Video, keep, &result); err != nil {
		result.Err = multierr.Append(result.Err, err)
	}

	if err := c.addOrRemove(audio, device.Audio, keep, &result); err != nil {
		result.Err = multierr.Append(result.Err, err)
	}

	if err := c.addOrRemoveOutput(sink, &result); err != nil {
		result.Err = multierr.Append(result.Err, err)
	}

	return result
}

func (c *Configurator) addOrRemove(d *device.Device, kind device.MediaKind, keep map[string]struct{}, result *Result) error {
	if d == nil {
		c.removeInput(kind, keep, result)
		return nil
	}

	for _, in := range c.inputs {
		if in.Device().HardwareID == d.HardwareID {
			// already wired, possibly by the other slot; whatever else held this slot goes
			c.removeInput(kind, keep, result)
			return nil
		}
	}

	in, err := c.session.NewInput(*d)
	if err != nil {
		return &InputError{DeviceID: d.HardwareID, Err: fmt.Errorf("%w: %w", ErrCannotCreateInput, err)}
	}

	if !c.session.CanAddInput(in) {
		return &InputError{DeviceID: d.HardwareID, Err: ErrCannotAddInput}
	}

	c.removeInput(kind, keep, result)

	c.session.AddInput(in)
	c.inputs = append(c.inputs, in)
	result.Ops = append(result.Ops, Op{Kind: AddInput, Target: d.HardwareID})

	return nil
}

// removeInput detaches the input currently filling the kind's slot. An input of
// exactly that kind wins over a muxed one, and devices in keep are never detached.
func (c *Configurator) removeInput(kind device.MediaKind, keep map[string]struct{}, result *Result) {
	idx := c.slotInput(kind, keep, func(d device.Device) bool { return d.Kind == kind })
	if idx < 0 {
		idx = c.slotInput(kind, keep, func(d device.Device) bool { return d.HasMedia(kind) })
	}
	if idx < 0 {
		return
	}

	in := c.inputs[idx]
	c.session.RemoveInput(in)
	c.inputs = slices.Delete(c.inputs, idx, idx+1)
	result.Ops = append(result.Ops, Op{Kind: RemoveInput, Target: in.Device().HardwareID})
}

func (c *Configurator) slotInput(kind device.MediaKind, keep map[string]struct{}, match func(device.Device) bool) int {
	return slices.IndexFunc(c.inputs, func(in Input) bool {
		if _, kept := keep[in.Device().HardwareID]; kept {
			return false
		}
		return match(in.Device())
	})
}

func (c *Configurator) addOrRemoveOutput(sink Output, result *Result) error {
	// the previous output is detached even when it is sink itself
	if outputs := c.session.Outputs(); len(outputs) > 0 {
		previous := outputs[0]
		c.session.RemoveOutput(previous)
		result.Ops = append(result.Ops, Op{Kind: RemoveOutput, Target: previous.ID()})
	}

	if sink == nil {
		return nil
	}

	if !c.session.CanAddOutput(sink) {
		return ErrCannotAddOutput
	}

	c.session.AddOutput(sink)
	result.Ops = append(result.Ops, Op{Kind: AddOutput, Target: sink.ID()})

	if !c.session.HasConnection(sink) {
		return ErrNoConnection
	}

	return nil
}
