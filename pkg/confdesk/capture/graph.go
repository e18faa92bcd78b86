package capture

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MixyLabs/confdesk/pkg/confdesk/device"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const defaultFrameInterval = time.Second / 30

var errUnsupportedMedia = errors.New("device carries no capturable media")

type graphInput struct {
	dev device.Device
}

func (in graphInput) Device() device.Device {
	return in.dev
}

// Wiring is a committed view of a Graph
type Wiring struct {
	Inputs  []Input
	Outputs []Output
}

// Device returns the committed input carrying the given media kind, preferring
// an input of exactly that kind over a muxed one
func (w Wiring) Device(kind device.MediaKind) (device.Device, bool) {
	var muxed *device.Device

	for _, in := range w.Inputs {
		d := in.Device()
		if d.Kind == kind {
			return d, true
		}
		if muxed == nil && d.HasMedia(kind) {
			muxed = &d
		}
	}

	if muxed != nil {
		return *muxed, true
	}

	return device.Device{}, false
}

// Graph is an in-memory Session. Changes made inside a configuration block are
// staged and published on the outermost commit. While running, it feeds frames
// from the video input to every FrameReceiver output.
type Graph struct {
	logger *zap.SugaredLogger
	clock  clockwork.Clock

	lock      sync.Mutex
	inputs    []Input
	outputs   []Output
	committed Wiring
	depth     int
	onCommit  func(Wiring)

	running  bool
	stopPump chan struct{}
	pumpDone chan struct{}
	seq      uint64

	frameInterval time.Duration
}

func NewGraph(logger *zap.SugaredLogger, clock clockwork.Clock) *Graph {
	g := &Graph{
		logger:        logger.Named("graph"),
		clock:         clock,
		frameInterval: defaultFrameInterval,
	}

	g.logger.Debug("Created capture graph instance")

	return g
}

// OnCommit installs a hook receiving the wiring after every outermost commit
func (g *Graph) OnCommit(hook func(Wiring)) {
	g.lock.Lock()
	defer g.lock.Unlock()

	g.onCommit = hook
}

func (g *Graph) SetFrameInterval(interval time.Duration) {
	g.lock.Lock()
	defer g.lock.Unlock()

	g.frameInterval = interval
}

func (g *Graph) BeginConfiguration() {
	g.lock.Lock()
	defer g.lock.Unlock()

	g.depth++
}

func (g *Graph) CommitConfiguration() {
	g.lock.Lock()

	if g.depth == 0 {
		g.lock.Unlock()
		g.logger.Warn("Commit without a matching begin")
		return
	}

	g.depth--
	if g.depth > 0 {
		g.lock.Unlock()
		return
	}

	g.committed = Wiring{
		Inputs:  slices.Clone(g.inputs),
		Outputs: slices.Clone(g.outputs),
	}
	wiring := g.committed
	hook := g.onCommit
	g.lock.Unlock()

	g.logger.Debugw("Committed configuration", "inputs", len(wiring.Inputs), "outputs", len(wiring.Outputs))

	if hook != nil {
		hook(wiring)
	}
}

// Committed returns the wiring visible to the media pipeline
func (g *Graph) Committed() Wiring {
	g.lock.Lock()
	defer g.lock.Unlock()

	return Wiring{
		Inputs:  slices.Clone(g.committed.Inputs),
		Outputs: slices.Clone(g.committed.Outputs),
	}
}

func (g *Graph) Inputs() []Input {
	g.lock.Lock()
	defer g.lock.Unlock()

	return slices.Clone(g.inputs)
}

func (g *Graph) Outputs() []Output {
	g.lock.Lock()
	defer g.lock.Unlock()

	return slices.Clone(g.outputs)
}

func (g *Graph) NewInput(d device.Device) (Input, error) {
	if d.HardwareID == "" {
		return nil, errors.New("device has no hardware id")
	}
	if d.Kind == device.Other {
		return nil, fmt.Errorf("%w: %s", errUnsupportedMedia, d.Kind)
	}

	return graphInput{dev: d}, nil
}

// CanAddInput rejects disconnected devices and devices that are already wired
func (g *Graph) CanAddInput(in Input) bool {
	if !in.Device().IsConnected {
		return false
	}

	g.lock.Lock()
	defer g.lock.Unlock()

	for _, existing := range g.inputs {
		if existing.Device().HardwareID == in.Device().HardwareID {
			return false
		}
	}

	return true
}

func (g *Graph) AddInput(in Input) {
	g.lock.Lock()
	defer g.lock.Unlock()

	g.inputs = append(g.inputs, in)
}

func (g *Graph) RemoveInput(in Input) {
	g.lock.Lock()
	defer g.lock.Unlock()

	g.inputs = slices.DeleteFunc(g.inputs, func(existing Input) bool {
		return existing.Device().HardwareID == in.Device().HardwareID
	})
}

func (g *Graph) CanAddOutput(out Output) bool {
	g.lock.Lock()
	defer g.lock.Unlock()

	return !slices.ContainsFunc(g.outputs, func(existing Output) bool {
		return existing.ID() == out.ID()
	})
}

func (g *Graph) AddOutput(out Output) {
	g.lock.Lock()
	defer g.lock.Unlock()

	g.outputs = append(g.outputs, out)
}

func (g *Graph) RemoveOutput(out Output) {
	g.lock.Lock()
	defer g.lock.Unlock()

	g.outputs = slices.DeleteFunc(g.outputs, func(existing Output) bool {
		return existing.ID() == out.ID()
	})
}

// HasConnection reports whether out is attached and a video input feeds it
func (g *Graph) HasConnection(out Output) bool {
	g.lock.Lock()
	defer g.lock.Unlock()

	attached := slices.ContainsFunc(g.outputs, func(existing Output) bool {
		return existing.ID() == out.ID()
	})
	if !attached {
		return false
	}

	return slices.ContainsFunc(g.inputs, func(in Input) bool {
		return in.Device().HasMedia(device.Video)
	})
}

func (g *Graph) StartRunning() {
	g.lock.Lock()
	defer g.lock.Unlock()

	if g.running {
		return
	}

	g.running = true
	g.stopPump = make(chan struct{})
	g.pumpDone = make(chan struct{})

	go g.pump(g.clock.NewTicker(g.frameInterval), g.stopPump, g.pumpDone)

	g.logger.Debug("Capture graph started")
}

func (g *Graph) StopRunning() {
	g.lock.Lock()

	if !g.running {
		g.lock.Unlock()
		return
	}

	g.running = false
	stop, done := g.stopPump, g.pumpDone
	g.lock.Unlock()

	close(stop)
	<-done

	g.logger.Debug("Capture graph stopped")
}

func (g *Graph) IsRunning() bool {
	g.lock.Lock()
	defer g.lock.Unlock()

	return g.running
}

func (g *Graph) pump(ticker clockwork.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.Chan():
			g.deliver(now)
		case <-stop:
			return
		}
	}
}

// deliver hands one frame from the committed video input to the committed receivers
func (g *Graph) deliver(now time.Time) {
	g.lock.Lock()
	video, ok := g.committed.Device(device.Video)
	if !ok {
		g.lock.Unlock()
		return
	}

	g.seq++
	frame := Frame{Seq: g.seq, DeviceID: video.HardwareID, Timestamp: now}
	outputs := slices.Clone(g.committed.Outputs)
	g.lock.Unlock()

	for _, out := range outputs {
		if receiver, ok := out.(FrameReceiver); ok {
			receiver.Receive(frame)
		}
	}
}
