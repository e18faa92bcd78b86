package device

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// PlaybackObserver observes audio output devices. The bus only says "something
// changed", so every signal re-enumerates and diffs against the previous snapshot.
type PlaybackObserver struct {
	logger  *zap.SugaredLogger
	session *DiscoverySession

	lock    sync.RWMutex
	devices []Device

	events   broadcaster
	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewPlaybackObserver takes ownership of session, enumerates the current devices
// and starts listening for changes
func NewPlaybackObserver(logger *zap.SugaredLogger, session *DiscoverySession) *PlaybackObserver {
	po := &PlaybackObserver{
		logger:  logger.Named("playback_observer"),
		session: session,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	po.devices = po.enumerate()

	go po.run()

	po.logger.Debugw("Created playback observer instance", "devices", len(po.devices))

	return po
}

func (po *PlaybackObserver) run() {
	defer close(po.stopped)

	for {
		select {
		case <-po.session.Changes():
			po.update()
		case <-po.stop:
			return
		}
	}
}

func (po *PlaybackObserver) enumerate() []Device {
	devices, err := po.session.Devices()
	if err != nil {
		po.logger.Warnw("Failed to enumerate playback devices", "error", err)
		return []Device{}
	}

	return devices
}

func (po *PlaybackObserver) update() {
	current := po.enumerate()

	po.lock.Lock()
	connected, disconnected := Diff(po.devices, current)
	po.devices = current
	po.lock.Unlock()

	for _, d := range connected {
		po.logger.Debugw("Playback device connected", "device", d)
		po.events.publish(Event{Type: Connected, Device: d.WithConnected(true)})
	}

	for _, d := range disconnected {
		po.logger.Debugw("Playback device disconnected", "device", d)
		po.events.publish(Event{Type: Disconnected, Device: d.WithConnected(false)})
	}
}

func (po *PlaybackObserver) Devices() []Device {
	po.lock.RLock()
	defer po.lock.RUnlock()

	return append([]Device(nil), po.devices...)
}

func (po *PlaybackObserver) Subscribe() <-chan Event {
	return po.events.subscribe()
}

// DefaultDevice returns the default output; only Audio is meaningful here
func (po *PlaybackObserver) DefaultDevice(kind MediaKind) (Device, bool) {
	if kind != Audio {
		return Device{}, false
	}

	d, err := po.session.DefaultDevice()
	if err != nil {
		po.logger.Debugw("No default playback device", "error", err)
		return Device{}, false
	}

	return d, true
}

func (po *PlaybackObserver) Close() error {
	var err error

	po.stopOnce.Do(func() {
		close(po.stop)
		<-po.stopped

		po.events.close()

		if closeErr := po.session.Close(); closeErr != nil {
			err = fmt.Errorf("close discovery session: %w", closeErr)
		}

		po.logger.Debug("Closed playback observer")
	})

	return err
}
