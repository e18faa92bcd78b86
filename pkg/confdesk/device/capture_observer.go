package device

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// CaptureNotification is a discrete bus notification carrying the device that changed
type CaptureNotification struct {
	Device    Device
	Connected bool
}

// CaptureBus is the platform's capture device discovery mechanism
type CaptureBus interface {
	// Devices enumerates the capture devices currently present
	Devices() ([]Device, error)

	// Default returns the system default capture device for a media kind
	Default(kind MediaKind) (Device, bool)

	// Notifications delivers connects and disconnects in the order the OS reports them.
	// The channel is closed when the bus is closed.
	Notifications() <-chan CaptureNotification

	Close() error
}

// CaptureObserver observes audio and video capture devices
type CaptureObserver struct {
	logger *zap.SugaredLogger
	bus    CaptureBus

	lock    sync.RWMutex
	devices []Device

	events    broadcaster
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewCaptureObserver takes ownership of bus, enumerates the current devices and
// starts listening for notifications
func NewCaptureObserver(logger *zap.SugaredLogger, bus CaptureBus) *CaptureObserver {
	co := &CaptureObserver{
		logger:  logger.Named("capture_observer"),
		bus:     bus,
		stopped: make(chan struct{}),
	}

	co.update()

	go co.run()

	co.logger.Debugw("Created capture observer instance", "devices", len(co.devices))

	return co
}

func (co *CaptureObserver) run() {
	defer close(co.stopped)

	for notification := range co.bus.Notifications() {
		// enumeration is cheap, keep the list exact before anyone hears about the change
		co.update()

		eventType := Disconnected
		if notification.Connected {
			eventType = Connected
		}

		co.logger.Debugw("Capture device changed", "device", notification.Device, "event", eventType)

		co.events.publish(Event{
			Type:   eventType,
			Device: notification.Device.WithConnected(notification.Connected),
		})
	}
}

func (co *CaptureObserver) update() {
	devices, err := co.bus.Devices()
	if err != nil {
		co.logger.Warnw("Failed to enumerate capture devices", "error", err)
		devices = []Device{}
	}

	co.lock.Lock()
	co.devices = devices
	co.lock.Unlock()
}

func (co *CaptureObserver) Devices() []Device {
	co.lock.RLock()
	defer co.lock.RUnlock()

	return append([]Device(nil), co.devices...)
}

func (co *CaptureObserver) Subscribe() <-chan Event {
	return co.events.subscribe()
}

func (co *CaptureObserver) DefaultDevice(kind MediaKind) (Device, bool) {
	return co.bus.Default(kind)
}

func (co *CaptureObserver) Close() error {
	var err error

	co.closeOnce.Do(func() {
		if closeErr := co.bus.Close(); closeErr != nil {
			co.logger.Warnw("Failed to close capture bus", "error", closeErr)
			err = fmt.Errorf("close capture bus: %w", closeErr)
		}

		<-co.stopped
		co.events.close()

		co.logger.Debug("Closed capture observer")
	})

	return err
}
