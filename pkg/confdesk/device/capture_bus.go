package device

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// multiBus merges several capture buses, e.g. one for audio and one for video,
// into a single CaptureBus
type multiBus struct {
	logger *zap.SugaredLogger
	buses  []CaptureBus

	notifications chan CaptureNotification
	wg            sync.WaitGroup
}

func newMultiBus(logger *zap.SugaredLogger, buses ...CaptureBus) *multiBus {
	mb := &multiBus{
		logger:        logger.Named("capture_bus"),
		buses:         buses,
		notifications: make(chan CaptureNotification, 16),
	}

	for _, bus := range buses {
		mb.wg.Add(1)
		go func(bus CaptureBus) {
			defer mb.wg.Done()
			for notification := range bus.Notifications() {
				mb.notifications <- notification
			}
		}(bus)
	}

	go func() {
		mb.wg.Wait()
		close(mb.notifications)
	}()

	return mb
}

// Devices lists every bus' devices; a failing bus is logged and left out
func (mb *multiBus) Devices() ([]Device, error) {
	var devices []Device

	for _, bus := range mb.buses {
		busDevices, err := bus.Devices()
		if err != nil {
			mb.logger.Warnw("Failed to enumerate capture bus", "error", err)
			continue
		}

		devices = append(devices, busDevices...)
	}

	return devices, nil
}

func (mb *multiBus) Default(kind MediaKind) (Device, bool) {
	for _, bus := range mb.buses {
		if d, ok := bus.Default(kind); ok {
			return d, true
		}
	}

	return Device{}, false
}

func (mb *multiBus) Notifications() <-chan CaptureNotification {
	return mb.notifications
}

func (mb *multiBus) Close() error {
	var err error

	for _, bus := range mb.buses {
		if closeErr := bus.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("close capture bus: %w", closeErr))
		}
	}

	return err
}
