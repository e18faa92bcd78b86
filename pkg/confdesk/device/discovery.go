package device

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// AudioHardware is the property-level view of the system audio object. Every query
// can fail independently for a single device.
type AudioHardware interface {
	// DeviceIDs lists the ids of all audio objects known to the system
	DeviceIDs() ([]string, error)

	// IsOutput reports whether the object has output streams
	IsOutput(id string) (bool, error)

	// Name returns the object's human-readable name
	Name(id string) (string, error)

	// UID returns the object's hardware id
	UID(id string) (string, error)

	// DefaultOutputID returns the id of the default output, or "" if there is none
	DefaultOutputID() (string, error)

	// AddDevicesListener installs a payload-less "devices changed" callback.
	// The returned function removes it again.
	AddDevicesListener(callback func()) (remove func() error, err error)

	// Release frees the underlying connection
	Release() error
}

var (
	ErrNotOutput            = errors.New("device is not for output")
	ErrNoDefaultDevice      = errors.New("no default device")
	ErrStartObservingDevice = errors.New("failed to start observing device changes")
)

// DiscoverySession enumerates output devices and signals when the system device
// list changes. The change listener lives exactly as long as the session.
type DiscoverySession struct {
	logger   *zap.SugaredLogger
	hardware AudioHardware

	changes        chan struct{}
	removeListener func() error
}

// NewDiscoverySession takes ownership of hardware and installs the change listener on it.
// hardware is released if the session can't be created.
func NewDiscoverySession(logger *zap.SugaredLogger, hardware AudioHardware) (*DiscoverySession, error) {
	ds := &DiscoverySession{
		logger:   logger.Named("discovery"),
		hardware: hardware,
		changes:  make(chan struct{}, 1),
	}

	remove, err := hardware.AddDevicesListener(ds.signalChange)
	if err != nil {
		ds.logger.Warnw("Failed to install devices listener", "error", err)
		_ = hardware.Release()
		return nil, fmt.Errorf("%w: %w", ErrStartObservingDevice, err)
	}

	ds.removeListener = remove

	ds.logger.Debug("Created discovery session instance")

	return ds, nil
}

// the callback runs on whatever thread the platform picks, so it only signals;
// a pending signal already implies a full re-enumeration
func (ds *DiscoverySession) signalChange() {
	select {
	case ds.changes <- struct{}{}:
	default:
	}
}

// Changes receives a value whenever the system device list may have changed
func (ds *DiscoverySession) Changes() <-chan struct{} {
	return ds.changes
}

// Devices enumerates all output devices. A device that can't be fully described is
// skipped, only a failure to list ids fails the whole call.
func (ds *DiscoverySession) Devices() ([]Device, error) {
	ids, err := ds.hardware.DeviceIDs()
	if err != nil {
		ds.logger.Warnw("Failed to list audio device ids", "error", err)
		return nil, fmt.Errorf("list audio device ids: %w", err)
	}

	devices := make([]Device, 0, len(ids))

	for _, id := range ids {
		dev, err := ds.describe(id)
		if err != nil {
			ds.logger.Debugw("Skipping audio device", "id", id, "error", err)
			continue
		}

		devices = append(devices, dev)
	}

	return devices, nil
}

// DefaultDevice describes the current default output device
func (ds *DiscoverySession) DefaultDevice() (Device, error) {
	id, err := ds.hardware.DefaultOutputID()
	if err != nil {
		return Device{}, fmt.Errorf("get default output id: %w", err)
	}
	if id == "" {
		return Device{}, ErrNoDefaultDevice
	}

	name, err := ds.hardware.Name(id)
	if err != nil {
		return Device{}, fmt.Errorf("get default output name: %w", err)
	}

	uid, err := ds.hardware.UID(id)
	if err != nil {
		return Device{}, fmt.Errorf("get default output uid: %w", err)
	}

	return playbackDevice(uid, name), nil
}

func (ds *DiscoverySession) describe(id string) (Device, error) {
	isOutput, err := ds.hardware.IsOutput(id)
	if err != nil {
		return Device{}, fmt.Errorf("check output streams: %w", err)
	}
	if !isOutput {
		return Device{}, ErrNotOutput
	}

	name, err := ds.hardware.Name(id)
	if err != nil {
		return Device{}, fmt.Errorf("get name: %w", err)
	}

	uid, err := ds.hardware.UID(id)
	if err != nil {
		return Device{}, fmt.Errorf("get uid: %w", err)
	}

	return playbackDevice(uid, name), nil
}

// Close removes the change listener and releases the hardware connection
func (ds *DiscoverySession) Close() (err error) {
	if ds.removeListener != nil {
		if removeErr := ds.removeListener(); removeErr != nil {
			ds.logger.Warnw("Failed to remove devices listener", "error", removeErr)
			err = multierr.Append(err, fmt.Errorf("remove devices listener: %w", removeErr))
		}
		ds.removeListener = nil
	}

	if releaseErr := ds.hardware.Release(); releaseErr != nil {
		ds.logger.Warnw("Failed to release audio hardware", "error", releaseErr)
		err = multierr.Append(err, fmt.Errorf("release audio hardware: %w", releaseErr))
	}

	ds.logger.Debug("Closed discovery session")

	return err
}

func playbackDevice(uid, name string) Device {
	return Device{
		HardwareID:  uid,
		Name:        name,
		Direction:   Output,
		Kind:        Audio,
		IsConnected: true,
	}
}
