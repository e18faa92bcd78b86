package device

import (
	"fmt"

	"go.uber.org/zap"
)

// NewPlatformObservers builds the capture and playback observers on top of the
// WASAPI endpoint enumerator. Video capture devices are not reported on Windows.
func NewPlatformObservers(logger *zap.SugaredLogger, opts PlatformOptions) (*CaptureObserver, *PlaybackObserver, error) {
	bus, err := newWCACaptureEndpoints(logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create WCA capture bus: %w", err)
	}

	hardware, err := newWCAHardware(logger)
	if err != nil {
		_ = bus.Close()
		return nil, nil, fmt.Errorf("create WCA render hardware: %w", err)
	}

	session, err := NewDiscoverySession(logger, hardware)
	if err != nil {
		_ = bus.Close()
		return nil, nil, fmt.Errorf("create discovery session: %w", err)
	}

	return NewCaptureObserver(logger, bus), NewPlaybackObserver(logger, session), nil
}
