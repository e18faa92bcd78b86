package device

import (
	"fmt"

	"go.uber.org/zap"
)

// NewPlatformObservers builds the capture and playback observers on top of
// PulseAudio and the V4L2 device nodes
func NewPlatformObservers(logger *zap.SugaredLogger, opts PlatformOptions) (*CaptureObserver, *PlaybackObserver, error) {
	sources, err := newPulseSources(logger, opts.PulseServer)
	if err != nil {
		return nil, nil, fmt.Errorf("create PA source bus: %w", err)
	}

	var bus CaptureBus = sources

	nodes, err := newVideoNodes(logger, opts.VideoDeviceDir)
	if err != nil {
		// audio capture still works without video nodes
		logger.Warnw("Video capture devices will not be observed", "error", err)
	} else {
		bus = newMultiBus(logger, sources, nodes)
	}

	hardware, err := newPulseHardware(logger, opts.PulseServer)
	if err != nil {
		_ = bus.Close()
		return nil, nil, fmt.Errorf("create PA sink hardware: %w", err)
	}

	session, err := NewDiscoverySession(logger, hardware)
	if err != nil {
		_ = bus.Close()
		return nil, nil, fmt.Errorf("create discovery session: %w", err)
	}

	return NewCaptureObserver(logger, bus), NewPlaybackObserver(logger, session), nil
}
