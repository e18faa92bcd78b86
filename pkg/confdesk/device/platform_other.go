//go:build !linux && !windows

package device

import "go.uber.org/zap"

func NewPlatformObservers(logger *zap.SugaredLogger, opts PlatformOptions) (*CaptureObserver, *PlaybackObserver, error) {
	logger.Warnw("No device bus implementation", "error", ErrUnsupportedPlatform)
	return nil, nil, ErrUnsupportedPlatform
}
