package confdesk

import (
	"github.com/thoas/go-funk"
	"go.uber.org/zap"

	"github.com/MixyLabs/confdesk/pkg/confdesk/device"
)

// ObservationService is the read-only view over the capture and playback observers
type ObservationService struct {
	logger   *zap.SugaredLogger
	capture  device.Observer
	playback device.Observer
}

func NewObservationService(logger *zap.SugaredLogger, capture, playback device.Observer) *ObservationService {
	return &ObservationService{
		logger:   logger.Named("observation"),
		capture:  capture,
		playback: playback,
	}
}

func (obs *ObservationService) DefaultVideoInput() (device.Device, bool) {
	return obs.capture.DefaultDevice(device.Video)
}

func (obs *ObservationService) DefaultAudioInput() (device.Device, bool) {
	return obs.capture.DefaultDevice(device.Audio)
}

func (obs *ObservationService) DefaultAudioOutput() (device.Device, bool) {
	return obs.playback.DefaultDevice(device.Audio)
}

func (obs *ObservationService) VideoInputs() []device.Device {
	return inputsWithMedia(obs.capture.Devices(), device.Video)
}

func (obs *ObservationService) AudioInputs() []device.Device {
	return inputsWithMedia(obs.capture.Devices(), device.Audio)
}

func (obs *ObservationService) AudioOutputs() []device.Device {
	return obs.playback.Devices()
}

// CaptureDisconnects receives every capture device that disconnects
func (obs *ObservationService) CaptureDisconnects() <-chan device.Device {
	return disconnects(obs.capture.Subscribe())
}

// PlaybackDisconnects receives every playback device that disconnects
func (obs *ObservationService) PlaybackDisconnects() <-chan device.Device {
	return disconnects(obs.playback.Subscribe())
}

func inputsWithMedia(devices []device.Device, kind device.MediaKind) []device.Device {
	return funk.Filter(devices, func(d device.Device) bool {
		return d.HasMedia(kind)
	}).([]device.Device)
}

// disconnects narrows an event stream down to disconnected devices. The returned
// channel is closed together with the source.
func disconnects(events <-chan device.Event) <-chan device.Device {
	out := make(chan device.Device, cap(events))

	go func() {
		defer close(out)

		for event := range events {
			if event.Type == device.Disconnected {
				out <- event.Device
			}
		}
	}()

	return out
}
