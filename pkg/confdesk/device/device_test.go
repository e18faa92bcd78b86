package device

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceIdentityIgnoresConnection(t *testing.T) {
	a := Device{HardwareID: "hw-1", Name: "Cam", Direction: Input, Kind: Video, IsConnected: true}

	assert.True(t, a.Equal(a.AsDisconnected()))
	assert.Equal(t, a.Identity(), a.WithConnected(false).Identity())
	assert.False(t, a.Equal(Device{HardwareID: "hw-2", Name: "Cam", Direction: Input, Kind: Video}))
}

func TestDeviceKeyIsStableAcrossHardwareIDs(t *testing.T) {
	a := Device{HardwareID: "usb-1", Name: "Mic", Direction: Input, Kind: Audio}
	b := Device{HardwareID: "usb-7", Name: "Mic", Direction: Input, Kind: Audio}

	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "Micaudiocapture", a.Key())

	out := Device{HardwareID: "usb-1", Name: "Mic", Direction: Output, Kind: Audio}
	assert.NotEqual(t, a.Key(), out.Key())
}

func TestHasMedia(t *testing.T) {
	muxed := Device{Kind: Muxed}
	assert.True(t, muxed.HasMedia(Video))
	assert.True(t, muxed.HasMedia(Audio))
	assert.False(t, muxed.HasMedia(Other))

	video := Device{Kind: Video}
	assert.True(t, video.HasMedia(Video))
	assert.False(t, video.HasMedia(Audio))
}

func TestCompareOrdersByKindDirectionName(t *testing.T) {
	devices := []Device{
		{Name: "Speakers", Kind: Audio, Direction: Output},
		{Name: "Mic", Kind: Audio, Direction: Input},
		{Name: "Webcam B", Kind: Video, Direction: Input},
		{Name: "Capture Card", Kind: Muxed, Direction: Input},
		{Name: "Webcam A", Kind: Video, Direction: Input},
	}

	slices.SortFunc(devices, Compare)

	names := make([]string, 0, len(devices))
	for _, d := range devices {
		names = append(names, d.Name)
	}

	assert.Equal(t, []string{"Capture Card", "Webcam A", "Webcam B", "Mic", "Speakers"}, names)
}

func TestKindAndDirectionNames(t *testing.T) {
	assert.Equal(t, "Audio/Video", Muxed.String())
	assert.Equal(t, "Video", Video.String())
	assert.Equal(t, "Unknown", MediaKind(42).String())
	assert.Equal(t, "Output", Output.String())
}
