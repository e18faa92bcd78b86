package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPlaybackObserverEmitsSetDifference(t *testing.T) {
	hw := &fakeHardware{}
	hw.objects = []fakeAudioObject{
		{uid: "x", name: "X", isOutput: true},
		{uid: "y", name: "Y", isOutput: true},
	}

	logger := zaptest.NewLogger(t).Sugar()

	ds, err := NewDiscoverySession(logger, hw)
	require.NoError(t, err)

	po := NewPlaybackObserver(logger, ds)
	t.Cleanup(func() { _ = po.Close() })

	assert.Len(t, po.Devices(), 2)

	events := po.Subscribe()

	hw.set(
		fakeAudioObject{uid: "y", name: "Y", isOutput: true},
		fakeAudioObject{uid: "z", name: "Z", isOutput: true},
	)

	connect := receive(t, events)
	assert.Equal(t, Connected, connect.Type)
	assert.Equal(t, "z", connect.Device.HardwareID)
	assert.True(t, connect.Device.IsConnected)

	disconnect := receive(t, events)
	assert.Equal(t, Disconnected, disconnect.Type)
	assert.Equal(t, "x", disconnect.Device.HardwareID)
	assert.False(t, disconnect.Device.IsConnected)

	assert.Equal(t, []Device{playbackDevice("y", "Y"), playbackDevice("z", "Z")}, po.Devices())
}

func TestPlaybackObserverIgnoresReorder(t *testing.T) {
	hw := &fakeHardware{}
	x := fakeAudioObject{uid: "x", name: "X", isOutput: true}
	y := fakeAudioObject{uid: "y", name: "Y", isOutput: true}
	hw.objects = []fakeAudioObject{x, y}

	logger := zaptest.NewLogger(t).Sugar()

	ds, err := NewDiscoverySession(logger, hw)
	require.NoError(t, err)

	po := NewPlaybackObserver(logger, ds)
	t.Cleanup(func() { _ = po.Close() })

	events := po.Subscribe()

	hw.set(y, x)

	requireNoEvent(t, events)
}

func TestPlaybackObserverCloseReleasesSession(t *testing.T) {
	hw := &fakeHardware{}
	logger := zaptest.NewLogger(t).Sugar()

	ds, err := NewDiscoverySession(logger, hw)
	require.NoError(t, err)

	po := NewPlaybackObserver(logger, ds)
	events := po.Subscribe()

	require.NoError(t, po.Close())
	require.NoError(t, po.Close())

	_, open := <-events
	assert.False(t, open)
	assert.True(t, hw.removed)
	assert.True(t, hw.released)
}

func TestCaptureObserverForwardsBusNotifications(t *testing.T) {
	cam := Device{HardwareID: "/dev/video0", Name: "Webcam", Direction: Input, Kind: Video, IsConnected: true}
	mic := Device{HardwareID: "mic-1", Name: "Mic", Direction: Input, Kind: Audio, IsConnected: true}

	bus := newFakeBus(cam)
	bus.defaults[Video] = cam

	co := NewCaptureObserver(zaptest.NewLogger(t).Sugar(), bus)
	t.Cleanup(func() { _ = co.Close() })

	assert.Equal(t, []Device{cam}, co.Devices())

	d, ok := co.DefaultDevice(Video)
	assert.True(t, ok)
	assert.Equal(t, cam, d)

	_, ok = co.DefaultDevice(Audio)
	assert.False(t, ok)

	events := co.Subscribe()

	bus.connect(mic)
	event := receive(t, events)
	assert.Equal(t, Event{Type: Connected, Device: mic}, event)
	assert.Equal(t, []Device{cam, mic}, co.Devices())

	bus.disconnect(cam)
	event = receive(t, events)
	assert.Equal(t, Disconnected, event.Type)
	assert.Equal(t, cam.AsDisconnected(), event.Device)
	assert.Equal(t, []Device{mic}, co.Devices())
}

func TestMultiBusMergesBuses(t *testing.T) {
	cam := Device{HardwareID: "/dev/video0", Name: "Webcam", Direction: Input, Kind: Video, IsConnected: true}
	mic := Device{HardwareID: "mic-1", Name: "Mic", Direction: Input, Kind: Audio, IsConnected: true}

	audio, video := newFakeBus(mic), newFakeBus(cam)
	audio.defaults[Audio] = mic
	video.defaults[Video] = cam

	co := NewCaptureObserver(zaptest.NewLogger(t).Sugar(), newMultiBus(zaptest.NewLogger(t).Sugar(), audio, video))

	assert.ElementsMatch(t, []Device{cam, mic}, co.Devices())

	d, ok := co.DefaultDevice(Video)
	assert.True(t, ok)
	assert.Equal(t, cam, d)

	events := co.Subscribe()
	video.disconnect(cam)
	assert.Equal(t, Disconnected, receive(t, events).Type)

	require.NoError(t, co.Close())

	_, open := <-events
	assert.False(t, open)
}
