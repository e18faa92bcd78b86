package device

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDiscoverySkipsDevicesThatCantBeDescribed(t *testing.T) {
	hw := &fakeHardware{}
	hw.objects = []fakeAudioObject{
		{uid: "speakers", name: "Speakers", isOutput: true},
		{uid: "mic", name: "Mic", isOutput: false},
		{uid: "broken-name", name: "?", isOutput: true, failing: "name"},
		{uid: "broken-streams", name: "?", isOutput: true, failing: "streams"},
		{uid: "headphones", name: "Headphones", isOutput: true},
	}

	ds, err := NewDiscoverySession(zaptest.NewLogger(t).Sugar(), hw)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })

	devices, err := ds.Devices()
	require.NoError(t, err)

	assert.Equal(t, []Device{
		playbackDevice("speakers", "Speakers"),
		playbackDevice("headphones", "Headphones"),
	}, devices)
}

func TestDiscoveryDefaultDevice(t *testing.T) {
	hw := &fakeHardware{}
	hw.objects = []fakeAudioObject{{uid: "speakers", name: "Speakers", isOutput: true}}

	ds, err := NewDiscoverySession(zaptest.NewLogger(t).Sugar(), hw)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })

	_, err = ds.DefaultDevice()
	assert.ErrorIs(t, err, ErrNoDefaultDevice)

	hw.defaultID = "speakers"

	d, err := ds.DefaultDevice()
	require.NoError(t, err)
	assert.Equal(t, playbackDevice("speakers", "Speakers"), d)
}

func TestDiscoveryListenerLifetime(t *testing.T) {
	hw := &fakeHardware{}

	ds, err := NewDiscoverySession(zaptest.NewLogger(t).Sugar(), hw)
	require.NoError(t, err)
	require.NotNil(t, hw.listener)

	hw.set(fakeAudioObject{uid: "a", name: "A", isOutput: true})
	hw.set(fakeAudioObject{uid: "b", name: "B", isOutput: true})

	// two signals coalesce into one pending change
	<-ds.Changes()
	select {
	case <-ds.Changes():
		t.Fatal("changes were not coalesced")
	default:
	}

	require.NoError(t, ds.Close())
	assert.True(t, hw.removed)
	assert.True(t, hw.released)
	assert.Nil(t, hw.listener)
}

func TestDiscoveryReleasesHardwareWhenListenerFails(t *testing.T) {
	hw := &fakeHardware{listenerErr: errors.New("boom")}

	_, err := NewDiscoverySession(zaptest.NewLogger(t).Sugar(), hw)

	assert.ErrorIs(t, err, ErrStartObservingDevice)
	assert.True(t, hw.released)
}
