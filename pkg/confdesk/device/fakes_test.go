package device

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errPropertyQuery = errors.New("property query failed")

type fakeAudioObject struct {
	uid      string
	name     string
	isOutput bool

	// failing names the property that can't be read, if any
	failing string
}

// fakeHardware is an in-memory AudioHardware
type fakeHardware struct {
	lock      sync.Mutex
	objects   []fakeAudioObject
	defaultID string

	listener    func()
	listenerErr error
	removed     bool
	released    bool
}

func (fh *fakeHardware) set(objects ...fakeAudioObject) {
	fh.lock.Lock()
	fh.objects = objects
	listener := fh.listener
	fh.lock.Unlock()

	if listener != nil {
		listener()
	}
}

func (fh *fakeHardware) find(id string) (fakeAudioObject, error) {
	fh.lock.Lock()
	defer fh.lock.Unlock()

	for _, o := range fh.objects {
		if o.uid == id {
			return o, nil
		}
	}

	return fakeAudioObject{}, errors.New("no such object")
}

func (fh *fakeHardware) DeviceIDs() ([]string, error) {
	fh.lock.Lock()
	defer fh.lock.Unlock()

	ids := make([]string, 0, len(fh.objects))
	for _, o := range fh.objects {
		ids = append(ids, o.uid)
	}

	return ids, nil
}

func (fh *fakeHardware) IsOutput(id string) (bool, error) {
	o, err := fh.find(id)
	if err != nil {
		return false, err
	}
	if o.failing == "streams" {
		return false, errPropertyQuery
	}

	return o.isOutput, nil
}

func (fh *fakeHardware) Name(id string) (string, error) {
	o, err := fh.find(id)
	if err != nil {
		return "", err
	}
	if o.failing == "name" {
		return "", errPropertyQuery
	}

	return o.name, nil
}

func (fh *fakeHardware) UID(id string) (string, error) {
	o, err := fh.find(id)
	if err != nil {
		return "", err
	}
	if o.failing == "uid" {
		return "", errPropertyQuery
	}

	return o.uid, nil
}

func (fh *fakeHardware) DefaultOutputID() (string, error) {
	fh.lock.Lock()
	defer fh.lock.Unlock()

	return fh.defaultID, nil
}

func (fh *fakeHardware) AddDevicesListener(callback func()) (func() error, error) {
	fh.lock.Lock()
	defer fh.lock.Unlock()

	if fh.listenerErr != nil {
		return nil, fh.listenerErr
	}

	fh.listener = callback

	return func() error {
		fh.lock.Lock()
		defer fh.lock.Unlock()

		fh.listener = nil
		fh.removed = true

		return nil
	}, nil
}

func (fh *fakeHardware) Release() error {
	fh.lock.Lock()
	defer fh.lock.Unlock()

	fh.released = true

	return nil
}

// fakeBus is an in-memory CaptureBus
type fakeBus struct {
	lock     sync.Mutex
	devices  []Device
	defaults map[MediaKind]Device

	notifications chan CaptureNotification
	closeOnce     sync.Once
}

func newFakeBus(devices ...Device) *fakeBus {
	return &fakeBus{
		devices:       devices,
		defaults:      make(map[MediaKind]Device),
		notifications: make(chan CaptureNotification, 8),
	}
}

func (fb *fakeBus) connect(d Device) {
	fb.lock.Lock()
	fb.devices = append(fb.devices, d)
	fb.lock.Unlock()

	fb.notifications <- CaptureNotification{Device: d, Connected: true}
}

func (fb *fakeBus) disconnect(d Device) {
	fb.lock.Lock()
	kept := fb.devices[:0]
	for _, existing := range fb.devices {
		if !existing.Equal(d) {
			kept = append(kept, existing)
		}
	}
	fb.devices = kept
	fb.lock.Unlock()

	fb.notifications <- CaptureNotification{Device: d, Connected: false}
}

func (fb *fakeBus) Devices() ([]Device, error) {
	fb.lock.Lock()
	defer fb.lock.Unlock()

	return append([]Device(nil), fb.devices...), nil
}

func (fb *fakeBus) Default(kind MediaKind) (Device, bool) {
	fb.lock.Lock()
	defer fb.lock.Unlock()

	d, ok := fb.defaults[kind]
	return d, ok
}

func (fb *fakeBus) Notifications() <-chan CaptureNotification {
	return fb.notifications
}

func (fb *fakeBus) Close() error {
	fb.closeOnce.Do(func() { close(fb.notifications) })
	return nil
}

func receive(t *testing.T, events <-chan Event) Event {
	t.Helper()

	select {
	case event, ok := <-events:
		require.True(t, ok, "event channel closed")
		return event
	case <-time.After(time.Second):
		require.FailNow(t, "no event received")
		return Event{}
	}
}

func requireNoEvent(t *testing.T, events <-chan Event) {
	t.Helper()

	select {
	case event := <-events:
		require.FailNowf(t, "unexpected event", "%v", event)
	case <-time.After(50 * time.Millisecond):
	}
}
