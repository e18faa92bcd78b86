package confdesk

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MixyLabs/confdesk/pkg/confdesk/device"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

var (
	camA     = device.Device{HardwareID: "cam-a", Name: "Webcam A", Direction: device.Input, Kind: device.Video, IsConnected: true}
	camB     = device.Device{HardwareID: "cam-b", Name: "Webcam B", Direction: device.Input, Kind: device.Video, IsConnected: true}
	camC     = device.Device{HardwareID: "cam-c", Name: "Webcam C", Direction: device.Input, Kind: device.Video, IsConnected: true}
	micA     = device.Device{HardwareID: "mic-a", Name: "Mic A", Direction: device.Input, Kind: device.Audio, IsConnected: true}
	micB     = device.Device{HardwareID: "mic-b", Name: "Mic B", Direction: device.Input, Kind: device.Audio, IsConnected: true}
	dock     = device.Device{HardwareID: "dock", Name: "Dock", Direction: device.Input, Kind: device.Muxed, IsConnected: true}
	speakerA = device.Device{HardwareID: "spk-a", Name: "Speakers A", Direction: device.Output, Kind: device.Audio, IsConnected: true}
	speakerB = device.Device{HardwareID: "spk-b", Name: "Speakers B", Direction: device.Output, Kind: device.Audio, IsConnected: true}
)

func ptr(d device.Device) *device.Device {
	return &d
}

// runQueue drains q until the test ends
func runQueue(t *testing.T, q *serialQueue) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		q.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func barrier(t *testing.T, q Queue) {
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	require.NoError(t, Barrier(ctx, q))
}

// fakeObserver is an in-memory device.Observer
type fakeObserver struct {
	lock     sync.Mutex
	devices  []device.Device
	defaults map[device.MediaKind]device.Device
	subs     []chan device.Event
	closed   bool
}

func newFakeObserver(devices ...device.Device) *fakeObserver {
	return &fakeObserver{
		devices:  devices,
		defaults: map[device.MediaKind]device.Device{},
	}
}

func (fo *fakeObserver) Devices() []device.Device {
	fo.lock.Lock()
	defer fo.lock.Unlock()

	return slices.Clone(fo.devices)
}

func (fo *fakeObserver) Subscribe() <-chan device.Event {
	fo.lock.Lock()
	defer fo.lock.Unlock()

	sub := make(chan device.Event, 16)
	fo.subs = append(fo.subs, sub)

	return sub
}

func (fo *fakeObserver) DefaultDevice(kind device.MediaKind) (device.Device, bool) {
	fo.lock.Lock()
	defer fo.lock.Unlock()

	d, ok := fo.defaults[kind]
	return d, ok
}

func (fo *fakeObserver) Close() error {
	fo.lock.Lock()
	defer fo.lock.Unlock()

	if !fo.closed {
		fo.closed = true
		for _, sub := range fo.subs {
			close(sub)
		}
	}

	return nil
}

func (fo *fakeObserver) setDefault(kind device.MediaKind, d device.Device) {
	fo.lock.Lock()
	defer fo.lock.Unlock()

	fo.defaults[kind] = d
}

func (fo *fakeObserver) publish(eventType device.EventType, d device.Device) {
	fo.lock.Lock()
	defer fo.lock.Unlock()

	for _, sub := range fo.subs {
		sub <- device.Event{Type: eventType, Device: d}
	}
}

var errStoreBroken = errors.New("store is broken")

// memoryStore is an in-memory Store counting saves
type memoryStore struct {
	lock     sync.Mutex
	snapshot *RegistrySnapshot
	loadErr  error
	saves    []RegistrySnapshot
}

func (ms *memoryStore) Load() (RegistrySnapshot, error) {
	ms.lock.Lock()
	defer ms.lock.Unlock()

	if ms.loadErr != nil {
		return RegistrySnapshot{}, ms.loadErr
	}
	if ms.snapshot == nil {
		return RegistrySnapshot{}, ErrNeverPersisted
	}

	return *ms.snapshot, nil
}

func (ms *memoryStore) Save(snapshot RegistrySnapshot) error {
	ms.lock.Lock()
	defer ms.lock.Unlock()

	ms.saves = append(ms.saves, snapshot)
	ms.snapshot = &snapshot

	return nil
}

func (ms *memoryStore) saveCount() int {
	ms.lock.Lock()
	defer ms.lock.Unlock()

	return len(ms.saves)
}

// recordingSink collects status updates
type recordingSink struct {
	lock    sync.Mutex
	updates []StatusUpdate
}

func (rs *recordingSink) Submit(update StatusUpdate) {
	rs.lock.Lock()
	defer rs.lock.Unlock()

	rs.updates = append(rs.updates, update)
}

func (rs *recordingSink) received() []StatusUpdate {
	rs.lock.Lock()
	defer rs.lock.Unlock()

	return slices.Clone(rs.updates)
}

// recordingNotifier collects notifications
type recordingNotifier struct {
	lock          sync.Mutex
	notifications [][2]string
}

func (rn *recordingNotifier) Notify(title string, message string) {
	rn.lock.Lock()
	defer rn.lock.Unlock()

	rn.notifications = append(rn.notifications, [2]string{title, message})
}

func (rn *recordingNotifier) titles() []string {
	rn.lock.Lock()
	defer rn.lock.Unlock()

	titles := make([]string, 0, len(rn.notifications))
	for _, n := range rn.notifications {
		titles = append(titles, n[0])
	}

	return titles
}

// stubAuthorizer answers with fixed statuses and blocks RequestAccess until released
type stubAuthorizer struct {
	statuses map[device.MediaKind]AuthorizationStatus
	answer   AuthorizationStatus
	release  chan struct{}
}

func (sa *stubAuthorizer) Status(kind device.MediaKind) AuthorizationStatus {
	return sa.statuses[kind]
}

func (sa *stubAuthorizer) RequestAccess(device.MediaKind) AuthorizationStatus {
	if sa.release != nil {
		<-sa.release
	}
	return sa.answer
}
