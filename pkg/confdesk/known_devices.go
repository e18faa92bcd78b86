package confdesk

import (
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"

	"github.com/MixyLabs/confdesk/pkg/confdesk/device"
)

// NotificationSettings decides which device changes are announced
type NotificationSettings struct {
	NotifyOnNewDevice         bool `json:"notify_on_new_device" mapstructure:"notify_on_new_device"`
	NotifyOnTrackedConnect    bool `json:"notify_on_tracked_connect" mapstructure:"notify_on_tracked_connect"`
	NotifyOnTrackedDisconnect bool `json:"notify_on_tracked_disconnect" mapstructure:"notify_on_tracked_disconnect"`
}

func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{NotifyOnNewDevice: true}
}

// RegistrySnapshot is the persisted shape of the known devices registry
type RegistrySnapshot struct {
	NotificationSettings NotificationSettings `json:"notification_settings" mapstructure:"notification_settings"`
	KnownDevices         []device.Device      `json:"known_devices" mapstructure:"known_devices"`
	TrackedDeviceKeys    []string             `json:"tracked_device_keys" mapstructure:"tracked_device_keys"`
}

// StatusUpdate is a device change worth telling the user about
type StatusUpdate struct {
	Device device.Device
	IsNew  bool
}

// StatusSink delivers status updates to the user
type StatusSink interface {
	Submit(update StatusUpdate)
}

// KnownDevicesManager keeps every device ever seen, deduplicated by device key, and
// decides which connection changes get announced. Mutations are expected to happen
// on the coordination queue; reads are safe from anywhere.
type KnownDevicesManager struct {
	logger *zap.SugaredLogger
	store  Store
	sink   StatusSink

	capture  device.Observer
	playback device.Observer

	defaults NotificationSettings

	lock         sync.RWMutex
	devices      []device.Device
	tracked      map[string]struct{}
	settings     NotificationSettings
	refreshToken string
}

func NewKnownDevicesManager(
	logger *zap.SugaredLogger,
	store Store,
	sink StatusSink,
	capture, playback device.Observer,
	defaults NotificationSettings,
) *KnownDevicesManager {
	m := &KnownDevicesManager{
		logger:       logger.Named("known_devices"),
		store:        store,
		sink:         sink,
		capture:      capture,
		playback:     playback,
		defaults:     defaults,
		tracked:      make(map[string]struct{}),
		settings:     defaults,
		refreshToken: uuid.NewString(),
	}

	m.logger.Debug("Created known devices manager instance")

	return m
}

// RestoreAndReconcile loads the persisted registry and merges the live devices into it
func (m *KnownDevicesManager) RestoreAndReconcile() {
	m.restore()

	live := m.capture.Devices()
	for _, d := range m.playback.Devices() {
		live = append(live, d.WithConnected(true))
	}

	m.lock.Lock()

	before := m.keys()
	for _, d := range uniqueByKey(live) {
		if idx := m.indexOf(d.Key()); idx >= 0 {
			m.devices[idx] = d
		} else {
			m.devices = append(m.devices, d)
		}
	}
	m.sort()
	changed := !funk.IsEqual(before, m.keys())

	m.refreshToken = uuid.NewString()
	m.lock.Unlock()

	m.logger.Infow("Reconciled known devices", "known", len(m.Devices()), "live", len(live))

	if changed {
		m.persist()
	}
}

func (m *KnownDevicesManager) restore() {
	snapshot, err := m.store.Load()

	switch {
	case errors.Is(err, ErrNeverPersisted):
		m.logger.Infow("No known devices persisted yet, starting empty", "error", err)
		snapshot = RegistrySnapshot{NotificationSettings: m.defaults}
	case err != nil:
		m.logger.Warnw("Failed to restore known devices, starting empty", "error", err)
		snapshot = RegistrySnapshot{NotificationSettings: m.defaults}
	}

	devices := make([]device.Device, 0, len(snapshot.KnownDevices))
	for _, d := range uniqueByKey(snapshot.KnownDevices) {
		// persisted state can't know what is plugged in right now
		devices = append(devices, d.AsDisconnected())
	}

	tracked := make(map[string]struct{}, len(snapshot.TrackedDeviceKeys))
	for _, key := range funk.UniqString(snapshot.TrackedDeviceKeys) {
		tracked[key] = struct{}{}
	}

	m.lock.Lock()
	m.devices = devices
	m.tracked = tracked
	m.settings = snapshot.NotificationSettings
	m.lock.Unlock()
}

// HandleDeviceEvent records a connect or disconnect. A device whose key isn't
// known yet is new; it is appended and the registry is persisted.
func (m *KnownDevicesManager) HandleDeviceEvent(d device.Device, isConnect bool) (isNew bool) {
	d = d.WithConnected(isConnect)

	m.lock.Lock()
	if idx := m.indexOf(d.Key()); idx >= 0 {
		m.devices[idx] = d
	} else {
		isNew = true
		m.devices = append(m.devices, d)
		m.sort()
	}

	notify := m.shouldNotify(d, isNew)
	m.refreshToken = uuid.NewString()
	m.lock.Unlock()

	m.logger.Debugw("Device event recorded", "device", d, "isNew", isNew, "notify", notify)

	if isNew {
		m.persist()
	}

	if notify && m.sink != nil {
		m.sink.Submit(StatusUpdate{Device: d, IsNew: isNew})
	}

	return isNew
}

// must hold lock
func (m *KnownDevicesManager) shouldNotify(d device.Device, isNew bool) bool {
	if isNew {
		return m.settings.NotifyOnNewDevice
	}

	if _, tracked := m.tracked[d.Key()]; !tracked {
		return false
	}

	if d.IsConnected {
		return m.settings.NotifyOnTrackedConnect
	}

	return m.settings.NotifyOnTrackedDisconnect
}

// Observe forwards both observers' events onto queue, keeping each observer's order
func (m *KnownDevicesManager) Observe(queue Queue) {
	forward := func(events <-chan device.Event) {
		for event := range events {
			queue.Submit(func() {
				m.HandleDeviceEvent(event.Device, event.Type == device.Connected)
			})
		}
	}

	go forward(m.capture.Subscribe())
	go forward(m.playback.Subscribe())
}

// Devices returns the registry in display order
func (m *KnownDevicesManager) Devices() []device.Device {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return slices.Clone(m.devices)
}

func (m *KnownDevicesManager) IsTracked(key string) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()

	_, ok := m.tracked[key]
	return ok
}

// SetTracked opts a device key in or out of connection notifications
func (m *KnownDevicesManager) SetTracked(key string, tracked bool) {
	m.lock.Lock()
	_, was := m.tracked[key]
	if tracked {
		m.tracked[key] = struct{}{}
	} else {
		delete(m.tracked, key)
	}
	m.lock.Unlock()

	if was != tracked {
		m.persist()
	}
}

func (m *KnownDevicesManager) NotificationSettings() NotificationSettings {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.settings
}

func (m *KnownDevicesManager) SetNotificationSettings(settings NotificationSettings) {
	m.lock.Lock()
	m.settings = settings
	m.lock.Unlock()

	m.persist()
}

// RefreshToken changes after every registry mutation, including ones that only
// flip a device's connection state
func (m *KnownDevicesManager) RefreshToken() string {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.refreshToken
}

func (m *KnownDevicesManager) snapshot() RegistrySnapshot {
	m.lock.RLock()
	defer m.lock.RUnlock()

	keys := funk.Keys(m.tracked).([]string)
	sort.Strings(keys)

	return RegistrySnapshot{
		NotificationSettings: m.settings,
		KnownDevices:         slices.Clone(m.devices),
		TrackedDeviceKeys:    keys,
	}
}

func (m *KnownDevicesManager) persist() {
	if err := m.store.Save(m.snapshot()); err != nil {
		m.logger.Warnw("Failed to persist known devices", "error", err)
	}
}

// must hold lock
func (m *KnownDevicesManager) indexOf(key string) int {
	return slices.IndexFunc(m.devices, func(d device.Device) bool {
		return d.Key() == key
	})
}

// must hold lock
func (m *KnownDevicesManager) keys() []string {
	keys := make([]string, 0, len(m.devices))
	for _, d := range m.devices {
		keys = append(keys, d.Key())
	}

	return keys
}

// must hold lock
func (m *KnownDevicesManager) sort() {
	slices.SortStableFunc(m.devices, device.Compare)
}

// uniqueByKey keeps the last device per key, at the position of its first occurrence
func uniqueByKey(devices []device.Device) []device.Device {
	unique := make([]device.Device, 0, len(devices))
	index := make(map[string]int, len(devices))

	for _, d := range devices {
		if idx, ok := index[d.Key()]; ok {
			unique[idx] = d
			continue
		}

		index[d.Key()] = len(unique)
		unique = append(unique, d)
	}

	return unique
}
