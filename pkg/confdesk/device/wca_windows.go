package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/diegosz/go-wca/pkg/wca"
	"github.com/go-ole/go-ole"
	"go.uber.org/zap"
)

func coInitialize(logger *zap.SugaredLogger) error {
	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		// E_FALSE means that the call was redundant.
		const eFalse = 1
		oleError := &ole.OleError{}

		if errors.As(err, &oleError) && oleError.Code() == eFalse {
			logger.Warn("CoInitializeEx failed with E_FALSE due to redundant invocation")
			return nil
		}

		logger.Warnw("Failed to call CoInitializeEx", "error", err)
		return fmt.Errorf("call CoInitializeEx: %w", err)
	}

	return nil
}

func newDeviceEnumerator(logger *zap.SugaredLogger) (*wca.IMMDeviceEnumerator, error) {
	if err := coInitialize(logger); err != nil {
		return nil, err
	}

	var enumerator *wca.IMMDeviceEnumerator

	if err := wca.CoCreateInstance(
		wca.CLSID_MMDeviceEnumerator,
		0,
		wca.CLSCTX_ALL,
		wca.IID_IMMDeviceEnumerator,
		&enumerator,
	); err != nil {
		logger.Warnw("Failed to call CoCreateInstance", "error", err)
		ole.CoUninitialize()
		return nil, fmt.Errorf("call CoCreateInstance: %w", err)
	}

	return enumerator, nil
}

// friendlyName reads the endpoint's friendly name, i.e. "Headphones (Realtek Audio)"
func friendlyName(endpoint *wca.IMMDevice) (string, error) {
	var propertyStore *wca.IPropertyStore

	if err := endpoint.OpenPropertyStore(wca.STGM_READ, &propertyStore); err != nil {
		return "", fmt.Errorf("open endpoint property store: %w", err)
	}
	defer propertyStore.Release()

	value := &wca.PROPVARIANT{}
	if err := propertyStore.GetValue(&wca.PKEY_Device_FriendlyName, value); err != nil {
		return "", fmt.Errorf("get device friendly name: %w", err)
	}

	return value.String(), nil
}

func dataFlow(endpoint *wca.IMMDevice) (uint32, error) {
	dispatch, err := endpoint.QueryInterface(wca.IID_IMMEndpoint)
	if err != nil {
		return 0, fmt.Errorf("query IMMEndpoint: %w", err)
	}

	endpointType := (*wca.IMMEndpoint)(dispatch) //unsafe.Pointer
	defer endpointType.Release()

	var flow uint32
	if err := endpointType.GetDataFlow(&flow); err != nil {
		return 0, fmt.Errorf("get data flow: %w", err)
	}

	return flow, nil
}

func activeEndpointIDs(enumerator *wca.IMMDeviceEnumerator, flow uint32) ([]string, error) {
	var deviceCollection *wca.IMMDeviceCollection

	if err := enumerator.EnumAudioEndpoints(flow, wca.DEVICE_STATE_ACTIVE, &deviceCollection); err != nil {
		return nil, fmt.Errorf("enumerate active audio endpoints: %w", err)
	}
	defer deviceCollection.Release()

	var deviceCount uint32
	if err := deviceCollection.GetCount(&deviceCount); err != nil {
		return nil, fmt.Errorf("get device count from device collection: %w", err)
	}

	ids := make([]string, 0, deviceCount)

	for deviceIdx := uint32(0); deviceIdx < deviceCount; deviceIdx++ {
		var endpoint *wca.IMMDevice
		if err := deviceCollection.Item(deviceIdx, &endpoint); err != nil {
			return nil, fmt.Errorf("get device %d from device collection: %w", deviceIdx, err)
		}

		var endpointID string
		err := endpoint.GetId(&endpointID)
		endpoint.Release()

		if err != nil {
			return nil, fmt.Errorf("get device %d endpointID: %w", deviceIdx, err)
		}

		ids = append(ids, endpointID)
	}

	return ids, nil
}

// wcaHardware exposes render endpoints through the AudioHardware property model
type wcaHardware struct {
	logger     *zap.SugaredLogger
	enumerator *wca.IMMDeviceEnumerator
}

func newWCAHardware(logger *zap.SugaredLogger) (*wcaHardware, error) {
	logger = logger.Named("wca_render")

	enumerator, err := newDeviceEnumerator(logger)
	if err != nil {
		return nil, err
	}

	logger.Debug("Created WCA render hardware instance")

	return &wcaHardware{logger: logger, enumerator: enumerator}, nil
}

func (wh *wcaHardware) withDevice(id string, fn func(endpoint *wca.IMMDevice) error) error {
	var endpoint *wca.IMMDevice
	if err := wh.enumerator.GetDevice(id, &endpoint); err != nil {
		return fmt.Errorf("get MM device %s: %w", id, err)
	}
	defer endpoint.Release()

	return fn(endpoint)
}

func (wh *wcaHardware) DeviceIDs() ([]string, error) {
	ids, err := activeEndpointIDs(wh.enumerator, wca.ERender)
	if err != nil {
		wh.logger.Warnw("Failed to list render endpoints", "error", err)
		return nil, err
	}

	return ids, nil
}

func (wh *wcaHardware) IsOutput(id string) (bool, error) {
	var isOutput bool

	err := wh.withDevice(id, func(endpoint *wca.IMMDevice) error {
		flow, err := dataFlow(endpoint)
		isOutput = flow == wca.ERender
		return err
	})

	return isOutput, err
}

func (wh *wcaHardware) Name(id string) (string, error) {
	var name string

	err := wh.withDevice(id, func(endpoint *wca.IMMDevice) (err error) {
		name, err = friendlyName(endpoint)
		return err
	})

	return name, err
}

// UID returns the endpoint id, which is already stable
func (wh *wcaHardware) UID(id string) (string, error) {
	return id, nil
}

func (wh *wcaHardware) DefaultOutputID() (string, error) {
	var endpoint *wca.IMMDevice

	if err := wh.enumerator.GetDefaultAudioEndpoint(wca.ERender, wca.EConsole, &endpoint); err != nil {
		// no render endpoint at all
		return "", nil
	}
	defer endpoint.Release()

	var endpointID string
	if err := endpoint.GetId(&endpointID); err != nil {
		return "", fmt.Errorf("get default output endpointID: %w", err)
	}

	return endpointID, nil
}

func (wh *wcaHardware) AddDevicesListener(callback func()) (func() error, error) {
	changed := func(string) error {
		callback()
		return nil
	}

	client := wca.NewIMMNotificationClient(wca.IMMNotificationClientCallback{
		OnDeviceAdded:   changed,
		OnDeviceRemoved: changed,
		OnDeviceStateChanged: func(pwstrDeviceId string, dwNewState uint32) error {
			return changed(pwstrDeviceId)
		},
	})

	if err := wh.enumerator.RegisterEndpointNotificationCallback(client); err != nil {
		wh.logger.Warnw("Failed to call RegisterEndpointNotificationCallback", "error", err)
		return nil, fmt.Errorf("call RegisterEndpointNotificationCallback: %w", err)
	}

	remove := func() error {
		if err := wh.enumerator.UnregisterEndpointNotificationCallback(client); err != nil {
			return fmt.Errorf("call UnregisterEndpointNotificationCallback: %w", err)
		}
		return nil
	}

	return remove, nil
}

func (wh *wcaHardware) Release() error {
	wh.enumerator.Release()
	ole.CoUninitialize()

	wh.logger.Debug("Released WCA render hardware instance")

	return nil
}

// wcaCaptureEndpoints reports capture endpoints with discrete added/removed/state notifications
type wcaCaptureEndpoints struct {
	logger     *zap.SugaredLogger
	enumerator *wca.IMMDeviceEnumerator
	client     *wca.IMMNotificationClient

	lock  sync.Mutex
	known map[string]Device // by endpoint id

	sendLock      sync.Mutex
	closed        bool
	notifications chan CaptureNotification
	stop          chan struct{}
	stopOnce      sync.Once
}

func newWCACaptureEndpoints(logger *zap.SugaredLogger) (*wcaCaptureEndpoints, error) {
	logger = logger.Named("wca_capture")

	enumerator, err := newDeviceEnumerator(logger)
	if err != nil {
		return nil, err
	}

	ce := &wcaCaptureEndpoints{
		logger:        logger,
		enumerator:    enumerator,
		known:         make(map[string]Device),
		notifications: make(chan CaptureNotification, 16),
		stop:          make(chan struct{}),
	}

	if _, err := ce.Devices(); err != nil {
		ce.logger.Warnw("Failed to enumerate capture endpoints during init", "error", err)
	}

	ce.client = wca.NewIMMNotificationClient(wca.IMMNotificationClientCallback{
		OnDeviceAdded:        ce.deviceAddedCallback,
		OnDeviceRemoved:      ce.deviceRemovedCallback,
		OnDeviceStateChanged: ce.deviceStateChangedCallback,
	})

	if err := enumerator.RegisterEndpointNotificationCallback(ce.client); err != nil {
		ce.logger.Warnw("Failed to call RegisterEndpointNotificationCallback", "error", err)
		enumerator.Release()
		ole.CoUninitialize()
		return nil, fmt.Errorf("call RegisterEndpointNotificationCallback: %w", err)
	}

	ce.logger.Debug("Created WCA capture bus instance")

	return ce, nil
}

func (ce *wcaCaptureEndpoints) describe(id string) (Device, bool) {
	var endpoint *wca.IMMDevice
	if err := ce.enumerator.GetDevice(id, &endpoint); err != nil {
		ce.logger.Debugw("Failed to get MM device", "id", id, "error", err)
		return Device{}, false
	}
	defer endpoint.Release()

	flow, err := dataFlow(endpoint)
	if err != nil || flow != wca.ECapture {
		return Device{}, false
	}

	name, err := friendlyName(endpoint)
	if err != nil {
		ce.logger.Debugw("Failed to get capture endpoint name", "id", id, "error", err)
		return Device{}, false
	}

	return Device{
		HardwareID:  id,
		Name:        name,
		Direction:   Input,
		Kind:        Audio,
		IsConnected: true,
	}, true
}

// callbacks arrive on COM threads and may race with Close
func (ce *wcaCaptureEndpoints) send(notification CaptureNotification) {
	ce.sendLock.Lock()
	defer ce.sendLock.Unlock()

	if ce.closed {
		return
	}

	select {
	case ce.notifications <- notification:
	case <-ce.stop:
	}
}

func (ce *wcaCaptureEndpoints) deviceAddedCallback(pwstrDeviceId string) error {
	dev, ok := ce.describe(pwstrDeviceId)
	if !ok {
		return nil
	}

	ce.lock.Lock()
	ce.known[pwstrDeviceId] = dev
	ce.lock.Unlock()

	ce.send(CaptureNotification{Device: dev, Connected: true})

	return nil
}

func (ce *wcaCaptureEndpoints) deviceRemovedCallback(pwstrDeviceId string) error {
	ce.lock.Lock()
	dev, ok := ce.known[pwstrDeviceId]
	delete(ce.known, pwstrDeviceId)
	ce.lock.Unlock()

	if ok {
		ce.send(CaptureNotification{Device: dev, Connected: false})
	}

	return nil
}

func (ce *wcaCaptureEndpoints) deviceStateChangedCallback(pwstrDeviceId string, dwNewState uint32) error {
	switch dwNewState {
	case wca.DEVICE_STATE_ACTIVE:
		return ce.deviceAddedCallback(pwstrDeviceId)
	case wca.DEVICE_STATE_DISABLED, wca.DEVICE_STATE_NOTPRESENT, wca.DEVICE_STATE_UNPLUGGED:
		return ce.deviceRemovedCallback(pwstrDeviceId)
	}

	return nil
}

func (ce *wcaCaptureEndpoints) Devices() ([]Device, error) {
	ids, err := activeEndpointIDs(ce.enumerator, wca.ECapture)
	if err != nil {
		ce.logger.Warnw("Failed to list capture endpoints", "error", err)
		return nil, err
	}

	devices := make([]Device, 0, len(ids))

	for _, id := range ids {
		dev, ok := ce.describe(id)
		if !ok {
			continue
		}

		ce.lock.Lock()
		ce.known[id] = dev
		ce.lock.Unlock()

		devices = append(devices, dev)
	}

	return devices, nil
}

func (ce *wcaCaptureEndpoints) Default(kind MediaKind) (Device, bool) {
	if kind != Audio {
		return Device{}, false
	}

	var endpoint *wca.IMMDevice

	// allow this call to fail, not all users have a microphone connected
	if err := ce.enumerator.GetDefaultAudioEndpoint(wca.ECapture, wca.EConsole, &endpoint); err != nil {
		return Device{}, false
	}

	var endpointID string
	err := endpoint.GetId(&endpointID)
	endpoint.Release()

	if err != nil {
		return Device{}, false
	}

	return ce.describe(endpointID)
}

func (ce *wcaCaptureEndpoints) Notifications() <-chan CaptureNotification {
	return ce.notifications
}

func (ce *wcaCaptureEndpoints) Close() error {
	var err error

	ce.stopOnce.Do(func() {
		if unregisterErr := ce.enumerator.UnregisterEndpointNotificationCallback(ce.client); unregisterErr != nil {
			err = fmt.Errorf("call UnregisterEndpointNotificationCallback: %w", unregisterErr)
		}

		close(ce.stop)

		ce.sendLock.Lock()
		ce.closed = true
		close(ce.notifications)
		ce.sendLock.Unlock()

		ce.enumerator.Release()
		ole.CoUninitialize()

		ce.logger.Debug("Released WCA capture bus instance")
	})

	return err
}
