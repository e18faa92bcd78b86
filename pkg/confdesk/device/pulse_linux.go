package device

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"
)

const (
	pulseClientName = "confdesk"

	propDeviceDescription = "device.description"
	propDeviceClass       = "device.class"
	deviceClassMonitor    = "monitor"
)

func connectPulse(logger *zap.SugaredLogger, server string) (*proto.Client, net.Conn, error) {
	client, conn, err := proto.Connect(server)
	if err != nil {
		logger.Warnw("Failed to establish PulseAudio connection", "error", err)
		return nil, nil, fmt.Errorf("establish PulseAudio connection: %w", err)
	}

	request := proto.SetClientName{
		Props: proto.PropList{
			"application.name": proto.PropListString(pulseClientName),
		},
	}
	reply := proto.SetClientNameReply{}

	if err := client.Request(&request, &reply); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("set PulseAudio client name: %w", err)
	}

	return client, conn, nil
}

func parseIndex(id string) (uint32, error) {
	idx, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse device index %q: %w", id, err)
	}

	return uint32(idx), nil
}

// pulseHardware exposes PulseAudio sinks through the AudioHardware property model
type pulseHardware struct {
	logger *zap.SugaredLogger

	client *proto.Client
	conn   net.Conn

	lock     sync.Mutex
	listener func()
}

func newPulseHardware(logger *zap.SugaredLogger, server string) (*pulseHardware, error) {
	logger = logger.Named("pulse_sinks")

	client, conn, err := connectPulse(logger, server)
	if err != nil {
		return nil, err
	}

	ph := &pulseHardware{
		logger: logger,
		client: client,
		conn:   conn,
	}

	// runs on the client's reader goroutine, requests from here would deadlock
	client.Callback = func(msg interface{}) {
		event, ok := msg.(*proto.SubscribeEvent)
		if !ok || event.Event&proto.EventFacilityMask != proto.EventSink {
			return
		}

		ph.lock.Lock()
		listener := ph.listener
		ph.lock.Unlock()

		if listener != nil {
			listener()
		}
	}

	ph.logger.Debug("Created PA sink hardware instance")

	return ph, nil
}

func (ph *pulseHardware) sinkInfo(id string) (*proto.GetSinkInfoReply, error) {
	idx, err := parseIndex(id)
	if err != nil {
		return nil, err
	}

	reply := proto.GetSinkInfoReply{}
	if err := ph.client.Request(&proto.GetSinkInfo{SinkIndex: idx}, &reply); err != nil {
		return nil, fmt.Errorf("get sink %d info: %w", idx, err)
	}

	return &reply, nil
}

func (ph *pulseHardware) DeviceIDs() ([]string, error) {
	reply := proto.GetSinkInfoListReply{}

	if err := ph.client.Request(&proto.GetSinkInfoList{}, &reply); err != nil {
		ph.logger.Warnw("Failed to get sink list", "error", err)
		return nil, fmt.Errorf("get sink list: %w", err)
	}

	ids := make([]string, 0, len(reply))
	for _, info := range reply {
		ids = append(ids, strconv.FormatUint(uint64(info.SinkIndex), 10))
	}

	return ids, nil
}

func (ph *pulseHardware) IsOutput(id string) (bool, error) {
	// every sink is an output, the query only has to succeed
	if _, err := ph.sinkInfo(id); err != nil {
		return false, err
	}

	return true, nil
}

func (ph *pulseHardware) Name(id string) (string, error) {
	info, err := ph.sinkInfo(id)
	if err != nil {
		return "", err
	}

	if description, ok := info.Properties[propDeviceDescription]; ok {
		return description.String(), nil
	}
	if info.Device == "" {
		return "", errors.New("sink has no description")
	}

	return info.Device, nil
}

func (ph *pulseHardware) UID(id string) (string, error) {
	info, err := ph.sinkInfo(id)
	if err != nil {
		return "", err
	}
	if info.SinkName == "" {
		return "", errors.New("sink has no name")
	}

	return info.SinkName, nil
}

func (ph *pulseHardware) DefaultOutputID() (string, error) {
	reply := proto.GetSinkInfoReply{}

	// an undefined index addresses the default sink
	if err := ph.client.Request(&proto.GetSinkInfo{SinkIndex: proto.Undefined}, &reply); err != nil {
		return "", fmt.Errorf("get default sink info: %w", err)
	}

	return strconv.FormatUint(uint64(reply.SinkIndex), 10), nil
}

func (ph *pulseHardware) AddDevicesListener(callback func()) (func() error, error) {
	ph.lock.Lock()
	ph.listener = callback
	ph.lock.Unlock()

	if err := ph.client.Request(&proto.Subscribe{Mask: proto.SubscriptionMaskSink}, nil); err != nil {
		ph.lock.Lock()
		ph.listener = nil
		ph.lock.Unlock()

		return nil, fmt.Errorf("subscribe to PulseAudio sink events: %w", err)
	}

	remove := func() error {
		ph.lock.Lock()
		ph.listener = nil
		ph.lock.Unlock()

		if err := ph.client.Request(&proto.Subscribe{Mask: 0}, nil); err != nil {
			return fmt.Errorf("unsubscribe from PulseAudio sink events: %w", err)
		}

		return nil
	}

	return remove, nil
}

func (ph *pulseHardware) Release() error {
	if err := ph.conn.Close(); err != nil {
		ph.logger.Warnw("Failed to close PulseAudio connection", "error", err)
		return fmt.Errorf("close PulseAudio connection: %w", err)
	}

	ph.logger.Debug("Released PA sink hardware instance")

	return nil
}

// pulseSources delivers PulseAudio sources (microphones) as discrete capture notifications
type pulseSources struct {
	logger *zap.SugaredLogger

	client *proto.Client
	conn   net.Conn

	lock  sync.Mutex
	known map[uint32]Device // by source index, to describe removed sources

	indexEvents   chan proto.SubscribeEvent
	notifications chan CaptureNotification
	stop          chan struct{}
	stopped       chan struct{}
}

func newPulseSources(logger *zap.SugaredLogger, server string) (*pulseSources, error) {
	logger = logger.Named("pulse_sources")

	client, conn, err := connectPulse(logger, server)
	if err != nil {
		return nil, err
	}

	ps := &pulseSources{
		logger:        logger,
		client:        client,
		conn:          conn,
		known:         make(map[uint32]Device),
		indexEvents:   make(chan proto.SubscribeEvent, 16),
		notifications: make(chan CaptureNotification, 16),
		stop:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	client.Callback = func(msg interface{}) {
		event, ok := msg.(*proto.SubscribeEvent)
		if !ok || event.Event&proto.EventFacilityMask != proto.EventSource {
			return
		}

		select {
		case ps.indexEvents <- *event:
		case <-ps.stop:
		}
	}

	if err := client.Request(&proto.Subscribe{Mask: proto.SubscriptionMaskSource}, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe to PulseAudio source events: %w", err)
	}

	// seed the index map so early removals can be described
	if _, err := ps.Devices(); err != nil {
		ps.logger.Warnw("Failed to enumerate sources during init", "error", err)
	}

	go ps.resolveEvents()

	ps.logger.Debug("Created PA source bus instance")

	return ps, nil
}

func (ps *pulseSources) resolveEvents() {
	defer close(ps.stopped)

	for {
		select {
		case event := <-ps.indexEvents:
			switch event.Event.GetType() {
			case proto.EventNew:
				dev, ok := ps.describeIndex(event.Index)
				if !ok {
					continue
				}
				ps.send(CaptureNotification{Device: dev, Connected: true})

			case proto.EventRemove:
				ps.lock.Lock()
				dev, ok := ps.known[event.Index]
				delete(ps.known, event.Index)
				ps.lock.Unlock()

				if !ok {
					ps.logger.Debugw("Removed source was never described", "index", event.Index)
					continue
				}
				ps.send(CaptureNotification{Device: dev, Connected: false})
			}

		case <-ps.stop:
			return
		}
	}
}

func (ps *pulseSources) send(notification CaptureNotification) {
	select {
	case ps.notifications <- notification:
	case <-ps.stop:
	}
}

func (ps *pulseSources) describeIndex(idx uint32) (Device, bool) {
	reply := proto.GetSourceInfoReply{}
	if err := ps.client.Request(&proto.GetSourceInfo{SourceIndex: idx}, &reply); err != nil {
		ps.logger.Debugw("Failed to describe new source", "index", idx, "error", err)
		return Device{}, false
	}

	dev, ok := sourceDevice(&reply)
	if !ok {
		return Device{}, false
	}

	ps.lock.Lock()
	ps.known[idx] = dev
	ps.lock.Unlock()

	return dev, true
}

func sourceDevice(info *proto.GetSourceInfoReply) (Device, bool) {
	if class, ok := info.Properties[propDeviceClass]; ok && class.String() == deviceClassMonitor {
		return Device{}, false
	}

	name := info.Device
	if description, ok := info.Properties[propDeviceDescription]; ok {
		name = description.String()
	}
	if name == "" || info.SourceName == "" {
		return Device{}, false
	}

	return Device{
		HardwareID:  info.SourceName,
		Name:        name,
		Direction:   Input,
		Kind:        Audio,
		IsConnected: true,
	}, true
}

func (ps *pulseSources) Devices() ([]Device, error) {
	reply := proto.GetSourceInfoListReply{}

	if err := ps.client.Request(&proto.GetSourceInfoList{}, &reply); err != nil {
		ps.logger.Warnw("Failed to get source list", "error", err)
		return nil, fmt.Errorf("get source list: %w", err)
	}

	devices := make([]Device, 0, len(reply))

	ps.lock.Lock()
	defer ps.lock.Unlock()

	for _, info := range reply {
		dev, ok := sourceDevice(info)
		if !ok {
			continue
		}

		ps.known[info.SourceIndex] = dev
		devices = append(devices, dev)
	}

	return devices, nil
}

func (ps *pulseSources) Default(kind MediaKind) (Device, bool) {
	if kind != Audio {
		return Device{}, false
	}

	reply := proto.GetSourceInfoReply{}
	if err := ps.client.Request(&proto.GetSourceInfo{SourceIndex: proto.Undefined}, &reply); err != nil {
		ps.logger.Debugw("Failed to get default source info", "error", err)
		return Device{}, false
	}

	return sourceDevice(&reply)
}

func (ps *pulseSources) Notifications() <-chan CaptureNotification {
	return ps.notifications
}

func (ps *pulseSources) Close() error {
	close(ps.stop)
	<-ps.stopped
	close(ps.notifications)

	if err := ps.conn.Close(); err != nil {
		ps.logger.Warnw("Failed to close PulseAudio connection", "error", err)
		return fmt.Errorf("close PulseAudio connection: %w", err)
	}

	ps.logger.Debug("Released PA source bus instance")

	return nil
}
