package confdesk

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/MixyLabs/confdesk/pkg/confdesk/capture"
	"github.com/MixyLabs/confdesk/pkg/confdesk/device"
)

// DesiredConfiguration is the device selection a capture session should converge to
type DesiredConfiguration struct {
	VideoInput  *device.Device
	AudioInput  *device.Device
	AudioOutput *device.Device
}

func (dc DesiredConfiguration) clone() DesiredConfiguration {
	cp := func(d *device.Device) *device.Device {
		if d == nil {
			return nil
		}
		v := *d
		return &v
	}

	return DesiredConfiguration{
		VideoInput:  cp(dc.VideoInput),
		AudioInput:  cp(dc.AudioInput),
		AudioOutput: cp(dc.AudioOutput),
	}
}

// ReconfigureReport describes one finished reconfiguration
type ReconfigureReport struct {
	// Applied is the selection after authorization gating
	Applied         DesiredConfiguration
	VideoAuthorized bool
	AudioAuthorized bool
	SinkAttached    bool
	Result          capture.Result
}

// DeviceSource provides default devices and disconnect streams
type DeviceSource interface {
	DefaultVideoInput() (device.Device, bool)
	DefaultAudioInput() (device.Device, bool)
	DefaultAudioOutput() (device.Device, bool)
	CaptureDisconnects() <-chan device.Device
	PlaybackDisconnects() <-chan device.Device
}

// CaptureSessionManager owns the desired selection and keeps a capture session wired
// to it. The selection only changes on the coordination queue, the session only
// changes on the worker queue.
type CaptureSessionManager struct {
	logger *zap.SugaredLogger

	session capture.Session
	sink    *capture.VideoSink
	devices DeviceSource
	auth    *AuthorizationHelper

	coordination Queue
	worker       Queue
	debounce     *debouncer

	lock           sync.Mutex
	desired        DesiredConfiguration
	onReconfigured func(ReconfigureReport)
}

func NewCaptureSessionManager(
	logger *zap.SugaredLogger,
	session capture.Session,
	sink *capture.VideoSink,
	devices DeviceSource,
	auth *AuthorizationHelper,
	coordination, worker Queue,
	clock clockwork.Clock,
	debounceWindow time.Duration,
) *CaptureSessionManager {
	m := &CaptureSessionManager{
		logger:       logger.Named("session_manager"),
		session:      session,
		sink:         sink,
		devices:      devices,
		auth:         auth,
		coordination: coordination,
		worker:       worker,
	}

	m.onReconfigured = m.logReport

	// the timer fires on the clock's goroutine, hop back before reading the selection
	m.debounce = newDebouncer(clock, debounceWindow, func() {
		m.coordination.Submit(m.scheduleReconfigure)
	})

	m.logger.Debugw("Created capture session manager instance", "debounce", debounceWindow)

	return m
}

// Initialize fills empty slots with the system defaults, schedules the first
// reconfiguration and starts reacting to disconnects
func (m *CaptureSessionManager) Initialize() {
	m.coordination.Submit(func() {
		m.revertToDefaultsIfNeeded()
		m.scheduleReconfigure()
	})

	m.auth.RequestIfNeeded(device.Video, m.authorizationChanged(device.Video))
	m.auth.RequestIfNeeded(device.Audio, m.authorizationChanged(device.Audio))

	go m.forwardDisconnects(m.devices.CaptureDisconnects(), m.handleCaptureDisconnect)
	go m.forwardDisconnects(m.devices.PlaybackDisconnects(), m.handlePlaybackDisconnect)
}

// OnReconfigured replaces the diagnostic hook receiving every reconfiguration report.
// The hook runs on the worker queue.
func (m *CaptureSessionManager) OnReconfigured(hook func(ReconfigureReport)) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.onReconfigured = hook
}

// Desired returns a copy of the current selection
func (m *CaptureSessionManager) Desired() DesiredConfiguration {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.desired.clone()
}

func (m *CaptureSessionManager) SetVideoInput(d *device.Device) {
	m.setSelection(func(dc *DesiredConfiguration) { dc.VideoInput = d })
}

func (m *CaptureSessionManager) SetAudioInput(d *device.Device) {
	m.setSelection(func(dc *DesiredConfiguration) { dc.AudioInput = d })
}

func (m *CaptureSessionManager) SetAudioOutput(d *device.Device) {
	m.setSelection(func(dc *DesiredConfiguration) { dc.AudioOutput = d })
}

func (m *CaptureSessionManager) setSelection(update func(dc *DesiredConfiguration)) {
	m.coordination.Submit(func() {
		m.lock.Lock()
		update(&m.desired)
		m.lock.Unlock()

		m.debounce.Trigger()
	})
}

// SetReconfigureDebounce changes the selection debounce window
func (m *CaptureSessionManager) SetReconfigureDebounce(window time.Duration) {
	m.debounce.SetWindow(window)
}

// SetVideoFilter selects the effect applied by the video sink
func (m *CaptureSessionManager) SetVideoFilter(filter capture.Filter) {
	if m.sink == nil {
		return
	}

	m.sink.SetFilter(filter)
}

func (m *CaptureSessionManager) StartRunning() {
	m.worker.Submit(func() {
		if m.session.IsRunning() {
			return
		}

		m.session.StartRunning()
		m.logger.Info("Capture session started")
	})
}

func (m *CaptureSessionManager) StopRunning() {
	m.worker.Submit(func() {
		if !m.session.IsRunning() {
			return
		}

		m.session.StopRunning()
		m.logger.Info("Capture session stopped")
	})
}

func (m *CaptureSessionManager) IsRunning() bool {
	return m.session.IsRunning()
}

// Close drops a pending debounced reconfiguration
func (m *CaptureSessionManager) Close() {
	m.debounce.Stop()
}

func (m *CaptureSessionManager) authorizationChanged(kind device.MediaKind) func(AuthorizationStatus) {
	return func(status AuthorizationStatus) {
		m.logger.Debugw("Authorization is consulted on the next reconfiguration", "kind", kind, "status", status)
	}
}

func (m *CaptureSessionManager) forwardDisconnects(disconnects <-chan device.Device, handle func(device.Device)) {
	for d := range disconnects {
		m.coordination.Submit(func() { handle(d) })
	}
}

// coordination queue only
func (m *CaptureSessionManager) handleCaptureDisconnect(d device.Device) {
	m.lock.Lock()
	changed := false
	if m.desired.VideoInput != nil && m.desired.VideoInput.HardwareID == d.HardwareID {
		m.desired.VideoInput = nil
		changed = true
	}
	if m.desired.AudioInput != nil && m.desired.AudioInput.HardwareID == d.HardwareID {
		m.desired.AudioInput = nil
		changed = true
	}
	m.lock.Unlock()

	if !changed {
		return
	}

	m.logger.Infow("Selected capture device disconnected, falling back to default", "device", d)

	m.revertToDefaultsIfNeeded()
	m.scheduleReconfigure()
}

// coordination queue only
func (m *CaptureSessionManager) handlePlaybackDisconnect(d device.Device) {
	m.lock.Lock()
	changed := m.desired.AudioOutput != nil && m.desired.AudioOutput.HardwareID == d.HardwareID
	if changed {
		m.desired.AudioOutput = nil
	}
	m.lock.Unlock()

	if !changed {
		return
	}

	m.logger.Infow("Selected playback device disconnected, falling back to default", "device", d)

	m.revertToDefaultsIfNeeded()
	m.scheduleReconfigure()
}

// coordination queue only
func (m *CaptureSessionManager) revertToDefaultsIfNeeded() {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.desired.VideoInput == nil {
		if fallback, ok := m.devices.DefaultVideoInput(); ok {
			m.desired.VideoInput = &fallback
		}
	}

	if m.desired.AudioInput == nil {
		if fallback, ok := m.devices.DefaultAudioInput(); ok {
			m.desired.AudioInput = &fallback
		}
	}

	if m.desired.AudioOutput == nil {
		if fallback, ok := m.devices.DefaultAudioOutput(); ok {
			m.desired.AudioOutput = &fallback
		}
	}
}

// scheduleReconfigure snapshots the selection and authorization and hands them to
// the worker. Coordination queue only.
func (m *CaptureSessionManager) scheduleReconfigure() {
	videoAuthorized := m.auth.IsAuthorized(device.Video)
	audioAuthorized := m.auth.IsAuthorized(device.Audio)

	applied := m.Desired()
	if !videoAuthorized {
		applied.VideoInput = nil
	}
	if !audioAuthorized {
		applied.AudioInput = nil
	}

	var sink capture.Output
	if videoAuthorized && m.sink != nil {
		sink = m.sink
	}

	m.worker.Submit(func() {
		result := capture.NewConfigurator(m.session).Reconfigure(applied.VideoInput, applied.AudioInput, sink)

		m.lock.Lock()
		hook := m.onReconfigured
		m.lock.Unlock()

		if hook != nil {
			hook(ReconfigureReport{
				Applied:         applied,
				VideoAuthorized: videoAuthorized,
				AudioAuthorized: audioAuthorized,
				SinkAttached:    sink != nil,
				Result:          result,
			})
		}
	})
}

func (m *CaptureSessionManager) logReport(report ReconfigureReport) {
	if report.Result.Err != nil {
		m.logger.Warnw("Capture session reconfigured with errors",
			"errors", len(report.Result.Errors()),
			"error", report.Result.Err)
		return
	}

	m.logger.Debugw("Capture session reconfigured",
		"ops", len(report.Result.Ops),
		"videoAuthorized", report.VideoAuthorized,
		"audioAuthorized", report.AudioAuthorized)
}
