package confdesk

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MixyLabs/confdesk/pkg/confdesk/capture"
	"github.com/MixyLabs/confdesk/pkg/confdesk/device"
)

const testDebounce = 50 * time.Millisecond

type managerFixture struct {
	manager  *CaptureSessionManager
	graph    *capture.Graph
	sink     *capture.VideoSink
	capture  *fakeObserver
	playback *fakeObserver
	clock    *clockwork.FakeClock
	reports  chan ReconfigureReport

	coordination *serialQueue
	worker       *serialQueue
}

func newManagerFixture(t *testing.T, logger *zap.SugaredLogger, authorizer Authorizer) *managerFixture {
	clock := clockwork.NewFakeClock()

	f := &managerFixture{
		graph:        capture.NewGraph(logger, clock),
		sink:         capture.NewVideoSink(logger),
		capture:      newFakeObserver(camA, camB, camC, micA, micB),
		playback:     newFakeObserver(speakerA, speakerB),
		clock:        clock,
		reports:      make(chan ReconfigureReport, 16),
		coordination: newSerialQueue(logger, "coordination"),
		worker:       newSerialQueue(logger, "session"),
	}

	f.capture.setDefault(device.Video, camA)
	f.capture.setDefault(device.Audio, micA)
	f.playback.setDefault(device.Audio, speakerA)

	runQueue(t, f.coordination)
	runQueue(t, f.worker)

	auth := NewAuthorizationHelper(logger, authorizer, f.coordination)
	devices := NewObservationService(logger, f.capture, f.playback)

	f.manager = NewCaptureSessionManager(logger, f.graph, f.sink, devices, auth,
		f.coordination, f.worker, clock, testDebounce)
	f.manager.OnReconfigured(func(report ReconfigureReport) { f.reports <- report })

	t.Cleanup(f.manager.Close)

	return f
}

func (f *managerFixture) nextReport(t *testing.T) ReconfigureReport {
	t.Helper()

	select {
	case report := <-f.reports:
		return report
	case <-time.After(waitFor):
		require.FailNow(t, "no reconfiguration happened")
		return ReconfigureReport{}
	}
}

func (f *managerFixture) requireNoReport(t *testing.T) {
	t.Helper()

	barrier(t, f.coordination)
	barrier(t, f.worker)

	select {
	case report := <-f.reports:
		require.FailNow(t, "unexpected reconfiguration", "%+v", report)
	default:
	}
}

func TestManagerInitializeUsesDefaults(t *testing.T) {
	f := newManagerFixture(t, zaptest.NewLogger(t).Sugar(), GrantedAuthorizer{})

	f.manager.Initialize()
	report := f.nextReport(t)

	require.NoError(t, report.Result.Err)
	assert.True(t, report.SinkAttached)
	assert.Equal(t, DesiredConfiguration{VideoInput: &camA, AudioInput: &micA, AudioOutput: &speakerA}, f.manager.Desired())

	video, ok := f.graph.Committed().Device(device.Video)
	require.True(t, ok)
	assert.Equal(t, camA, video)

	audio, ok := f.graph.Committed().Device(device.Audio)
	require.True(t, ok)
	assert.Equal(t, micA, audio)
}

func TestManagerDebouncesSelectionChanges(t *testing.T) {
	f := newManagerFixture(t, zaptest.NewLogger(t).Sugar(), GrantedAuthorizer{})
	f.manager.Initialize()
	f.nextReport(t)

	f.manager.SetVideoInput(ptr(camB))
	f.manager.SetAudioInput(ptr(micB))
	f.manager.SetAudioOutput(ptr(speakerB))

	f.requireNoReport(t)
	blockUntilTimers(t, f.clock, 1)

	f.clock.Advance(testDebounce)
	report := f.nextReport(t)

	require.NoError(t, report.Result.Err)
	assert.Equal(t, camB, *report.Applied.VideoInput)
	assert.Equal(t, micB, *report.Applied.AudioInput)
	assert.Equal(t, speakerB, *report.Applied.AudioOutput)

	// one burst, one reconfiguration
	f.requireNoReport(t)
}

func TestManagerLatestSelectionWins(t *testing.T) {
	f := newManagerFixture(t, zaptest.NewLogger(t).Sugar(), GrantedAuthorizer{})
	f.manager.Initialize()
	f.nextReport(t)

	f.manager.SetVideoInput(ptr(camB))
	f.manager.SetVideoInput(nil)
	f.manager.SetVideoInput(ptr(camC))

	f.requireNoReport(t)
	blockUntilTimers(t, f.clock, 1)

	f.clock.Advance(testDebounce)
	report := f.nextReport(t)

	require.NoError(t, report.Result.Err)
	assert.Equal(t, camC, *report.Applied.VideoInput)
	assert.Equal(t, []capture.Op{
		{Kind: capture.RemoveInput, Target: camA.HardwareID},
		{Kind: capture.AddInput, Target: camC.HardwareID},
		{Kind: capture.RemoveOutput, Target: f.sink.ID()},
		{Kind: capture.AddOutput, Target: f.sink.ID()},
	}, report.Result.Ops)

	video, _ := f.graph.Committed().Device(device.Video)
	assert.Equal(t, camC, video)

	f.requireNoReport(t)
}

func TestManagerFallsBackOnDisconnectWithoutDebounce(t *testing.T) {
	f := newManagerFixture(t, zaptest.NewLogger(t).Sugar(), GrantedAuthorizer{})
	f.manager.Initialize()
	f.nextReport(t)

	f.capture.setDefault(device.Video, camB)
	f.capture.publish(device.Disconnected, camA.AsDisconnected())

	// no clock advance needed
	report := f.nextReport(t)
	require.NoError(t, report.Result.Err)
	assert.Equal(t, camB, *report.Applied.VideoInput)
	assert.Equal(t, micA, *report.Applied.AudioInput)

	video, _ := f.graph.Committed().Device(device.Video)
	assert.Equal(t, camB, video)
}

func TestManagerIgnoresDisconnectOfUnselectedDevice(t *testing.T) {
	f := newManagerFixture(t, zaptest.NewLogger(t).Sugar(), GrantedAuthorizer{})
	f.manager.Initialize()
	f.nextReport(t)

	f.capture.publish(device.Disconnected, micB.AsDisconnected())
	f.playback.publish(device.Disconnected, speakerB.AsDisconnected())

	f.requireNoReport(t)
}

func TestManagerPlaybackDisconnectRevertsOutput(t *testing.T) {
	f := newManagerFixture(t, zaptest.NewLogger(t).Sugar(), GrantedAuthorizer{})
	f.manager.Initialize()
	f.nextReport(t)

	f.playback.setDefault(device.Audio, speakerB)
	f.playback.publish(device.Disconnected, speakerA.AsDisconnected())

	report := f.nextReport(t)
	assert.Equal(t, speakerB, *report.Applied.AudioOutput)
}

func TestManagerDeniedVideoIsNotWired(t *testing.T) {
	f := newManagerFixture(t, zaptest.NewLogger(t).Sugar(), &stubAuthorizer{
		statuses: map[device.MediaKind]AuthorizationStatus{
			device.Video: Denied,
			device.Audio: Authorized,
		},
	})

	f.manager.Initialize()
	report := f.nextReport(t)

	assert.False(t, report.VideoAuthorized)
	assert.False(t, report.SinkAttached)
	assert.Nil(t, report.Applied.VideoInput)
	assert.Equal(t, micA, *report.Applied.AudioInput)

	// the selection itself is kept for when access is granted
	assert.Equal(t, camA, *f.manager.Desired().VideoInput)

	_, ok := f.graph.Committed().Device(device.Video)
	assert.False(t, ok)
	assert.Empty(t, f.graph.Committed().Outputs)
}

func TestManagerStartStopAreIdempotent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	f := newManagerFixture(t, zap.New(core).Sugar(), GrantedAuthorizer{})

	f.manager.StartRunning()
	f.manager.StartRunning()
	barrier(t, f.worker)
	assert.True(t, f.manager.IsRunning())

	f.manager.StopRunning()
	f.manager.StopRunning()
	barrier(t, f.worker)
	assert.False(t, f.manager.IsRunning())

	assert.Equal(t, 1, logs.FilterMessage("Capture session started").Len())
	assert.Equal(t, 1, logs.FilterMessage("Capture session stopped").Len())
}

func TestManagerForwardsVideoFilter(t *testing.T) {
	f := newManagerFixture(t, zaptest.NewLogger(t).Sugar(), GrantedAuthorizer{})

	f.manager.SetVideoFilter(capture.FilterSepia)
	assert.Equal(t, capture.FilterSepia, f.sink.Filter())
}

func TestManagerLogsFailedReconfiguration(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core).Sugar()

	f := newManagerFixture(t, logger, GrantedAuthorizer{})
	f.manager.OnReconfigured(f.manager.logReport)

	// a disconnected camera can't be added
	f.capture.setDefault(device.Video, camA.AsDisconnected())
	f.manager.Initialize()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("Capture session reconfigured with errors").Len() == 1
	}, waitFor, tick)
}
