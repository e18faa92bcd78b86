// Package confdesk keeps a capture session wired to the user's chosen cameras,
// microphones and speakers while devices come and go, and remembers every
// device it has ever seen.
package confdesk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fyne.io/systray"
	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/MixyLabs/confdesk/pkg/confdesk/capture"
	"github.com/MixyLabs/confdesk/pkg/confdesk/device"
	"github.com/MixyLabs/confdesk/pkg/confdesk/util"
)

const (
	instanceLockName = "confdesk"
	stopTimeout      = 2 * time.Second
)

// Confdesk is the main entity managing all subcomponents
type Confdesk struct {
	logger    *zap.SugaredLogger
	notifier  Notifier
	configMan *ConfigManager
	clock     clockwork.Clock

	coordination *serialQueue
	worker       *serialQueue
	auth         *AuthorizationHelper

	graph *capture.Graph
	sink  *capture.VideoSink

	captureObserver  *device.CaptureObserver
	playbackObserver *device.PlaybackObserver
	observation      *ObservationService
	sessions         *CaptureSessionManager
	store            *FileStore
	known            *KnownDevicesManager

	ctx    context.Context
	cancel context.CancelFunc

	filterLock    sync.Mutex
	checkedFilter *systray.MenuItem

	runningWithTray bool
	stopChannel     chan bool
	version         string
	verbose         bool
}

// NewConfdesk builds the app around the config at configPath, DefaultConfigPath if empty
func NewConfdesk(logger *zap.SugaredLogger, configPath string, verbose bool) (*Confdesk, error) {
	logger = logger.Named("confdesk")

	notifier, err := NewToastNotifier(logger)
	if err != nil {
		logger.Errorw("Failed to create ToastNotifier", "error", err)
		return nil, fmt.Errorf("create new ToastNotifier: %w", err)
	}

	config, err := NewConfig(logger, notifier, configPath)
	if err != nil {
		logger.Errorw("Failed to create Config", "error", err)
		return nil, fmt.Errorf("create new Config: %w", err)
	}

	clock := clockwork.NewRealClock()
	ctx, cancel := context.WithCancel(context.Background())

	d := &Confdesk{
		logger:       logger,
		notifier:     notifier,
		configMan:    config,
		clock:        clock,
		coordination: newSerialQueue(logger, "coordination"),
		worker:       newSerialQueue(logger, "session"),
		graph:        capture.NewGraph(logger, clock),
		sink:         capture.NewVideoSink(logger),
		ctx:          ctx,
		cancel:       cancel,
		stopChannel:  make(chan bool),
		verbose:      verbose,
	}

	d.auth = NewAuthorizationHelper(logger, GrantedAuthorizer{}, d.coordination)

	logger.Debug("Created confdesk instance")

	return d, nil
}

func (d *Confdesk) currConf() Config {
	return d.configMan.Current()
}

// Initialize sets up components and starts to run in the background
func (d *Confdesk) Initialize() error {
	d.logger.Debug("Initializing")

	// load the config for the first time
	if err := d.configMan.Load(); err != nil {
		d.logger.Errorw("Failed to load config during initialization", "error", err)
		return fmt.Errorf("load config during init: %w", err)
	}

	if err := d.acquireInstanceLock(); err != nil {
		d.logger.Errorw("Failed to acquire instance lock", "error", err)
		return fmt.Errorf("acquire instance lock: %w", err)
	}

	if err := d.setupDevices(); err != nil {
		d.logger.Errorw("Failed to set up device observation", "error", err)
		_ = util.ReleaseMutex(d.instanceLockPath())
		return fmt.Errorf("set up device observation: %w", err)
	}

	go d.runQueue(d.coordination)
	go d.runQueue(d.worker)

	// restore before observing, so the first events land on a reconciled registry
	d.coordination.Submit(d.known.RestoreAndReconcile)
	d.known.Observe(d.coordination)

	d.sessions.Initialize()
	if d.currConf().StartCapture {
		d.sessions.StartRunning()
	}

	d.setupInterruptHandler()

	if d.currConf().DisableTray {
		d.logger.Debugw("Running without tray icon", "reason", "disabled in config")

		// run in main thread while waiting on ctrl+C
		d.run()
	} else {
		d.runningWithTray = true
		d.initializeTray(d.run)
	}

	return nil
}

// SetVersion causes confdesk to add a version string to its tray menu if called before Initialize
func (d *Confdesk) SetVersion(version string) {
	d.version = version
}

// Verbose returns a boolean indicating whether confdesk is running in verbose mode
func (d *Confdesk) Verbose() bool {
	return d.verbose
}

func (d *Confdesk) instanceLockPath() string {
	return filepath.Join(logDirectory, instanceLockName)
}

func (d *Confdesk) acquireInstanceLock() error {
	if err := util.EnsureDirExists(logDirectory); err != nil {
		return err
	}

	if err := util.CreateMutex(d.instanceLockPath()); err != nil {
		d.notifier.Notify("confdesk is already running", "Only one instance can manage the capture session.")
		return err
	}

	return nil
}

func (d *Confdesk) setupDevices() error {
	conf := d.currConf()

	captureObserver, playbackObserver, err := device.NewPlatformObservers(d.logger, device.PlatformOptions{
		PulseServer:    conf.PulseServer,
		VideoDeviceDir: conf.VideoDeviceDir,
	})
	if err != nil {
		return fmt.Errorf("create platform observers: %w", err)
	}

	d.captureObserver = captureObserver
	d.playbackObserver = playbackObserver
	d.observation = NewObservationService(d.logger, captureObserver, playbackObserver)

	d.graph.OnCommit(func(wiring capture.Wiring) {
		d.logger.Debugw("Capture graph committed", "inputs", wiring.Inputs, "outputs", wiring.Outputs)
	})

	d.sessions = NewCaptureSessionManager(d.logger, d.graph, d.sink, d.observation, d.auth,
		d.coordination, d.worker, d.clock, conf.ReconfigureDebounce)

	d.store = NewFileStore(d.logger, conf.KnownDevicesPath)
	d.known = NewKnownDevicesManager(d.logger, d.store, NewNotificationService(d.logger, d.notifier),
		captureObserver, playbackObserver, conf.NotificationDefaults())

	return nil
}

func (d *Confdesk) runQueue(q *serialQueue) {
	defer d.recoverFromPanic()
	q.Run(d.ctx)
}

func (d *Confdesk) setupInterruptHandler() {
	interruptChannel := util.SetupCloseHandler()

	go func() {
		signal := <-interruptChannel
		d.logger.Debugw("Interrupted", "signal", signal)
		d.signalStop()
	}()
}

func (d *Confdesk) watchConfigReloads() {
	reloads := d.configMan.SubscribeToChanges()

	for {
		select {
		case <-reloads:
			window := d.currConf().ReconfigureDebounce
			d.logger.Debugw("Applying reloaded config", "reconfigureDebounce", window)
			d.sessions.SetReconfigureDebounce(window)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Confdesk) run() {
	d.logger.Info("Run loop starting")

	go d.configMan.WatchConfigFileChanges()
	go d.watchConfigReloads()

	// wait until gracefully stopped
	<-d.stopChannel
	d.logger.Debug("Stop channel signaled, terminating")

	if err := d.stop(); err != nil {
		d.logger.Warnw("Failed to stop confdesk", "error", err)
		os.Exit(1)
	} else {
		os.Exit(0)
	}
}

func (d *Confdesk) signalStop() {
	d.logger.Debug("Signalling stop channel")
	d.stopChannel <- true
}

func (d *Confdesk) stop() error {
	d.logger.Info("Stopping")

	d.configMan.StopWatchingConfigFile()
	d.sessions.Close()
	d.sessions.StopRunning()

	// let the worker finish stopping the session before the queues go away
	ctx, cancel := context.WithTimeout(d.ctx, stopTimeout)
	if err := Barrier(ctx, d.worker); err != nil {
		d.logger.Warnw("Failed to drain session queue", "error", err)
	}
	cancel()

	d.cancel()

	var err error
	err = multierr.Append(err, d.captureObserver.Close())
	err = multierr.Append(err, d.playbackObserver.Close())
	err = multierr.Append(err, util.ReleaseMutex(d.instanceLockPath()))

	if err != nil {
		d.logger.Errorw("Failed to release device observers", "error", err)
		return fmt.Errorf("release device observers: %w", err)
	}

	if d.runningWithTray {
		d.stopTray()
	}

	// attempt to sync on exit - this won't necessarily work but can't harm
	_ = d.logger.Sync()

	return nil
}
