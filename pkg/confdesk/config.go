package confdesk

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MixyLabs/confdesk/pkg/confdesk/util"
)

type ConfigManager struct {
	logger             *zap.SugaredLogger
	notifier           Notifier
	stopWatcherChannel chan bool

	lock            sync.Mutex
	reloadConsumers []chan bool

	userConfig *viper.Viper
	path       string

	current Config
}

type Config struct {
	DisableTray  bool `mapstructure:"disable_tray"`
	StartCapture bool `mapstructure:"start_capture"`

	ReconfigureDebounce time.Duration `mapstructure:"reconfigure_debounce"`
	KnownDevicesPath    string        `mapstructure:"known_devices_path"`

	DefaultNotifications struct {
		NewDevice         bool `mapstructure:"new_device"`
		TrackedConnect    bool `mapstructure:"tracked_connect"`
		TrackedDisconnect bool `mapstructure:"tracked_disconnect"`
	} `mapstructure:"default_notifications"`

	PulseServer    string `mapstructure:"pulse_server"`
	VideoDeviceDir string `mapstructure:"video_device_dir"`
}

// NotificationDefaults returns the settings a fresh registry starts with
func (c Config) NotificationDefaults() NotificationSettings {
	return NotificationSettings{
		NotifyOnNewDevice:         c.DefaultNotifications.NewDevice,
		NotifyOnTrackedConnect:    c.DefaultNotifications.TrackedConnect,
		NotifyOnTrackedDisconnect: c.DefaultNotifications.TrackedDisconnect,
	}
}

const (
	// DefaultConfigPath is where the user config is looked up unless told otherwise
	DefaultConfigPath = "config.yaml"

	configType = "yaml"

	configKeyDisableTray             = "disable_tray"
	configKeyStartCapture            = "start_capture"
	configKeyReconfigureDebounce     = "reconfigure_debounce"
	configKeyKnownDevicesPath        = "known_devices_path"
	configKeyNotifyNewDevice         = "default_notifications.new_device"
	configKeyNotifyTrackedConnect    = "default_notifications.tracked_connect"
	configKeyNotifyTrackedDisconnect = "default_notifications.tracked_disconnect"
	configKeyPulseServer             = "pulse_server"
	configKeyVideoDeviceDir          = "video_device_dir"

	defaultVideoDeviceDir = "/dev"
	knownDevicesFilename  = "known_devices.json"
)

var defaultKnownDevicesPath = filepath.Join(logDirectory, knownDevicesFilename)

// NewConfig manages the YAML config at path, DefaultConfigPath if empty
func NewConfig(logger *zap.SugaredLogger, notifier Notifier, path string) (*ConfigManager, error) {
	logger = logger.Named("config")

	if path == "" {
		path = DefaultConfigPath
	}

	cc := &ConfigManager{
		logger:             logger,
		notifier:           notifier,
		path:               path,
		reloadConsumers:    []chan bool{},
		stopWatcherChannel: make(chan bool),
	}

	userConfig := viper.New()
	userConfig.SetConfigFile(path)
	userConfig.SetConfigType(configType)

	defaults := DefaultNotificationSettings()

	userConfig.SetDefault(configKeyDisableTray, false)
	userConfig.SetDefault(configKeyStartCapture, true)
	userConfig.SetDefault(configKeyReconfigureDebounce, defaultReconfigureDebounce)
	userConfig.SetDefault(configKeyKnownDevicesPath, defaultKnownDevicesPath)
	userConfig.SetDefault(configKeyNotifyNewDevice, defaults.NotifyOnNewDevice)
	userConfig.SetDefault(configKeyNotifyTrackedConnect, defaults.NotifyOnTrackedConnect)
	userConfig.SetDefault(configKeyNotifyTrackedDisconnect, defaults.NotifyOnTrackedDisconnect)
	userConfig.SetDefault(configKeyPulseServer, "")
	userConfig.SetDefault(configKeyVideoDeviceDir, defaultVideoDeviceDir)

	cc.userConfig = userConfig

	logger.Debugw("Created config instance", "path", path)

	return cc, nil
}

// Path returns the user config file location
func (cc *ConfigManager) Path() string {
	return cc.path
}

// Current returns a copy of the last successfully loaded config
func (cc *ConfigManager) Current() Config {
	cc.lock.Lock()
	defer cc.lock.Unlock()

	return cc.current
}

func (cc *ConfigManager) Load() error {
	cc.logger.Debugw("Loading config", "path", cc.path)

	if !util.FileExists(cc.path) {
		// not fatal, every key has a default
		cc.logger.Warnw("Config file not found, using defaults", "path", cc.path)
		cc.notifier.Notify("Can't find configuration!",
			fmt.Sprintf("%s was not found. Running with defaults", cc.path))
	} else if err := cc.userConfig.ReadInConfig(); err != nil {
		cc.logger.Warnw("Viper failed to read user config", "error", err)

		// if the error is yaml-format-related, show a sensible error. otherwise, show 'em to the logs
		if strings.Contains(err.Error(), "yaml:") {
			cc.notifier.Notify("Invalid configuration!",
				fmt.Sprintf("Please make sure %s is in a valid YAML format.", cc.path))
		} else {
			cc.notifier.Notify("Error loading configuration!", "Please check confdesk's logs for more details.")
		}

		return fmt.Errorf("read user config: %w", err)
	}

	if err := cc.populateFromViper(); err != nil {
		cc.logger.Warnw("Failed to populate config fields", "error", err)
		return fmt.Errorf("populate config fields: %w", err)
	}

	current := cc.Current()

	cc.logger.Info("Loaded config successfully")
	cc.logger.Infow("Config values",
		"disableTray", current.DisableTray,
		"reconfigureDebounce", current.ReconfigureDebounce,
		"knownDevicesPath", current.KnownDevicesPath,
		"videoDeviceDir", current.VideoDeviceDir)

	return nil
}

// SubscribeToChanges allows external components to receive updates when the config is reloaded
func (cc *ConfigManager) SubscribeToChanges() chan bool {
	c := make(chan bool, 1)

	cc.lock.Lock()
	cc.reloadConsumers = append(cc.reloadConsumers, c)
	cc.lock.Unlock()

	return c
}

// WatchConfigFileChanges starts watching for configuration file changes
// and attempts reloading the config when they happen
func (cc *ConfigManager) WatchConfigFileChanges() {
	cc.logger.Debugw("Starting to watch user config file for changes", "path", cc.path)

	const (
		minTimeBetweenReloadAttempts = time.Millisecond * 500
		delayBetweenEventAndReload   = time.Millisecond * 50
	)

	lastAttemptedReload := time.Now()

	// establish watch using viper as opposed to doing it ourselves, though our internal cooldown is still required
	cc.userConfig.WatchConfig()
	cc.userConfig.OnConfigChange(func(event fsnotify.Event) {
		if !event.Has(fsnotify.Write) {
			return
		}

		now := time.Now()

		// many editors write to a file twice
		if !lastAttemptedReload.Add(minTimeBetweenReloadAttempts).Before(now) {
			return
		}

		cc.logger.Debugw("Config file modified, attempting reload", "event", event)

		// wait a bit to let the editor actually flush the new file contents to disk
		<-time.After(delayBetweenEventAndReload)

		if err := cc.Load(); err != nil {
			cc.logger.Warnw("Failed to reload config file", "error", err)
		} else {
			cc.logger.Info("Reloaded config successfully")
			cc.notifier.Notify("Configuration reloaded!", "Your changes have been applied.")

			cc.onConfigReloaded()
		}

		lastAttemptedReload = now
	})

	// wait till they stop us
	<-cc.stopWatcherChannel
	cc.logger.Debug("Stopping user config file watcher")
	cc.userConfig.OnConfigChange(nil)
}

// StopWatchingConfigFile signals our filesystem watcher to stop
func (cc *ConfigManager) StopWatchingConfigFile() {
	cc.stopWatcherChannel <- true
}

func (cc *ConfigManager) populateFromViper() error {
	var current Config

	err := cc.userConfig.Unmarshal(&current, func(dConf *mapstructure.DecoderConfig) {
		dConf.WeaklyTypedInput = false
	})
	if err != nil {
		return err
	}

	if current.ReconfigureDebounce <= 0 {
		cc.logger.Warnw("Ignoring non-positive reconfigure debounce",
			"value", current.ReconfigureDebounce,
			"default", defaultReconfigureDebounce)
		current.ReconfigureDebounce = defaultReconfigureDebounce
	}

	cc.lock.Lock()
	cc.current = current
	cc.lock.Unlock()

	cc.logger.Debug("Populated config fields from viper")

	return nil
}

func (cc *ConfigManager) onConfigReloaded() {
	cc.logger.Debug("Notifying consumers about configuration reload")

	cc.lock.Lock()
	defer cc.lock.Unlock()

	for _, consumer := range cc.reloadConsumers {
		select {
		case consumer <- true:
		default:
			// a reload is already pending for this consumer
		}
	}
}
