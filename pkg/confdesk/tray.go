package confdesk

import (
	"context"
	"fmt"
	"time"

	"fyne.io/systray"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/MixyLabs/confdesk/pkg/confdesk/capture"
	"github.com/MixyLabs/confdesk/pkg/confdesk/device"
	"github.com/MixyLabs/confdesk/pkg/confdesk/util"
)

const trayRefreshInterval = 2 * time.Second

func (d *Confdesk) initializeTray(onDone func()) {
	logger := d.logger.Named("tray")

	onReady := func() {
		logger.Debug("Tray instance ready")

		systray.SetTemplateIcon(ConfdeskLogoIconData, ConfdeskLogoIconData)
		systray.SetTitle("confdesk")
		systray.SetTooltip("confdesk")

		toggleCapture := systray.AddMenuItem(captureToggleTitle(d.sessions.IsRunning()), "Start or stop the capture session")

		videoInputs := systray.AddMenuItem("Video input", "Camera wired into the capture session")
		audioInputs := systray.AddMenuItem("Audio input", "Microphone wired into the capture session")
		audioOutputs := systray.AddMenuItem("Audio output", "Speakers used for playback")

		deviceMenus := []*deviceMenu{
			newDeviceMenu(logger, subMenuItems(videoInputs), d.observation.VideoInputs,
				func() *device.Device { return d.sessions.Desired().VideoInput }, d.sessions.SetVideoInput),
			newDeviceMenu(logger, subMenuItems(audioInputs), d.observation.AudioInputs,
				func() *device.Device { return d.sessions.Desired().AudioInput }, d.sessions.SetAudioInput),
			newDeviceMenu(logger, subMenuItems(audioOutputs), d.observation.AudioOutputs,
				func() *device.Device { return d.sessions.Desired().AudioOutput }, d.sessions.SetAudioOutput),
		}

		systray.AddSeparator()
		filters := systray.AddMenuItem("Video filter", "Effect applied to the captured video")
		for _, filter := range capture.Filters() {
			item := filters.AddSubMenuItemCheckbox(filter.String(), "", filter == d.sink.Filter())
			if filter == d.sink.Filter() {
				d.checkedFilter = item
			}

			go d.handleFilterItem(logger, item, filter)
		}

		notifications := systray.AddMenuItem("Notifications", "Choose which device changes are announced")
		settings := d.known.NotificationSettings()
		notifyNew := notifications.AddSubMenuItemCheckbox("New devices", "", settings.NotifyOnNewDevice)
		notifyConnect := notifications.AddSubMenuItemCheckbox("Tracked device connected", "", settings.NotifyOnTrackedConnect)
		notifyDisconnect := notifications.AddSubMenuItemCheckbox("Tracked device disconnected", "", settings.NotifyOnTrackedDisconnect)

		tracked := systray.AddMenuItem("Tracked devices", "Announce connection changes of these devices")
		go d.refreshMenus(logger, tracked, deviceMenus)

		systray.AddSeparator()
		openKnownDevices := systray.AddMenuItem("Open known devices", "Open the known devices file")
		editConfig := systray.AddMenuItem("Edit configuration", "Open config file with the default editor")

		if d.version != "" {
			systray.AddSeparator()
			versionInfo := systray.AddMenuItem(d.version, "")
			versionInfo.Disable()
		}

		systray.AddSeparator()
		quit := systray.AddMenuItem("Quit", "Stop confdesk and quit")

		go func() {
			for {
				select {
				case <-quit.ClickedCh:
					logger.Info("Quit menu item clicked, stopping")

					d.signalStop()

				case <-toggleCapture.ClickedCh:
					running := d.sessions.IsRunning()
					logger.Infow("Capture toggle clicked", "running", running)

					if running {
						d.sessions.StopRunning()
					} else {
						d.sessions.StartRunning()
					}

					toggleCapture.SetTitle(captureToggleTitle(!running))

				case <-notifyNew.ClickedCh:
					d.toggleNotificationSetting(logger, notifyNew, func(s *NotificationSettings, on bool) { s.NotifyOnNewDevice = on })

				case <-notifyConnect.ClickedCh:
					d.toggleNotificationSetting(logger, notifyConnect, func(s *NotificationSettings, on bool) { s.NotifyOnTrackedConnect = on })

				case <-notifyDisconnect.ClickedCh:
					d.toggleNotificationSetting(logger, notifyDisconnect, func(s *NotificationSettings, on bool) { s.NotifyOnTrackedDisconnect = on })

				case <-openKnownDevices.ClickedCh:
					logger.Info("Open known devices menu item clicked")

					if err := util.OpenFile(logger, d.store.Path()); err != nil {
						logger.Warnw("Failed to open known devices file", "error", err)
					}

				case <-editConfig.ClickedCh:
					logger.Info("Edit config menu item clicked, opening config for editing")

					if err := util.OpenFile(logger, d.configMan.Path()); err != nil {
						logger.Warnw("Failed to open config file for editing", "error", err)
					}
				}
			}
		}()

		onDone()
	}

	onExit := func() {
		logger.Debug("Tray exited")
	}

	logger.Debug("Running in tray")
	systray.Run(onReady, onExit)
}

func (d *Confdesk) stopTray() {
	d.logger.Debug("Quitting tray")
	systray.Quit()
}

func captureToggleTitle(running bool) string {
	if running {
		return "Stop capture"
	}
	return "Start capture"
}

func (d *Confdesk) toggleNotificationSetting(logger *zap.SugaredLogger, item *systray.MenuItem, apply func(*NotificationSettings, bool)) {
	on := !item.Checked()
	if on {
		item.Check()
	} else {
		item.Uncheck()
	}

	d.coordination.Submit(func() {
		settings := d.known.NotificationSettings()
		apply(&settings, on)
		d.known.SetNotificationSettings(settings)

		logger.Infow("Notification settings changed", "settings", settings)
	})
}

// handleFilterItem keeps the filter checkboxes behaving like radio buttons
func (d *Confdesk) handleFilterItem(logger *zap.SugaredLogger, item *systray.MenuItem, filter capture.Filter) {
	for range item.ClickedCh {
		logger.Infow("Video filter selected", "filter", filter)
		d.sessions.SetVideoFilter(filter)

		d.filterLock.Lock()
		if d.checkedFilter != nil && d.checkedFilter != item {
			d.checkedFilter.Uncheck()
		}
		item.Check()
		d.checkedFilter = item
		d.filterLock.Unlock()
	}
}

// refreshMenus keeps the device submenus current. Tracked devices get a checkbox
// per known device; menu items can't be removed, so that list only grows.
func (d *Confdesk) refreshMenus(logger *zap.SugaredLogger, tracked *systray.MenuItem, deviceMenus []*deviceMenu) {
	items := make(map[string]*systray.MenuItem)
	lastToken := ""

	refreshEvery(d.ctx, d.clock, trayRefreshInterval, func() {
		for _, menu := range deviceMenus {
			menu.refresh()
		}

		token := d.known.RefreshToken()
		if token == lastToken {
			return
		}
		lastToken = token

		for _, known := range d.known.Devices() {
			key := known.Key()

			item, ok := items[key]
			if !ok {
				item = tracked.AddSubMenuItemCheckbox(trackedDeviceTitle(known), key, d.known.IsTracked(key))
				items[key] = item

				go d.handleTrackedItem(logger, item, key)
				continue
			}

			item.SetTitle(trackedDeviceTitle(known))
		}
	})
}

// refreshEvery calls refresh right away and then on every tick until ctx is done
func refreshEvery(ctx context.Context, clock clockwork.Clock, interval time.Duration, refresh func()) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		refresh()

		select {
		case <-ticker.Chan():
		case <-ctx.Done():
			return
		}
	}
}

func (d *Confdesk) handleTrackedItem(logger *zap.SugaredLogger, item *systray.MenuItem, key string) {
	for range item.ClickedCh {
		tracked := !item.Checked()
		if tracked {
			item.Check()
		} else {
			item.Uncheck()
		}

		logger.Infow("Device tracking changed", "key", key, "tracked", tracked)

		d.coordination.Submit(func() {
			d.known.SetTracked(key, tracked)
		})
	}
}

func trackedDeviceTitle(d device.Device) string {
	state := "disconnected"
	if d.IsConnected {
		state = "connected"
	}

	return fmt.Sprintf("%s (%s %s, %s)", d.Name, d.Kind, d.Direction, state)
}
